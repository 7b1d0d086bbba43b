package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
)

func TestOnLoadingCreated(t *testing.T) {
	f := newFixture()
	f.seedRate("USD_RMB", "7.2")
	client := f.seedClient("C001")

	// 500 货款 + 50 佣金 + 20 USD 运费 × 7.2 = 694 RMB
	txNo, err := f.loadings.OnLoadingCreated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("500"),
		Commission:     dec("50"),
		ShippingUSD:    dec("20"),
		ActorID:        "ops",
	})
	require.NoError(t, err)

	claim, err := f.entries.GetByTransactionNo(context.Background(), txNo)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryTypeClaim, claim.EntryType)
	assert.Equal(t, domain.EntryStatusPending, claim.Status)
	assert.True(t, claim.TotalAmount.Equal(dec("694")))
	assert.True(t, claim.Shipping.Equal(dec("144")))
	assert.True(t, claim.ShippingUSD.Equal(dec("20")))
	require.NotNil(t, claim.LoadingID)
	assert.Equal(t, uint64(11), *claim.LoadingID)

	bal := f.clientBalances(client.ID)
	assert.True(t, bal.RMB.Equal(dec("-694")))
	assert.True(t, bal.USD.Equal(dec("-20")))

	require.Len(t, f.events.events, 1)
	assert.Equal(t, "ledger.claim_created", f.events.events[0].Topic)
}

func TestOnLoadingCreatedZeroShippingSkipsRate(t *testing.T) {
	// 汇率表为空，零运费装载仍可生成债权
	f := newFixture()
	client := f.seedClient("C001")

	txNo, err := f.loadings.OnLoadingCreated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("300"),
	})
	require.NoError(t, err)

	claim, err := f.entries.GetByTransactionNo(context.Background(), txNo)
	require.NoError(t, err)
	assert.True(t, claim.TotalAmount.Equal(dec("300")))
	assert.True(t, claim.ShippingUSD.IsZero())
}

func TestOnLoadingCreatedMissingRate(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")

	_, err := f.loadings.OnLoadingCreated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("300"),
		ShippingUSD:    dec("20"),
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeRateNotFound))
	assert.Empty(t, f.store.entries)
}

func TestOnLoadingCreatedDuplicateRejected(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")

	_, err := f.loadings.OnLoadingCreated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("300"),
	})
	require.NoError(t, err)

	_, err = f.loadings.OnLoadingCreated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("400"),
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeValidation))
}

func TestOnLoadingUpdatedRecomputesClaim(t *testing.T) {
	f := newFixture()
	f.seedRate("USD_RMB", "7.2")
	client := f.seedClient("C001")

	txNo, err := f.loadings.OnLoadingCreated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("500"),
		Commission:     dec("50"),
		ShippingUSD:    dec("20"),
	})
	require.NoError(t, err)

	// 已收 194，变更后总额 400+50+144=594，未结 400
	_, err = f.payments.ProcessPartialPayment(context.Background(), PartialPaymentCommand{
		ParentTransactionNo: txNo,
		Amounts:             domain.Amounts{RMB: dec("194")},
	})
	require.NoError(t, err)

	_, err = f.loadings.OnLoadingUpdated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("400"),
		Commission:     dec("50"),
		ShippingUSD:    dec("20"),
	})
	require.NoError(t, err)

	claim, err := f.entries.GetByTransactionNo(context.Background(), txNo)
	require.NoError(t, err)
	assert.True(t, claim.TotalAmount.Equal(dec("594")))
	assert.True(t, claim.BalanceRMB.Equal(dec("400")))
	assert.True(t, claim.PaymentRMB.Equal(dec("194")))

	// 余额 = 194 收款 − 594 债权
	assert.True(t, f.clientBalances(client.ID).RMB.Equal(dec("-400")))
}

func TestOnLoadingUpdatedRejectsWhenCollectedExceedsNewTotal(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")

	txNo, err := f.loadings.OnLoadingCreated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("500"),
	})
	require.NoError(t, err)

	_, err = f.payments.ProcessPartialPayment(context.Background(), PartialPaymentCommand{
		ParentTransactionNo: txNo,
		Amounts:             domain.Amounts{RMB: dec("450")},
	})
	require.NoError(t, err)

	// 变更后总额 400 低于已收 450
	_, err = f.loadings.OnLoadingUpdated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("400"),
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeExceedsBalance))

	// 债权保持原状
	claim, err := f.entries.GetByTransactionNo(context.Background(), txNo)
	require.NoError(t, err)
	assert.True(t, claim.TotalAmount.Equal(dec("500")))
}

func TestOnLoadingDeletedCancelsClaim(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")

	txNo, err := f.loadings.OnLoadingCreated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("300"),
	})
	require.NoError(t, err)
	require.True(t, f.clientBalances(client.ID).RMB.Equal(dec("-300")))

	cancelled, err := f.loadings.OnLoadingDeleted(context.Background(), 11, "admin")
	require.NoError(t, err)
	assert.Equal(t, txNo, cancelled)

	claim, err := f.entries.GetByTransactionNo(context.Background(), txNo)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryStatusCancelled, claim.Status)

	// 取消的债权退出对账
	assert.True(t, f.clientBalances(client.ID).IsZero())

	// 装载号可复用：原债权已取消
	_, err = f.loadings.OnLoadingCreated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("200"),
	})
	require.NoError(t, err)
}

func TestOnLoadingValidation(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")

	_, err := f.loadings.OnLoadingCreated(context.Background(), LoadingData{
		ClientID:       client.ID,
		PurchaseAmount: dec("300"),
	})
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	_, err = f.loadings.OnLoadingCreated(context.Background(), LoadingData{
		LoadingID:      11,
		ClientID:       client.ID,
		PurchaseAmount: dec("-10"),
	})
	assert.True(t, domain.IsCode(err, domain.CodeValidation))
}
