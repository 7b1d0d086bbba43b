package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func amounts(rmb, usd, sdg, aed string) domain.Amounts {
	return domain.Amounts{RMB: dec(rmb), USD: dec(usd), SDG: dec(sdg), AED: dec(aed)}
}

// seedClaim 直接落一条债权分录并重算客户余额
func (f *fixture) seedClaim(t *testing.T, clientID uint64, goods, commission, shippingRMB, shippingUSD string) *domain.LedgerEntry {
	t.Helper()
	loadingID := f.store.genID()
	claim := domain.NewClaimEntry("CLM-"+time.Now().Format("150405.000000000"), clientID, &loadingID,
		dec(goods), dec(commission), dec(shippingRMB), dec(shippingUSD), time.Now(), "tester")
	require.NoError(t, f.entries.Save(context.Background(), claim))
	_, err := f.engine.Recompute(context.Background(), clientID)
	require.NoError(t, err)
	return claim
}

func TestProcessPayment(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")

	txNo, err := f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.Amounts{RMB: dec("100"), SDG: dec("50")},
		ActorID:  "cashier",
	})
	require.NoError(t, err)
	require.NotEmpty(t, txNo)

	entry, err := f.entries.GetByTransactionNo(context.Background(), txNo)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryTypePayment, entry.EntryType)
	assert.Equal(t, domain.EntryStatusApproved, entry.Status)
	assert.True(t, entry.Balances().IsZero())

	// 无债权时余额即收款合计
	bal := f.clientBalances(client.ID)
	assert.True(t, bal.RMB.Equal(dec("100")))
	assert.True(t, bal.SDG.Equal(dec("50")))

	// 钱箱入账镜像
	require.Len(t, f.store.movements, 1)
	m := f.store.movements[0]
	assert.Equal(t, domain.MovementIn, m.MovementType)
	assert.Equal(t, domain.CategoryPaymentReceived, m.Category)
	assert.True(t, m.BalanceAfterRMB.Equal(dec("100")))
	assert.True(t, m.BalanceAfterSDG.Equal(dec("50")))

	require.Len(t, f.events.events, 1)
	assert.Equal(t, "ledger.payment_received", f.events.events[0].Topic)
	assert.NotEmpty(t, f.audit.records)
}

func TestProcessPaymentInactiveClientRejected(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")
	client.Deactivate()
	require.NoError(t, f.clients.Save(context.Background(), client))

	_, err := f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.Amounts{RMB: dec("100")},
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeValidation))
	assert.Empty(t, f.store.entries)
	assert.Empty(t, f.store.movements)
}

func TestProcessPaymentAmountValidation(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")

	_, err := f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.Amounts{RMB: dec("-5")},
	})
	assert.True(t, domain.IsCode(err, domain.CodeValidation))

	_, err = f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.ZeroAmounts(),
	})
	assert.True(t, domain.IsCode(err, domain.CodeValidation))
}

func TestProcessPartialPayment(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")
	claim := f.seedClaim(t, client.ID, "500", "50", "144", "20") // 总额 694 RMB / 20 USD

	bal := f.clientBalances(client.ID)
	assert.True(t, bal.RMB.Equal(dec("-694")))
	assert.True(t, bal.USD.Equal(dec("-20")))

	txNo, err := f.payments.ProcessPartialPayment(context.Background(), PartialPaymentCommand{
		ParentTransactionNo: claim.TransactionNo,
		Amounts:             domain.Amounts{RMB: dec("200")},
		ActorID:             "cashier",
	})
	require.NoError(t, err)

	parent, err := f.entries.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.True(t, parent.PaymentRMB.Equal(dec("200")))
	assert.True(t, parent.BalanceRMB.Equal(dec("494")))
	assert.Equal(t, domain.EntryStatusPending, parent.Status)

	child, err := f.entries.GetByTransactionNo(context.Background(), txNo)
	require.NoError(t, err)
	require.NotNil(t, child.ParentTransactionID)
	assert.Equal(t, claim.ID, *child.ParentTransactionID)

	// 余额 = 收款 − 债权总额（债权总额不因部分收款变化）
	bal = f.clientBalances(client.ID)
	assert.True(t, bal.RMB.Equal(dec("-494")))
	assert.True(t, bal.USD.Equal(dec("-20")))
}

func TestProcessPartialPaymentSettlesParent(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")
	claim := f.seedClaim(t, client.ID, "100", "0", "0", "0")

	_, err := f.payments.ProcessPartialPayment(context.Background(), PartialPaymentCommand{
		ParentTransactionNo: claim.TransactionNo,
		Amounts:             domain.Amounts{RMB: dec("100")},
		ActorID:             "cashier",
	})
	require.NoError(t, err)

	parent, err := f.entries.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryStatusApproved, parent.Status)
	assert.True(t, parent.Balances().IsZero())

	bal := f.clientBalances(client.ID)
	assert.True(t, bal.IsZero())
}

func TestProcessPartialPaymentOverdrawRejected(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")
	claim := f.seedClaim(t, client.ID, "100", "0", "0", "0")

	_, err := f.payments.ProcessPartialPayment(context.Background(), PartialPaymentCommand{
		ParentTransactionNo: claim.TransactionNo,
		Amounts:             domain.Amounts{RMB: dec("150")},
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeExceedsBalance))

	// 拒绝的收款不留任何痕迹
	parent, err := f.entries.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.True(t, parent.PaymentRMB.IsZero())
	assert.Empty(t, f.store.movements)
	assert.True(t, f.clientBalances(client.ID).RMB.Equal(dec("-100")))
}

func TestConcurrentPartialPaymentsExactlyOneSucceeds(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")
	claim := f.seedClaim(t, client.ID, "100", "0", "0", "0")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.payments.ProcessPartialPayment(context.Background(), PartialPaymentCommand{
				ParentTransactionNo: claim.TransactionNo,
				Amounts:             domain.Amounts{RMB: dec("80")},
				ActorID:             "cashier",
			})
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.True(t, domain.IsCode(err, domain.CodeExceedsBalance), "unexpected error: %v", err)
			rejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	parent, err := f.entries.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.True(t, parent.PaymentRMB.Equal(dec("80")))
	assert.True(t, parent.BalanceRMB.Equal(dec("20")))
}

func TestProcessRefundPartialAndFull(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")

	payNo, err := f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.Amounts{RMB: dec("100")},
		ActorID:  "cashier",
	})
	require.NoError(t, err)

	// 部分退款
	_, err = f.payments.ProcessRefund(context.Background(), RefundCommand{
		TransactionNo: payNo,
		Amounts:       domain.Amounts{RMB: dec("30")},
		ActorID:       "cashier",
	})
	require.NoError(t, err)

	bal := f.clientBalances(client.ID)
	assert.True(t, bal.RMB.Equal(dec("70")))

	original, err := f.entries.GetByTransactionNo(context.Background(), payNo)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryStatusApproved, original.Status)

	// 钱箱出账镜像
	require.Len(t, f.store.movements, 2)
	out := f.store.movements[1]
	assert.Equal(t, domain.MovementOut, out.MovementType)
	assert.Equal(t, domain.CategoryRefundPaid, out.Category)
	assert.True(t, out.BalanceAfterRMB.Equal(dec("70")))

	// 退清剩余 70：原收款与退款记录一并退出对账
	_, err = f.payments.ProcessRefund(context.Background(), RefundCommand{
		TransactionNo: payNo,
		Amounts:       domain.Amounts{RMB: dec("70")},
		ActorID:       "cashier",
	})
	require.NoError(t, err)

	original, err = f.entries.GetByTransactionNo(context.Background(), payNo)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryStatusRefunded, original.Status)

	children, err := f.entries.ListChildren(context.Background(), original.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	for _, ch := range children {
		assert.Equal(t, domain.EntryStatusRefunded, ch.Status)
	}

	assert.True(t, f.clientBalances(client.ID).IsZero())
}

func TestRefundOfPartialPaymentReopensClaim(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")
	claim := f.seedClaim(t, client.ID, "100", "0", "0", "0")

	payNo, err := f.payments.ProcessPartialPayment(context.Background(), PartialPaymentCommand{
		ParentTransactionNo: claim.TransactionNo,
		Amounts:             domain.Amounts{RMB: dec("100")},
		ActorID:             "cashier",
	})
	require.NoError(t, err)

	parent, err := f.entries.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EntryStatusApproved, parent.Status)
	require.True(t, f.clientBalances(client.ID).IsZero())

	// 冲回部分收款 40：债权重新挂账 40
	_, err = f.payments.ProcessRefund(context.Background(), RefundCommand{
		TransactionNo: payNo,
		Amounts:       domain.Amounts{RMB: dec("40")},
		ActorID:       "cashier",
	})
	require.NoError(t, err)

	parent, err = f.entries.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryStatusPending, parent.Status)
	assert.True(t, parent.PaymentRMB.Equal(dec("60")))
	assert.True(t, parent.BalanceRMB.Equal(dec("40")))
	assert.True(t, f.clientBalances(client.ID).RMB.Equal(dec("-40")))

	// 退清剩余 60：债权回到全额待收
	_, err = f.payments.ProcessRefund(context.Background(), RefundCommand{
		TransactionNo: payNo,
		Amounts:       domain.Amounts{RMB: dec("60")},
		ActorID:       "cashier",
	})
	require.NoError(t, err)

	parent, err = f.entries.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryStatusPending, parent.Status)
	assert.True(t, parent.Payments().IsZero())
	assert.True(t, parent.BalanceRMB.Equal(dec("100")))
	assert.True(t, f.clientBalances(client.ID).RMB.Equal(dec("-100")))

	// 债权再次可收：重新全额收款后结清
	_, err = f.payments.ProcessPartialPayment(context.Background(), PartialPaymentCommand{
		ParentTransactionNo: claim.TransactionNo,
		Amounts:             domain.Amounts{RMB: dec("100")},
		ActorID:             "cashier",
	})
	require.NoError(t, err)

	parent, err = f.entries.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryStatusApproved, parent.Status)
	assert.True(t, parent.Balances().IsZero())
	assert.True(t, f.clientBalances(client.ID).IsZero())
}

func TestProcessRefundExceedsRemainderRejected(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")

	payNo, err := f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.Amounts{RMB: dec("100")},
	})
	require.NoError(t, err)

	_, err = f.payments.ProcessRefund(context.Background(), RefundCommand{
		TransactionNo: payNo,
		Amounts:       domain.Amounts{RMB: dec("60")},
	})
	require.NoError(t, err)

	_, err = f.payments.ProcessRefund(context.Background(), RefundCommand{
		TransactionNo: payNo,
		Amounts:       domain.Amounts{RMB: dec("60")},
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeExceedsBalance))
	assert.True(t, f.clientBalances(client.ID).RMB.Equal(dec("40")))
}

func TestProcessRefundOnClaimRejected(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")
	claim := f.seedClaim(t, client.ID, "100", "0", "0", "0")

	_, err := f.payments.ProcessRefund(context.Background(), RefundCommand{
		TransactionNo: claim.TransactionNo,
		Amounts:       domain.Amounts{RMB: dec("10")},
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeValidation))
}

func TestPaymentAtomicityOnCashboxFailure(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")
	f.store.failCashboxSave = true

	_, err := f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.Amounts{RMB: dec("100")},
	})
	require.Error(t, err)

	// 钱箱写入失败时整个事务回滚：分录与余额都不落地
	assert.Empty(t, f.store.entries)
	assert.Empty(t, f.store.movements)
	assert.True(t, f.clientBalances(client.ID).IsZero())
}

func TestCashboxBalancesChainAcrossClients(t *testing.T) {
	f := newFixture()
	first := f.seedClient("C001")
	second := f.seedClient("C002")

	var wg sync.WaitGroup
	for _, p := range []struct {
		clientID uint64
		rmb      string
	}{{first.ID, "100"}, {second.ID, "50"}} {
		wg.Add(1)
		go func(clientID uint64, rmb string) {
			defer wg.Done()
			_, err := f.payments.ProcessPayment(context.Background(), PaymentCommand{
				ClientID: clientID,
				Amounts:  domain.Amounts{RMB: dec(rmb)},
				ActorID:  "cashier",
			})
			assert.NoError(t, err)
		}(p.clientID, p.rmb)
	}
	wg.Wait()

	// 不同客户的入账共用同一条累计链：逐条衔接，末条即钱箱总额
	require.Len(t, f.store.movements, 2)
	m1, m2 := f.store.movements[0], f.store.movements[1]
	assert.True(t, m2.BalancesAfter().Sub(m1.BalancesAfter().Add(m2.Amounts())).IsZero())
	assert.True(t, m2.BalanceAfterRMB.Equal(dec("150")))
	assert.True(t, f.store.cashboxTotals.RMB.Equal(dec("150")))
}

func TestCashboxTotalsRealignAfterHardDelete(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")

	first, err := f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.Amounts{RMB: dec("100")},
	})
	require.NoError(t, err)
	_, err = f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.Amounts{RMB: dec("50")},
	})
	require.NoError(t, err)

	require.NoError(t, f.payments.HardDeleteEntry(context.Background(), first, "admin"))
	assert.True(t, f.store.cashboxTotals.RMB.Equal(dec("50")))

	// 删除后继续入账，从重建后的总额衔接
	_, err = f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.Amounts{RMB: dec("25")},
	})
	require.NoError(t, err)
	require.Len(t, f.store.movements, 2)
	assert.True(t, f.store.movements[1].BalanceAfterRMB.Equal(dec("75")))
}

func TestApproveClaim(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")
	claim := f.seedClaim(t, client.ID, "100", "0", "0", "0")

	require.NoError(t, f.payments.ApproveClaim(context.Background(), claim.TransactionNo, "reviewer"))

	approved, err := f.entries.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryStatusApproved, approved.Status)
	assert.Equal(t, "reviewer", approved.ApprovedBy)

	// 审批状态翻转不改变对账口径
	assert.True(t, f.clientBalances(client.ID).RMB.Equal(dec("-100")))
}

func TestHardDeleteEntryRebuildsCashbox(t *testing.T) {
	f := newFixture()
	client := f.seedClient("C001")

	first, err := f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.Amounts{RMB: dec("100")},
	})
	require.NoError(t, err)

	_, err = f.payments.ProcessPayment(context.Background(), PaymentCommand{
		ClientID: client.ID,
		Amounts:  domain.Amounts{RMB: dec("50")},
	})
	require.NoError(t, err)
	require.Len(t, f.store.movements, 2)

	require.NoError(t, f.payments.HardDeleteEntry(context.Background(), first, "admin"))

	// 分录连同镜像流水消失
	_, err = f.entries.GetByTransactionNo(context.Background(), first)
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
	require.Len(t, f.store.movements, 1)

	// 剩余流水快照已重建
	assert.True(t, f.store.movements[0].BalanceAfterRMB.Equal(dec("50")))

	// 余额重算只剩第二笔
	assert.True(t, f.clientBalances(client.ID).RMB.Equal(dec("50")))
}
