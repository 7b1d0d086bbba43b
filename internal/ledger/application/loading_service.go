package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"github.com/nilebridge/cargoledger/pkg/idgen"
	"github.com/nilebridge/cargoledger/pkg/metrics"
)

// LoadingService 装载（货柜）触发的债权生成。
// 每个装载自动生成一条债权分录；装载变更/删除时债权随之调整或取消，
// 绝不留下指向已删除装载的孤儿债权。
type LoadingService struct {
	txm       domain.TxManager
	clients   domain.ClientRepository
	entries   domain.EntryRepository
	engine    *ReconciliationEngine
	converter *domain.Converter
	audit     domain.ActivityRecorder
	events    domain.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// SetMetrics 开启债权分录指标上报
func (s *LoadingService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// countClaim 债权分录创建计数
func (s *LoadingService) countClaim() {
	if s.metrics != nil {
		s.metrics.EntriesTotal.WithLabelValues(string(domain.EntryTypeClaim)).Inc()
	}
}

// NewLoadingService 创建装载债权服务
func NewLoadingService(
	txm domain.TxManager,
	clients domain.ClientRepository,
	entries domain.EntryRepository,
	engine *ReconciliationEngine,
	converter *domain.Converter,
	audit domain.ActivityRecorder,
	events domain.EventPublisher,
	logger *slog.Logger,
) *LoadingService {
	return &LoadingService{
		txm:       txm,
		clients:   clients,
		entries:   entries,
		engine:    engine,
		converter: converter,
		audit:     audit,
		events:    events,
		logger:    logger.With("module", "loading_service"),
	}
}

// LoadingData 装载数据（由上游装载模块传入）
type LoadingData struct {
	LoadingID      uint64
	ClientID       uint64
	PurchaseAmount decimal.Decimal // 货款，RMB
	Commission     decimal.Decimal // 佣金，RMB
	ShippingUSD    decimal.Decimal // 运费，USD 原币
	Date           time.Time
	ActorID        string
	Remark         string
}

func (d LoadingData) validate() error {
	if d.LoadingID == 0 {
		return domain.NewError(domain.CodeValidation, "loading_id is required")
	}
	if d.PurchaseAmount.IsNegative() || d.Commission.IsNegative() || d.ShippingUSD.IsNegative() {
		return domain.NewError(domain.CodeValidation, "loading amounts must not be negative")
	}
	return nil
}

// shippingRMB 运费 USD 折算 RMB。零运费不查汇率。
func (s *LoadingService) shippingRMB(ctx context.Context, shippingUSD decimal.Decimal) (decimal.Decimal, error) {
	if shippingUSD.IsZero() {
		return decimal.Zero, nil
	}
	return s.converter.Convert(ctx, shippingUSD, domain.CurrencyUSD, domain.CurrencyRMB)
}

// OnLoadingCreated 装载入库：生成债权分录。
// 债权总额 = 货款 + 佣金 + 运费折算 RMB；运费同时以 USD 原币挂账
// （RMB 总额已含折算值，双轨跟踪是业务口径，必须原样保留）。
func (s *LoadingService) OnLoadingCreated(ctx context.Context, data LoadingData) (string, error) {
	if err := data.validate(); err != nil {
		return "", err
	}
	if data.Date.IsZero() {
		data.Date = time.Now()
	}

	shippingRMB, err := s.shippingRMB(ctx, data.ShippingUSD)
	if err != nil {
		return "", domain.AsError(err)
	}

	txNo := idgen.NextNo("CLM")
	var totals domain.Amounts
	err = s.txm.Transaction(ctx, func(ctx context.Context) error {
		client, err := s.clients.GetWithLock(ctx, data.ClientID)
		if err != nil {
			return err
		}

		if existing, err := s.entries.GetByLoadingID(ctx, data.LoadingID); err == nil && existing != nil {
			return domain.NewError(domain.CodeValidation, "loading %d already has claim %s", data.LoadingID, existing.TransactionNo)
		} else if err != nil && !domain.IsCode(err, domain.CodeNotFound) {
			return err
		}

		loadingID := data.LoadingID
		claim := domain.NewClaimEntry(txNo, client.ID, &loadingID,
			data.PurchaseAmount, data.Commission, shippingRMB, data.ShippingUSD, data.Date, data.ActorID)
		claim.Remark = data.Remark
		if err := s.entries.Save(ctx, claim); err != nil {
			return err
		}
		totals = claim.ClaimTotals()

		if _, err := s.engine.RecomputeLocked(ctx, client); err != nil {
			return err
		}

		s.audit.Record(ctx, "claim.create", data.ActorID,
			"claim "+txNo+" generated from loading", "ledger_entries", claim.ID)
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "claim generation failed", "loading_id", data.LoadingID, "error", err)
		return "", domain.AsError(err)
	}
	s.countClaim()

	if s.events != nil {
		event := &domain.ClaimCreatedEvent{
			ClientID:      data.ClientID,
			TransactionNo: txNo,
			LoadingID:     data.LoadingID,
			Totals:        totals,
			Timestamp:     time.Now(),
		}
		if err := s.events.Publish(ctx, event.EventName(), "", event); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish event", "event", event.EventName(), "error", err)
		}
	}
	s.logger.InfoContext(ctx, "claim generated", "transaction_no", txNo, "loading_id", data.LoadingID)
	return txNo, nil
}

// OnLoadingUpdated 装载变更：重算关联债权的构成与未结余额。
// 已收款超过新债权总额的变更被拒绝。
func (s *LoadingService) OnLoadingUpdated(ctx context.Context, data LoadingData) (string, error) {
	if err := data.validate(); err != nil {
		return "", err
	}

	shippingRMB, err := s.shippingRMB(ctx, data.ShippingUSD)
	if err != nil {
		return "", domain.AsError(err)
	}

	var txNo string
	err = s.txm.Transaction(ctx, func(ctx context.Context) error {
		claim, err := s.entries.GetByLoadingID(ctx, data.LoadingID)
		if err != nil {
			return err
		}
		client, err := s.clients.GetWithLock(ctx, claim.ClientID)
		if err != nil {
			return err
		}
		claim, err = s.entries.GetWithLock(ctx, claim.ID)
		if err != nil {
			return err
		}
		if !claim.Status.Included() {
			return domain.NewError(domain.CodeValidation, "claim %s is %s and cannot be adjusted", claim.TransactionNo, claim.Status)
		}
		txNo = claim.TransactionNo

		total := data.PurchaseAmount.Add(data.Commission).Add(shippingRMB)
		newBalances := domain.Amounts{
			RMB: total.Sub(claim.PaymentRMB),
			USD: data.ShippingUSD.Sub(claim.PaymentUSD),
			SDG: claim.BalanceSDG,
			AED: claim.BalanceAED,
		}
		if newBalances.AnyNegative() {
			return domain.NewError(domain.CodeExceedsBalance,
				"claim %s already collected more than the adjusted total", claim.TransactionNo)
		}

		claim.GoodsAmount = data.PurchaseAmount
		claim.Commission = data.Commission
		claim.Shipping = shippingRMB
		claim.ShippingUSD = data.ShippingUSD
		claim.TotalAmount = total
		claim.BalanceRMB = newBalances.RMB
		claim.BalanceUSD = newBalances.USD
		if err := s.entries.Save(ctx, claim); err != nil {
			return err
		}

		if _, err := s.engine.RecomputeLocked(ctx, client); err != nil {
			return err
		}

		s.audit.Record(ctx, "claim.adjust", data.ActorID,
			"claim "+claim.TransactionNo+" adjusted after loading update", "ledger_entries", claim.ID)
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "claim adjustment failed", "loading_id", data.LoadingID, "error", err)
		return "", domain.AsError(err)
	}
	return txNo, nil
}

// OnLoadingDeleted 装载删除：取消关联债权并重算余额
func (s *LoadingService) OnLoadingDeleted(ctx context.Context, loadingID uint64, actorID string) (string, error) {
	var txNo string
	err := s.txm.Transaction(ctx, func(ctx context.Context) error {
		claim, err := s.entries.GetByLoadingID(ctx, loadingID)
		if err != nil {
			return err
		}
		client, err := s.clients.GetWithLock(ctx, claim.ClientID)
		if err != nil {
			return err
		}
		claim, err = s.entries.GetWithLock(ctx, claim.ID)
		if err != nil {
			return err
		}
		txNo = claim.TransactionNo

		if err := claim.Cancel(actorID); err != nil {
			return err
		}
		if err := s.entries.Save(ctx, claim); err != nil {
			return err
		}

		if _, err := s.engine.RecomputeLocked(ctx, client); err != nil {
			return err
		}

		s.audit.Record(ctx, "claim.cancel", actorID,
			"claim "+claim.TransactionNo+" cancelled after loading deletion", "ledger_entries", claim.ID)
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "claim cancellation failed", "loading_id", loadingID, "error", err)
		return "", domain.AsError(err)
	}
	return txNo, nil
}
