package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"github.com/nilebridge/cargoledger/pkg/idgen"
	"github.com/nilebridge/cargoledger/pkg/metrics"
)

// PaymentService 收款命令服务。每个命令在单个数据库事务内完成
// 分录写入、余额重算、钱箱镜像与审计，任一步失败整体回滚。
type PaymentService struct {
	txm         domain.TxManager
	clients     domain.ClientRepository
	entries     domain.EntryRepository
	cashbox     domain.CashboxRepository
	engine      *ReconciliationEngine
	audit       domain.ActivityRecorder
	events      domain.EventPublisher
	lockTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewPaymentService 创建收款命令服务
func NewPaymentService(
	txm domain.TxManager,
	clients domain.ClientRepository,
	entries domain.EntryRepository,
	cashbox domain.CashboxRepository,
	engine *ReconciliationEngine,
	audit domain.ActivityRecorder,
	events domain.EventPublisher,
	lockTimeout time.Duration,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		txm:         txm,
		clients:     clients,
		entries:     entries,
		cashbox:     cashbox,
		engine:      engine,
		audit:       audit,
		events:      events,
		lockTimeout: lockTimeout,
		logger:      logger.With("module", "payment_service"),
	}
}

// SetMetrics 开启业务指标上报
func (s *PaymentService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// countPayment 成功路径累计收款/分录/钱箱指标
func (s *PaymentService) countPayment(kind string, entryType domain.EntryType, mType domain.MovementType) {
	if s.metrics == nil {
		return
	}
	s.metrics.PaymentsTotal.WithLabelValues(kind).Inc()
	s.metrics.EntriesTotal.WithLabelValues(string(entryType)).Inc()
	s.metrics.CashboxMovementsTotal.WithLabelValues(string(mType)).Inc()
}

// countConflict 锁冲突计数
func (s *PaymentService) countConflict(err error) {
	if s.metrics != nil && domain.IsCode(err, domain.CodeConcurrency) {
		s.metrics.LockConflictsTotal.Inc()
	}
}

// PaymentCommand 收款命令
type PaymentCommand struct {
	ClientID uint64
	Amounts  domain.Amounts
	Date     time.Time
	ActorID  string
	Remark   string
}

// PartialPaymentCommand 部分收款命令
type PartialPaymentCommand struct {
	ParentTransactionNo string
	Amounts             domain.Amounts
	Date                time.Time
	ActorID             string
	Remark              string
}

// RefundCommand 退款命令
type RefundCommand struct {
	TransactionNo string
	Amounts       domain.Amounts
	Date          time.Time
	ActorID       string
	Remark        string
}

// validateAmounts 金额校验：不允许负数，且至少一个币种为正
func validateAmounts(a domain.Amounts) error {
	if a.AnyNegative() {
		return domain.NewError(domain.CodeValidation, "amounts must not be negative")
	}
	if !a.AnyPositive() {
		return domain.NewError(domain.CodeValidation, "at least one currency amount must be positive")
	}
	return nil
}

// opContext 给锁等待加上限，锁拿不到在超时后以 CONCURRENCY 失败
func (s *PaymentService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.lockTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.lockTimeout)
}

// ProcessPayment 全额收款：写入 approved 收款分录，重算余额，镜像钱箱入账
func (s *PaymentService) ProcessPayment(ctx context.Context, cmd PaymentCommand) (string, error) {
	if err := validateAmounts(cmd.Amounts); err != nil {
		return "", err
	}
	if cmd.Date.IsZero() {
		cmd.Date = time.Now()
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	txNo := idgen.NextNo("PAY")
	err := s.txm.Transaction(ctx, func(ctx context.Context) error {
		client, err := s.clients.GetWithLock(ctx, cmd.ClientID)
		if err != nil {
			return err
		}
		if !client.IsActive() {
			return domain.NewError(domain.CodeValidation, "client %s is inactive", client.Code)
		}

		entry := domain.NewPaymentEntry(txNo, client.ID, cmd.Amounts, nil, cmd.Date, cmd.ActorID, cmd.Remark)
		if err := s.entries.Save(ctx, entry); err != nil {
			return err
		}

		if _, err := s.engine.RecomputeLocked(ctx, client); err != nil {
			return err
		}

		if err := s.mirrorCashbox(ctx, entry, domain.MovementIn, domain.CategoryPaymentReceived, cmd.Amounts, cmd.Date, cmd.Remark); err != nil {
			return err
		}

		s.audit.Record(ctx, "payment.create", cmd.ActorID,
			"payment "+txNo+" received", "ledger_entries", entry.ID)
		return nil
	})
	if err != nil {
		s.countConflict(err)
		s.logger.WarnContext(ctx, "payment rejected", "client_id", cmd.ClientID, "error", err)
		return "", domain.AsError(err)
	}
	s.countPayment("full", domain.EntryTypePayment, domain.MovementIn)

	s.publish(ctx, &domain.PaymentReceivedEvent{
		ClientID:      cmd.ClientID,
		TransactionNo: txNo,
		Amounts:       cmd.Amounts,
		Timestamp:     time.Now(),
	})
	s.logger.InfoContext(ctx, "payment processed", "transaction_no", txNo, "client_id", cmd.ClientID)
	return txNo, nil
}

// ProcessPartialPayment 部分收款：锁定父债权，任一币种超出父项未结余额即拒绝；
// 成功后父项累计收款递增、余额递减，四币种全部结清时父项翻转为 approved。
func (s *PaymentService) ProcessPartialPayment(ctx context.Context, cmd PartialPaymentCommand) (string, error) {
	if err := validateAmounts(cmd.Amounts); err != nil {
		return "", err
	}
	if cmd.Date.IsZero() {
		cmd.Date = time.Now()
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	txNo := idgen.NextNo("PAY")
	var clientID uint64
	err := s.txm.Transaction(ctx, func(ctx context.Context) error {
		parent, err := s.entries.GetByTransactionNo(ctx, cmd.ParentTransactionNo)
		if err != nil {
			return err
		}

		// 锁序固定：先客户行，后父分录行，避免交叉死锁
		client, err := s.clients.GetWithLock(ctx, parent.ClientID)
		if err != nil {
			return err
		}
		parent, err = s.entries.GetWithLock(ctx, parent.ID)
		if err != nil {
			return err
		}
		clientID = client.ID

		// 超额校验发生在持锁重读之后，并发提交只会放行余额允许的那一笔
		if err := parent.ApplyPayment(cmd.Amounts, cmd.ActorID); err != nil {
			return err
		}
		if err := s.entries.Save(ctx, parent); err != nil {
			return err
		}

		child := domain.NewPaymentEntry(txNo, client.ID, cmd.Amounts, &parent.ID, cmd.Date, cmd.ActorID, cmd.Remark)
		if err := s.entries.Save(ctx, child); err != nil {
			return err
		}

		if _, err := s.engine.RecomputeLocked(ctx, client); err != nil {
			return err
		}

		if err := s.mirrorCashbox(ctx, child, domain.MovementIn, domain.CategoryPaymentReceived, cmd.Amounts, cmd.Date, cmd.Remark); err != nil {
			return err
		}

		s.audit.Record(ctx, "payment.partial", cmd.ActorID,
			"partial payment "+txNo+" against claim "+parent.TransactionNo, "ledger_entries", child.ID)
		return nil
	})
	if err != nil {
		s.countConflict(err)
		s.logger.WarnContext(ctx, "partial payment rejected",
			"parent_transaction_no", cmd.ParentTransactionNo, "error", err)
		return "", domain.AsError(err)
	}
	s.countPayment("partial", domain.EntryTypePayment, domain.MovementIn)

	s.publish(ctx, &domain.PaymentReceivedEvent{
		ClientID:      clientID,
		TransactionNo: txNo,
		Amounts:       cmd.Amounts,
		Partial:       true,
		Timestamp:     time.Now(),
	})
	s.logger.InfoContext(ctx, "partial payment processed",
		"transaction_no", txNo, "parent_transaction_no", cmd.ParentTransactionNo)
	return txNo, nil
}

// ProcessRefund 退款：原收款必须 approved，退款累计不得超过实收；
// 全额退清时原分录与其退款记录一并标记 refunded（对账合计恰好归零）。
func (s *PaymentService) ProcessRefund(ctx context.Context, cmd RefundCommand) (string, error) {
	if err := validateAmounts(cmd.Amounts); err != nil {
		return "", err
	}
	if cmd.Date.IsZero() {
		cmd.Date = time.Now()
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	txNo := idgen.NextNo("RFD")
	var full bool
	var clientID uint64
	err := s.txm.Transaction(ctx, func(ctx context.Context) error {
		original, err := s.entries.GetByTransactionNo(ctx, cmd.TransactionNo)
		if err != nil {
			return err
		}
		if original.EntryType != domain.EntryTypePayment {
			return domain.NewError(domain.CodeValidation, "entry %s is not a payment", cmd.TransactionNo)
		}

		client, err := s.clients.GetWithLock(ctx, original.ClientID)
		if err != nil {
			return err
		}

		// 锁序与部分收款一致：客户行 → 父债权行 → 收款行
		var parent *domain.LedgerEntry
		if original.ParentTransactionID != nil {
			parent, err = s.entries.GetWithLock(ctx, *original.ParentTransactionID)
			if err != nil {
				return err
			}
		}
		original, err = s.entries.GetWithLock(ctx, original.ID)
		if err != nil {
			return err
		}
		if original.Status != domain.EntryStatusApproved {
			return domain.NewError(domain.CodeValidation, "payment %s is %s, only approved payments are refundable",
				cmd.TransactionNo, original.Status)
		}
		clientID = client.ID

		// 剩余可退 = 实收 + 既有退款（负数）
		remaining := original.Payments()
		children, err := s.entries.ListChildren(ctx, original.ID)
		if err != nil {
			return err
		}
		for _, ch := range children {
			if ch.EntryType == domain.EntryTypeRefund {
				remaining = remaining.Add(ch.Payments())
			}
		}
		if cmd.Amounts.Exceeds(remaining) {
			return domain.NewError(domain.CodeExceedsBalance, "refund exceeds refundable remainder of payment %s", cmd.TransactionNo)
		}
		full = remaining.Sub(cmd.Amounts).IsZero()

		refund := domain.NewRefundEntry(txNo, client.ID, cmd.Amounts, original.ID, cmd.Date, cmd.ActorID, cmd.Remark)
		if full {
			// 全额退清：原分录退出对账，历史退款记录一并退出，净效应为零
			refund.MarkRefunded()
			original.MarkRefunded()
			if err := s.entries.Save(ctx, original); err != nil {
				return err
			}
			for _, ch := range children {
				if ch.EntryType == domain.EntryTypeRefund && ch.Status == domain.EntryStatusApproved {
					ch.MarkRefunded()
					if err := s.entries.Save(ctx, ch); err != nil {
						return err
					}
				}
			}
		}
		if err := s.entries.Save(ctx, refund); err != nil {
			return err
		}

		// 被退的是某笔债权的子收款：父债权的累计收款与未结余额同步回冲，
		// 否则客户重新欠款而债权仍报告已结清并拒绝再收
		if parent != nil {
			if err := parent.ReversePayment(cmd.Amounts); err != nil {
				return err
			}
			if err := s.entries.Save(ctx, parent); err != nil {
				return err
			}
		}

		if _, err := s.engine.RecomputeLocked(ctx, client); err != nil {
			return err
		}

		if err := s.mirrorCashbox(ctx, refund, domain.MovementOut, domain.CategoryRefundPaid, cmd.Amounts, cmd.Date, cmd.Remark); err != nil {
			return err
		}

		s.audit.Record(ctx, "payment.refund", cmd.ActorID,
			"refund "+txNo+" against payment "+original.TransactionNo, "ledger_entries", refund.ID)
		return nil
	})
	if err != nil {
		s.countConflict(err)
		s.logger.WarnContext(ctx, "refund rejected", "transaction_no", cmd.TransactionNo, "error", err)
		return "", domain.AsError(err)
	}
	s.countPayment("refund", domain.EntryTypeRefund, domain.MovementOut)

	s.publish(ctx, &domain.RefundIssuedEvent{
		ClientID:      clientID,
		TransactionNo: txNo,
		OriginalNo:    cmd.TransactionNo,
		Amounts:       cmd.Amounts,
		Full:          full,
		Timestamp:     time.Now(),
	})
	s.logger.InfoContext(ctx, "refund processed", "transaction_no", txNo, "full", full)
	return txNo, nil
}

// ApproveClaim 审批债权分录。债权带非零收款字段时同步镜像钱箱入账。
func (s *PaymentService) ApproveClaim(ctx context.Context, transactionNo, actorID string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.txm.Transaction(ctx, func(ctx context.Context) error {
		entry, err := s.entries.GetByTransactionNo(ctx, transactionNo)
		if err != nil {
			return err
		}
		client, err := s.clients.GetWithLock(ctx, entry.ClientID)
		if err != nil {
			return err
		}
		entry, err = s.entries.GetWithLock(ctx, entry.ID)
		if err != nil {
			return err
		}

		if err := entry.Approve(actorID); err != nil {
			return err
		}
		if err := s.entries.Save(ctx, entry); err != nil {
			return err
		}

		if _, err := s.engine.RecomputeLocked(ctx, client); err != nil {
			return err
		}

		if entry.EntryType == domain.EntryTypeClaim && entry.Payments().AnyPositive() {
			if err := s.mirrorCashbox(ctx, entry, domain.MovementIn, domain.CategoryClaimSettlement, entry.Payments(), entry.TransactionDate, entry.Remark); err != nil {
				return err
			}
		}

		s.audit.Record(ctx, "entry.approve", actorID,
			"entry "+transactionNo+" approved", "ledger_entries", entry.ID)
		return nil
	})
	if err != nil {
		return domain.AsError(err)
	}
	return nil
}

// HardDeleteEntry 管理员硬删除：分录连同钱箱镜像一并删除，
// 随后重建钱箱运行余额并重算客户余额。
func (s *PaymentService) HardDeleteEntry(ctx context.Context, transactionNo, actorID string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.txm.Transaction(ctx, func(ctx context.Context) error {
		entry, err := s.entries.GetByTransactionNo(ctx, transactionNo)
		if err != nil {
			return err
		}
		client, err := s.clients.GetWithLock(ctx, entry.ClientID)
		if err != nil {
			return err
		}

		if err := s.cashbox.DeleteByEntryID(ctx, entry.ID); err != nil {
			return err
		}
		if err := s.entries.HardDelete(ctx, entry.ID); err != nil {
			return err
		}

		movements, err := s.cashbox.ListAll(ctx)
		if err != nil {
			return err
		}
		if dirty := domain.RebuildRunningBalances(movements); len(dirty) > 0 {
			if err := s.cashbox.SaveAll(ctx, dirty); err != nil {
				return err
			}
		}
		final := domain.ZeroAmounts()
		if len(movements) > 0 {
			final = movements[len(movements)-1].BalancesAfter()
		}
		if err := s.cashbox.ResetTotals(ctx, final); err != nil {
			return err
		}

		if _, err := s.engine.RecomputeLocked(ctx, client); err != nil {
			return err
		}

		s.audit.Record(ctx, "entry.hard_delete", actorID,
			"entry "+transactionNo+" hard-deleted with cashbox mirror", "ledger_entries", entry.ID)
		return nil
	})
	if err != nil {
		return domain.AsError(err)
	}
	return nil
}

// mirrorCashbox 在当前事务内追加钱箱流水。
// 时点快照由仓储在钱箱累计行锁下计算，跨客户的并发收款在此串行。
func (s *PaymentService) mirrorCashbox(ctx context.Context, entry *domain.LedgerEntry, mType domain.MovementType, category domain.MovementCategory, amounts domain.Amounts, date time.Time, remark string) error {
	movement := domain.NewCashboxMovement(&entry.ID, mType, category, amounts, date, remark)
	return s.cashbox.Append(ctx, movement)
}

// publish 事后发布事件，失败只记日志
func (s *PaymentService) publish(ctx context.Context, event domain.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event.EventName(), "", event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event", "event", event.EventName(), "error", err)
	}
}
