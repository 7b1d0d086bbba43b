// Package application 多币种账本应用层
// 生成摘要：
// 1) 余额对账引擎：从分录全量重算客户四币种余额（唯一权威）
// 2) 收款/部分收款/退款命令服务，行锁 + 单事务保证原子性
// 3) 装载触发的债权生成与调整
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"github.com/nilebridge/cargoledger/pkg/metrics"
)

// ReconciliationEngine 余额对账引擎。
// 客户缓存余额是写通缓存，任何改动分录金额的代码路径都必须
// 在返回成功前经由本引擎重算并落库。
type ReconciliationEngine struct {
	txm     domain.TxManager
	clients domain.ClientRepository
	entries domain.EntryRepository
	events  domain.EventPublisher
	cache   BalanceCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewReconciliationEngine 创建对账引擎
func NewReconciliationEngine(
	txm domain.TxManager,
	clients domain.ClientRepository,
	entries domain.EntryRepository,
	events domain.EventPublisher,
	logger *slog.Logger,
) *ReconciliationEngine {
	return &ReconciliationEngine{
		txm:     txm,
		clients: clients,
		entries: entries,
		events:  events,
		logger:  logger.With("module", "reconciliation"),
	}
}

// EnableBalanceCache 开启余额缓存失效。重算落库后删除对应客户的缓存键，
// 读服务下次取余额时回源。
func (r *ReconciliationEngine) EnableBalanceCache(cache BalanceCache) {
	r.cache = cache
}

// SetMetrics 开启重算次数与耗时上报
func (r *ReconciliationEngine) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// computeBalances 按对账规则聚合：
// balance_<ccy> = Σ payment_<ccy>（收款/退款分录） − Σ 债权_<ccy>（expense 分录）。
// 债权分录自身的累计收款字段只用于结清跟踪，收款一律以子分录计数，
// 否则部分收款会被重复累计。SDG/AED 没有债权侧，自然退化为纯收款合计。
func computeBalances(entries []*domain.LedgerEntry) domain.Amounts {
	balances := domain.ZeroAmounts()
	for _, e := range entries {
		if !e.Status.Included() {
			continue
		}
		if e.EntryType == domain.EntryTypeClaim {
			balances = balances.Sub(e.ClaimTotals())
			continue
		}
		balances = balances.Add(e.Payments())
	}
	return balances
}

// Recompute 独立重算客户余额并持久化。幂等：无分录变动时两次调用结果一致。
func (r *ReconciliationEngine) Recompute(ctx context.Context, clientID uint64) (domain.Amounts, error) {
	var balances domain.Amounts
	err := r.txm.Transaction(ctx, func(ctx context.Context) error {
		client, err := r.clients.GetWithLock(ctx, clientID)
		if err != nil {
			return err
		}
		balances, err = r.RecomputeLocked(ctx, client)
		return err
	})
	if err != nil {
		return domain.ZeroAmounts(), err
	}

	if r.events != nil {
		event := &domain.BalancesRecomputedEvent{
			ClientID:  clientID,
			Balances:  balances,
			Timestamp: time.Now(),
		}
		if err := r.events.Publish(ctx, event.EventName(), "", event); err != nil {
			r.logger.ErrorContext(ctx, "failed to publish event", "event", event.EventName(), "error", err)
		}
	}
	return balances, nil
}

// RecomputeLocked 在已持有客户行锁的事务内重算并落库。
// 供命令服务在同一事务中复用。
func (r *ReconciliationEngine) RecomputeLocked(ctx context.Context, client *domain.Client) (domain.Amounts, error) {
	if r.metrics != nil {
		r.metrics.RecomputesTotal.Inc()
		defer func(start time.Time) {
			r.metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
		}(time.Now())
	}

	entries, err := r.entries.ListIncludedByClient(ctx, client.ID)
	if err != nil {
		return domain.ZeroAmounts(), err
	}

	balances := computeBalances(entries)
	client.SetBalances(balances)
	if err := r.clients.Save(ctx, client); err != nil {
		return domain.ZeroAmounts(), err
	}

	if r.cache != nil {
		if err := r.cache.Delete(ctx, balanceCacheKey(client.ID)); err != nil {
			r.logger.WarnContext(ctx, "balance cache invalidation failed", "client_id", client.ID, "error", err)
		}
	}

	r.logger.DebugContext(ctx, "client balances recomputed",
		"client_id", client.ID,
		"rmb", balances.RMB,
		"usd", balances.USD,
		"sdg", balances.SDG,
		"aed", balances.AED,
	)
	return balances, nil
}
