package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
)

// QueryService 账本读服务，供外层控制器取余额、对账单与钱箱流水。
// 只读，永不改动缓存余额。
type QueryService struct {
	clients  domain.ClientRepository
	entries  domain.EntryRepository
	cashbox  domain.CashboxRepository
	rates    domain.RateRepository
	cache    BalanceCache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewQueryService 创建读服务
func NewQueryService(
	clients domain.ClientRepository,
	entries domain.EntryRepository,
	cashbox domain.CashboxRepository,
	rates domain.RateRepository,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		clients: clients,
		entries: entries,
		cashbox: cashbox,
		rates:   rates,
		logger:  logger.With("module", "query_service"),
	}
}

// EnableBalanceCache 开启余额读缓存，TTL 内的重复读不再回源数据库。
func (s *QueryService) EnableBalanceCache(cache BalanceCache, ttl time.Duration) {
	s.cache = cache
	s.cacheTTL = ttl
}

// ClientBalances 客户缓存余额
func (s *QueryService) ClientBalances(ctx context.Context, clientID uint64) (*domain.Client, error) {
	if s.cache != nil {
		var cached domain.Client
		hit, err := s.cache.GetJSON(ctx, balanceCacheKey(clientID), &cached)
		if err != nil {
			s.logger.WarnContext(ctx, "balance cache read failed", "client_id", clientID, "error", err)
		} else if hit {
			return &cached, nil
		}
	}

	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, domain.AsError(err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, balanceCacheKey(clientID), client, s.cacheTTL); err != nil {
			s.logger.WarnContext(ctx, "balance cache write failed", "client_id", clientID, "error", err)
		}
	}
	return client, nil
}

// ListClients 客户列表
func (s *QueryService) ListClients(ctx context.Context, status *domain.ClientStatus, page, pageSize int) ([]*domain.Client, int64, error) {
	limit, offset := pagination(page, pageSize)
	clients, total, err := s.clients.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, domain.AsError(err)
	}
	return clients, total, nil
}

// ClientStatement 客户分录对账单
func (s *QueryService) ClientStatement(ctx context.Context, clientID uint64, entryType *domain.EntryType, page, pageSize int) ([]*domain.LedgerEntry, int64, error) {
	limit, offset := pagination(page, pageSize)
	entries, total, err := s.entries.ListByClient(ctx, clientID, entryType, limit, offset)
	if err != nil {
		return nil, 0, domain.AsError(err)
	}
	return entries, total, nil
}

// Entry 按业务单号取分录
func (s *QueryService) Entry(ctx context.Context, transactionNo string) (*domain.LedgerEntry, error) {
	entry, err := s.entries.GetByTransactionNo(ctx, transactionNo)
	if err != nil {
		return nil, domain.AsError(err)
	}
	return entry, nil
}

// CashboxStatement 钱箱流水（含时点快照）
func (s *QueryService) CashboxStatement(ctx context.Context, from, to *time.Time, page, pageSize int) ([]*domain.CashboxMovement, int64, error) {
	limit, offset := pagination(page, pageSize)
	movements, total, err := s.cashbox.List(ctx, from, to, limit, offset)
	if err != nil {
		return nil, 0, domain.AsError(err)
	}
	return movements, total, nil
}

// ListRates 当前生效汇率
func (s *QueryService) ListRates(ctx context.Context) ([]*domain.ExchangeRate, error) {
	rates, err := s.rates.ListAll(ctx)
	if err != nil {
		return nil, domain.AsError(err)
	}
	return rates, nil
}

func pagination(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	return pageSize, (page - 1) * pageSize
}
