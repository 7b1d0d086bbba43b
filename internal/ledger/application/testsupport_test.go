package application

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
)

// memStore 内存账本存储，镜像 MySQL 仓储的读写语义：
// 读返回副本，写存副本，事务失败时整体回滚到快照。
type memStore struct {
	txMu sync.Mutex

	clients       map[uint64]*domain.Client
	entries       map[uint64]*domain.LedgerEntry
	movements     []*domain.CashboxMovement
	cashboxTotals domain.Amounts
	rates         map[string]*domain.ExchangeRate
	nextID        uint64

	failCashboxSave bool
}

func newMemStore() *memStore {
	return &memStore{
		clients:       make(map[uint64]*domain.Client),
		entries:       make(map[uint64]*domain.LedgerEntry),
		cashboxTotals: domain.ZeroAmounts(),
		rates:         make(map[string]*domain.ExchangeRate),
	}
}

func (s *memStore) genID() uint64 {
	s.nextID++
	return s.nextID
}

type storeSnapshot struct {
	clients       map[uint64]*domain.Client
	entries       map[uint64]*domain.LedgerEntry
	movements     []*domain.CashboxMovement
	cashboxTotals domain.Amounts
	rates         map[string]*domain.ExchangeRate
	nextID        uint64
}

func cloneClient(c *domain.Client) *domain.Client {
	cp := *c
	return &cp
}

func cloneEntry(e *domain.LedgerEntry) *domain.LedgerEntry {
	cp := *e
	return &cp
}

func cloneMovement(m *domain.CashboxMovement) *domain.CashboxMovement {
	cp := *m
	return &cp
}

func (s *memStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		clients:       make(map[uint64]*domain.Client, len(s.clients)),
		entries:       make(map[uint64]*domain.LedgerEntry, len(s.entries)),
		cashboxTotals: s.cashboxTotals,
		rates:         make(map[string]*domain.ExchangeRate, len(s.rates)),
		nextID:        s.nextID,
	}
	for id, c := range s.clients {
		snap.clients[id] = cloneClient(c)
	}
	for id, e := range s.entries {
		snap.entries[id] = cloneEntry(e)
	}
	for _, m := range s.movements {
		snap.movements = append(snap.movements, cloneMovement(m))
	}
	for pair, r := range s.rates {
		cp := *r
		snap.rates[pair] = &cp
	}
	return snap
}

func (s *memStore) restore(snap storeSnapshot) {
	s.clients = snap.clients
	s.entries = snap.entries
	s.movements = snap.movements
	s.cashboxTotals = snap.cashboxTotals
	s.rates = snap.rates
	s.nextID = snap.nextID
}

// memTxManager 事务互斥串行执行，模拟行锁；失败回滚到快照
type memTxManager struct {
	store *memStore
}

func (m *memTxManager) Transaction(_ context.Context, fn func(ctx context.Context) error) error {
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	snap := m.store.snapshot()
	if err := fn(context.Background()); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

// --- 客户仓储 ---

type memClientRepo struct {
	store *memStore
}

func (r *memClientRepo) Save(_ context.Context, client *domain.Client) error {
	if client.ID == 0 {
		client.ID = r.store.genID()
	}
	r.store.clients[client.ID] = cloneClient(client)
	return nil
}

func (r *memClientRepo) GetByID(_ context.Context, id uint64) (*domain.Client, error) {
	c, ok := r.store.clients[id]
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "client %d not found", id)
	}
	return cloneClient(c), nil
}

func (r *memClientRepo) GetByCode(_ context.Context, code string) (*domain.Client, error) {
	for _, c := range r.store.clients {
		if c.Code == code {
			return cloneClient(c), nil
		}
	}
	return nil, domain.NewError(domain.CodeNotFound, "client %s not found", code)
}

func (r *memClientRepo) GetWithLock(ctx context.Context, id uint64) (*domain.Client, error) {
	return r.GetByID(ctx, id)
}

func (r *memClientRepo) List(_ context.Context, status *domain.ClientStatus, limit, offset int) ([]*domain.Client, int64, error) {
	var all []*domain.Client
	for _, c := range r.store.clients {
		if status != nil && c.Status != *status {
			continue
		}
		all = append(all, cloneClient(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// --- 分录仓储 ---

type memEntryRepo struct {
	store *memStore
}

func (r *memEntryRepo) Save(_ context.Context, entry *domain.LedgerEntry) error {
	if entry.ID == 0 {
		entry.ID = r.store.genID()
	}
	r.store.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *memEntryRepo) GetByID(_ context.Context, id uint64) (*domain.LedgerEntry, error) {
	e, ok := r.store.entries[id]
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "entry %d not found", id)
	}
	return cloneEntry(e), nil
}

func (r *memEntryRepo) GetByTransactionNo(_ context.Context, txNo string) (*domain.LedgerEntry, error) {
	for _, e := range r.store.entries {
		if e.TransactionNo == txNo {
			return cloneEntry(e), nil
		}
	}
	return nil, domain.NewError(domain.CodeNotFound, "entry %s not found", txNo)
}

func (r *memEntryRepo) GetWithLock(ctx context.Context, id uint64) (*domain.LedgerEntry, error) {
	return r.GetByID(ctx, id)
}

func (r *memEntryRepo) GetByLoadingID(_ context.Context, loadingID uint64) (*domain.LedgerEntry, error) {
	for _, e := range r.store.entries {
		if e.LoadingID != nil && *e.LoadingID == loadingID &&
			e.EntryType == domain.EntryTypeClaim && e.Status != domain.EntryStatusCancelled {
			return cloneEntry(e), nil
		}
	}
	return nil, domain.NewError(domain.CodeNotFound, "claim for loading %d not found", loadingID)
}

func (r *memEntryRepo) sortedByID(filter func(*domain.LedgerEntry) bool) []*domain.LedgerEntry {
	var out []*domain.LedgerEntry
	for _, e := range r.store.entries {
		if filter(e) {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memEntryRepo) ListIncludedByClient(_ context.Context, clientID uint64) ([]*domain.LedgerEntry, error) {
	return r.sortedByID(func(e *domain.LedgerEntry) bool {
		return e.ClientID == clientID && e.Status.Included()
	}), nil
}

func (r *memEntryRepo) ListChildren(_ context.Context, parentID uint64) ([]*domain.LedgerEntry, error) {
	return r.sortedByID(func(e *domain.LedgerEntry) bool {
		return e.ParentTransactionID != nil && *e.ParentTransactionID == parentID
	}), nil
}

func (r *memEntryRepo) ListByClient(_ context.Context, clientID uint64, entryType *domain.EntryType, limit, offset int) ([]*domain.LedgerEntry, int64, error) {
	all := r.sortedByID(func(e *domain.LedgerEntry) bool {
		if e.ClientID != clientID {
			return false
		}
		return entryType == nil || e.EntryType == *entryType
	})

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *memEntryRepo) HardDelete(_ context.Context, id uint64) error {
	delete(r.store.entries, id)
	return nil
}

// --- 钱箱仓储 ---

type memCashboxRepo struct {
	store *memStore
}

// Append 镜像 MySQL 实现的累计行语义：快照基于累计值计算并回写
func (r *memCashboxRepo) Append(_ context.Context, movement *domain.CashboxMovement) error {
	if r.store.failCashboxSave {
		return domain.NewError(domain.CodePersistence, "cashbox write failed")
	}
	if movement.ID == 0 {
		movement.ID = r.store.genID()
	}
	movement.ApplyPrevious(r.store.cashboxTotals)
	r.store.movements = append(r.store.movements, cloneMovement(movement))
	r.store.cashboxTotals = movement.BalancesAfter()
	return nil
}

func (r *memCashboxRepo) ResetTotals(_ context.Context, balances domain.Amounts) error {
	r.store.cashboxTotals = balances
	return nil
}

func (r *memCashboxRepo) ListAll(_ context.Context) ([]*domain.CashboxMovement, error) {
	out := make([]*domain.CashboxMovement, 0, len(r.store.movements))
	for _, m := range r.store.movements {
		out = append(out, cloneMovement(m))
	}
	return out, nil
}

func (r *memCashboxRepo) List(_ context.Context, from, to *time.Time, limit, offset int) ([]*domain.CashboxMovement, int64, error) {
	var all []*domain.CashboxMovement
	for _, m := range r.store.movements {
		if from != nil && m.MovementDate.Before(*from) {
			continue
		}
		if to != nil && m.MovementDate.After(*to) {
			continue
		}
		all = append(all, cloneMovement(m))
	}

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *memCashboxRepo) DeleteByEntryID(_ context.Context, entryID uint64) error {
	var kept []*domain.CashboxMovement
	for _, m := range r.store.movements {
		if m.EntryID != nil && *m.EntryID == entryID {
			continue
		}
		kept = append(kept, m)
	}
	r.store.movements = kept
	return nil
}

func (r *memCashboxRepo) SaveAll(_ context.Context, movements []*domain.CashboxMovement) error {
	for _, m := range movements {
		for i, existing := range r.store.movements {
			if existing.ID == m.ID {
				r.store.movements[i] = cloneMovement(m)
				break
			}
		}
	}
	return nil
}

// --- 汇率仓储 ---

type memRateRepo struct {
	store *memStore
}

func (r *memRateRepo) GetActiveRate(_ context.Context, pair string) (*domain.ExchangeRate, error) {
	rate, ok := r.store.rates[pair]
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "rate %s not found", pair)
	}
	cp := *rate
	return &cp, nil
}

func (r *memRateRepo) Upsert(_ context.Context, rate *domain.ExchangeRate) error {
	if rate.ID == 0 {
		rate.ID = r.store.genID()
	}
	cp := *rate
	r.store.rates[rate.Pair] = &cp
	delete(r.store.rates, inverseOf(rate.Pair))
	return nil
}

func inverseOf(pair string) string {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '_' {
			return pair[i+1:] + "_" + pair[:i]
		}
	}
	return pair
}

func (r *memRateRepo) ListAll(_ context.Context) ([]*domain.ExchangeRate, error) {
	var out []*domain.ExchangeRate
	for _, rate := range r.store.rates {
		cp := *rate
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out, nil
}

// --- 审计与事件 ---

type recordedActivity struct {
	Action   string
	RefTable string
	RefID    uint64
}

type memActivityRecorder struct {
	mu      sync.Mutex
	records []recordedActivity
}

func (r *memActivityRecorder) Record(_ context.Context, action, _, _, refTable string, refID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, recordedActivity{Action: action, RefTable: refTable, RefID: refID})
}

type capturedEvent struct {
	Topic string
	Value any
}

type memPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *memPublisher) Publish(_ context.Context, topic, _ string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{Topic: topic, Value: value})
	return nil
}

// --- 测试装配 ---

type fixture struct {
	store    *memStore
	txm      domain.TxManager
	clients  *memClientRepo
	entries  *memEntryRepo
	cashbox  *memCashboxRepo
	rates    *memRateRepo
	audit    *memActivityRecorder
	events   *memPublisher
	engine   *ReconciliationEngine
	payments *PaymentService
	loadings *LoadingService
	queries  *QueryService
	admin    *AdminService
}

func newFixture() *fixture {
	store := newMemStore()
	f := &fixture{
		store:   store,
		txm:     &memTxManager{store: store},
		clients: &memClientRepo{store: store},
		entries: &memEntryRepo{store: store},
		cashbox: &memCashboxRepo{store: store},
		rates:   &memRateRepo{store: store},
		audit:   &memActivityRecorder{},
		events:  &memPublisher{},
	}

	log := slog.Default()
	f.engine = NewReconciliationEngine(f.txm, f.clients, f.entries, f.events, log)
	f.payments = NewPaymentService(f.txm, f.clients, f.entries, f.cashbox, f.engine, f.audit, f.events, 0, log)
	converter := domain.NewConverter(f.rates)
	f.loadings = NewLoadingService(f.txm, f.clients, f.entries, f.engine, converter, f.audit, f.events, log)
	f.queries = NewQueryService(f.clients, f.entries, f.cashbox, f.rates, log)
	f.admin = NewAdminService(f.txm, f.clients, f.rates, f.audit, log)
	return f
}

func (f *fixture) seedClient(code string) *domain.Client {
	client := domain.NewClient(code, "Client "+code, "")
	if err := f.clients.Save(context.Background(), client); err != nil {
		panic(err)
	}
	return client
}

func (f *fixture) seedRate(pair string, rate string) {
	f.store.rates[pair] = &domain.ExchangeRate{
		ID:     f.store.genID(),
		Pair:   pair,
		Rate:   decimal.RequireFromString(rate),
		Source: domain.RateSourceManual,
	}
}

func (f *fixture) clientBalances(id uint64) domain.Amounts {
	c, err := f.clients.GetByID(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return c.Balances()
}
