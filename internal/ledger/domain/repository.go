// Package domain 账本仓储接口
package domain

import (
	"context"
	"time"
)

// TxManager 事务边界。回调内的所有仓储调用共享同一数据库事务，
// 回调返回错误即整体回滚；行锁随事务上下文传递。
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type ClientRepository interface {
	Save(ctx context.Context, client *Client) error
	GetByID(ctx context.Context, id uint64) (*Client, error)
	GetByCode(ctx context.Context, code string) (*Client, error)
	GetWithLock(ctx context.Context, id uint64) (*Client, error) // 悲观锁获取
	List(ctx context.Context, status *ClientStatus, limit, offset int) ([]*Client, int64, error)
}

type EntryRepository interface {
	Save(ctx context.Context, entry *LedgerEntry) error
	GetByID(ctx context.Context, id uint64) (*LedgerEntry, error)
	GetByTransactionNo(ctx context.Context, txNo string) (*LedgerEntry, error)
	GetWithLock(ctx context.Context, id uint64) (*LedgerEntry, error) // 悲观锁获取
	GetByLoadingID(ctx context.Context, loadingID uint64) (*LedgerEntry, error)
	// ListIncludedByClient 返回客户参与对账的分录（pending/approved）
	ListIncludedByClient(ctx context.Context, clientID uint64) ([]*LedgerEntry, error)
	// ListChildren 返回 parent_transaction_id 指向该分录的子分录
	ListChildren(ctx context.Context, parentID uint64) ([]*LedgerEntry, error)
	ListByClient(ctx context.Context, clientID uint64, entryType *EntryType, limit, offset int) ([]*LedgerEntry, int64, error)
	HardDelete(ctx context.Context, id uint64) error
}

type CashboxRepository interface {
	// Append 在钱箱累计行的排他锁下计算时点快照并追加流水，
	// 跨客户的并发追加在此串行化
	Append(ctx context.Context, movement *CashboxMovement) error
	ListAll(ctx context.Context) ([]*CashboxMovement, error)
	List(ctx context.Context, from, to *time.Time, limit, offset int) ([]*CashboxMovement, int64, error)
	DeleteByEntryID(ctx context.Context, entryID uint64) error
	SaveAll(ctx context.Context, movements []*CashboxMovement) error
	// ResetTotals 快照重建后回写钱箱累计行
	ResetTotals(ctx context.Context, balances Amounts) error
}

type RateRepository interface {
	RateSource
	// Upsert 同币种对最新覆盖，同时删除反向对，保证权威来源唯一
	Upsert(ctx context.Context, rate *ExchangeRate) error
	ListAll(ctx context.Context) ([]*ExchangeRate, error)
}

// ActivityRecorder 审计日志落地接口。写入是尽力而为：
// 失败只记日志，绝不中断账本事务。
type ActivityRecorder interface {
	Record(ctx context.Context, action, actorID, description, refTable string, refID uint64)
}

// EventPublisher 领域事件发布接口
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}
