package mysql

import (
	"context"
	"errors"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"github.com/nilebridge/cargoledger/pkg/db"
	"gorm.io/gorm"
)

// txManager 基于 GORM 事务的 TxManager 实现。
// 事务句柄放进 context 向下传递，仓储层通过 getDB 取同一事务。
type txManager struct {
	db *gorm.DB
}

// NewTxManager 创建事务管理器
func NewTxManager(gdb *gorm.DB) domain.TxManager {
	return &txManager{db: gdb}
}

func (m *txManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.TxFromContext(ctx) != nil {
		// 已在事务内，直接复用外层事务
		return fn(ctx)
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(db.ContextWithTx(ctx, tx))
	})
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return mapErr(err, "transaction failed")
}

// getDB 优先取 context 中的事务句柄
func getDB(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return fallback.WithContext(ctx)
}
