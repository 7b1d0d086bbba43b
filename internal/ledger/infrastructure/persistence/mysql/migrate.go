package mysql

import (
	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"gorm.io/gorm"
)

// AutoMigrate 同步账本相关表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Client{},
		&domain.LedgerEntry{},
		&domain.CashboxMovement{},
		&domain.CashboxTotals{},
		&domain.ExchangeRate{},
		&ActivityLog{},
	)
}
