package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cashboxTotalsID 累计行固定主键
const cashboxTotalsID = 1

// cashboxRepository 钱箱流水仓储实现
type cashboxRepository struct {
	db *gorm.DB
}

// NewCashboxRepository 创建钱箱仓储
func NewCashboxRepository(db *gorm.DB) domain.CashboxRepository {
	return &cashboxRepository{db: db}
}

// Append 先对 cashbox_totals 行取排他锁再写流水。快照读不加锁时，
// 两个只锁各自客户行的并发事务会基于同一个前值各算各的 balance_after，
// 提交后运行余额链分叉。
func (r *cashboxRepository) Append(ctx context.Context, movement *domain.CashboxMovement) error {
	db := getDB(ctx, r.db)

	totals, err := r.lockTotals(db)
	if err != nil {
		return err
	}

	movement.ApplyPrevious(totals.Balances())
	if err := db.Create(movement).Error; err != nil {
		return mapErr(err, "cashbox movement not found")
	}

	totals.SetBalances(movement.BalancesAfter())
	if err := db.Save(totals).Error; err != nil {
		return mapErr(err, "cashbox totals not found")
	}
	return nil
}

// lockTotals 取累计行并加排他锁，首次追加时先播种全零行
func (r *cashboxRepository) lockTotals(db *gorm.DB) (*domain.CashboxTotals, error) {
	var totals domain.CashboxTotals
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&totals, cashboxTotalsID).Error
	if err == nil {
		return &totals, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mapErr(err, "cashbox totals not found")
	}

	seed := domain.CashboxTotals{ID: cashboxTotalsID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, mapErr(err, "cashbox totals not found")
	}
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&totals, cashboxTotalsID).Error; err != nil {
		return nil, mapErr(err, "cashbox totals not found")
	}
	return &totals, nil
}

// ResetTotals 硬删除重建快照后，把累计行对齐到最后一条流水
func (r *cashboxRepository) ResetTotals(ctx context.Context, balances domain.Amounts) error {
	totals := domain.CashboxTotals{ID: cashboxTotalsID}
	totals.SetBalances(balances)
	if err := getDB(ctx, r.db).Clauses(clause.OnConflict{UpdateAll: true}).Create(&totals).Error; err != nil {
		return mapErr(err, "cashbox totals not found")
	}
	return nil
}

func (r *cashboxRepository) ListAll(ctx context.Context) ([]*domain.CashboxMovement, error) {
	var movements []*domain.CashboxMovement
	if err := getDB(ctx, r.db).Order("movement_date, id").Find(&movements).Error; err != nil {
		return nil, mapErr(err, "cashbox movements not found")
	}
	return movements, nil
}

func (r *cashboxRepository) List(ctx context.Context, from, to *time.Time, limit, offset int) ([]*domain.CashboxMovement, int64, error) {
	query := getDB(ctx, r.db).Model(&domain.CashboxMovement{})
	if from != nil {
		query = query.Where("movement_date >= ?", *from)
	}
	if to != nil {
		query = query.Where("movement_date <= ?", *to)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, mapErr(err, "cashbox movements not found")
	}

	var movements []*domain.CashboxMovement
	if err := query.Order("movement_date DESC, id DESC").Limit(limit).Offset(offset).Find(&movements).Error; err != nil {
		return nil, 0, mapErr(err, "cashbox movements not found")
	}
	return movements, total, nil
}

func (r *cashboxRepository) DeleteByEntryID(ctx context.Context, entryID uint64) error {
	if err := getDB(ctx, r.db).Where("entry_id = ?", entryID).Delete(&domain.CashboxMovement{}).Error; err != nil {
		return mapErr(err, fmt.Sprintf("cashbox movements for entry %d not found", entryID))
	}
	return nil
}

func (r *cashboxRepository) SaveAll(ctx context.Context, movements []*domain.CashboxMovement) error {
	db := getDB(ctx, r.db)
	for _, m := range movements {
		if err := db.Save(m).Error; err != nil {
			return mapErr(err, fmt.Sprintf("cashbox movement %d not found", m.ID))
		}
	}
	return nil
}
