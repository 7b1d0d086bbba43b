package mysql

import (
	"context"
	"fmt"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// entryRepository 账本分录仓储实现
type entryRepository struct {
	db *gorm.DB
}

// NewEntryRepository 创建分录仓储
func NewEntryRepository(db *gorm.DB) domain.EntryRepository {
	return &entryRepository{db: db}
}

func (r *entryRepository) Save(ctx context.Context, entry *domain.LedgerEntry) error {
	if err := getDB(ctx, r.db).Save(entry).Error; err != nil {
		return mapErr(err, fmt.Sprintf("entry %d not found", entry.ID))
	}
	return nil
}

func (r *entryRepository) GetByID(ctx context.Context, id uint64) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	if err := getDB(ctx, r.db).First(&entry, id).Error; err != nil {
		return nil, mapErr(err, fmt.Sprintf("entry %d not found", id))
	}
	return &entry, nil
}

func (r *entryRepository) GetByTransactionNo(ctx context.Context, txNo string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	if err := getDB(ctx, r.db).Where("transaction_no = ?", txNo).First(&entry).Error; err != nil {
		return nil, mapErr(err, fmt.Sprintf("entry %s not found", txNo))
	}
	return &entry, nil
}

// GetWithLock 悲观锁获取分录行，必须在事务内调用
func (r *entryRepository) GetWithLock(ctx context.Context, id uint64) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := getDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&entry, id).Error
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("entry %d not found", id))
	}
	return &entry, nil
}

func (r *entryRepository) GetByLoadingID(ctx context.Context, loadingID uint64) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := getDB(ctx, r.db).
		Where("loading_id = ? AND entry_type = ?", loadingID, domain.EntryTypeClaim).
		Where("status <> ?", domain.EntryStatusCancelled).
		First(&entry).Error
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("claim for loading %d not found", loadingID))
	}
	return &entry, nil
}

func (r *entryRepository) ListIncludedByClient(ctx context.Context, clientID uint64) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := getDB(ctx, r.db).
		Where("client_id = ?", clientID).
		Where("status IN ?", []domain.EntryStatus{domain.EntryStatusPending, domain.EntryStatusApproved}).
		Order("transaction_date, id").
		Find(&entries).Error
	if err != nil {
		return nil, mapErr(err, "entries not found")
	}
	return entries, nil
}

func (r *entryRepository) ListChildren(ctx context.Context, parentID uint64) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := getDB(ctx, r.db).
		Where("parent_transaction_id = ?", parentID).
		Order("id").
		Find(&entries).Error
	if err != nil {
		return nil, mapErr(err, "entries not found")
	}
	return entries, nil
}

func (r *entryRepository) ListByClient(ctx context.Context, clientID uint64, entryType *domain.EntryType, limit, offset int) ([]*domain.LedgerEntry, int64, error) {
	query := getDB(ctx, r.db).Model(&domain.LedgerEntry{}).Where("client_id = ?", clientID)
	if entryType != nil {
		query = query.Where("entry_type = ?", *entryType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, mapErr(err, "entries not found")
	}

	var entries []*domain.LedgerEntry
	if err := query.Order("transaction_date DESC, id DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, 0, mapErr(err, "entries not found")
	}
	return entries, total, nil
}

// HardDelete 物理删除分录，绕过软删除
func (r *entryRepository) HardDelete(ctx context.Context, id uint64) error {
	if err := getDB(ctx, r.db).Unscoped().Delete(&domain.LedgerEntry{}, id).Error; err != nil {
		return mapErr(err, fmt.Sprintf("entry %d not found", id))
	}
	return nil
}
