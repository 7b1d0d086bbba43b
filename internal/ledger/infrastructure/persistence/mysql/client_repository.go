package mysql

import (
	"context"
	"fmt"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// clientRepository 客户仓储实现
type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository 创建客户仓储
func NewClientRepository(db *gorm.DB) domain.ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) Save(ctx context.Context, client *domain.Client) error {
	if err := getDB(ctx, r.db).Save(client).Error; err != nil {
		return mapErr(err, fmt.Sprintf("client %d not found", client.ID))
	}
	return nil
}

func (r *clientRepository) GetByID(ctx context.Context, id uint64) (*domain.Client, error) {
	var client domain.Client
	if err := getDB(ctx, r.db).First(&client, id).Error; err != nil {
		return nil, mapErr(err, fmt.Sprintf("client %d not found", id))
	}
	return &client, nil
}

func (r *clientRepository) GetByCode(ctx context.Context, code string) (*domain.Client, error) {
	var client domain.Client
	if err := getDB(ctx, r.db).Where("code = ?", code).First(&client).Error; err != nil {
		return nil, mapErr(err, fmt.Sprintf("client %s not found", code))
	}
	return &client, nil
}

// GetWithLock 悲观锁获取客户行，必须在事务内调用
func (r *clientRepository) GetWithLock(ctx context.Context, id uint64) (*domain.Client, error) {
	var client domain.Client
	err := getDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&client, id).Error
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("client %d not found", id))
	}
	return &client, nil
}

func (r *clientRepository) List(ctx context.Context, status *domain.ClientStatus, limit, offset int) ([]*domain.Client, int64, error) {
	query := getDB(ctx, r.db).Model(&domain.Client{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, mapErr(err, "clients not found")
	}

	var clients []*domain.Client
	if err := query.Order("code").Limit(limit).Offset(offset).Find(&clients).Error; err != nil {
		return nil, 0, mapErr(err, "clients not found")
	}
	return clients, total, nil
}
