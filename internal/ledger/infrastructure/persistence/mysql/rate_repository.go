package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// rateRepository 汇率仓储实现
type rateRepository struct {
	db *gorm.DB
}

// NewRateRepository 创建汇率仓储
func NewRateRepository(db *gorm.DB) domain.RateRepository {
	return &rateRepository{db: db}
}

// GetActiveRate 取币种对当前生效汇率。
// 未配置按查找未命中返回，换算器据此决定是否走反向对。
func (r *rateRepository) GetActiveRate(ctx context.Context, pair string) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	if err := getDB(ctx, r.db).Where("pair = ?", pair).First(&rate).Error; err != nil {
		return nil, mapErr(err, fmt.Sprintf("rate %s not found", pair))
	}
	return &rate, nil
}

// Upsert 写入汇率并删除反向币种对，保证权威来源唯一
func (r *rateRepository) Upsert(ctx context.Context, rate *domain.ExchangeRate) error {
	db := getDB(ctx, r.db)

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pair"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "source", "updated_at"}),
	}).Create(rate).Error
	if err != nil {
		return mapErr(err, fmt.Sprintf("rate %s not found", rate.Pair))
	}

	if err := db.Where("pair = ?", inversePair(rate.Pair)).Delete(&domain.ExchangeRate{}).Error; err != nil {
		return mapErr(err, fmt.Sprintf("rate %s not found", rate.Pair))
	}
	return nil
}

func (r *rateRepository) ListAll(ctx context.Context) ([]*domain.ExchangeRate, error) {
	var rates []*domain.ExchangeRate
	if err := getDB(ctx, r.db).Order("pair").Find(&rates).Error; err != nil {
		return nil, mapErr(err, "rates not found")
	}
	return rates, nil
}

func inversePair(pair string) string {
	parts := strings.SplitN(pair, "_", 2)
	if len(parts) != 2 {
		return pair
	}
	return parts[1] + "_" + parts[0]
}
