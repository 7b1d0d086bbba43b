package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RateSourceType 汇率来源
type RateSourceType string

const (
	RateSourceManual RateSourceType = "manual"
	RateSourceAuto   RateSourceType = "auto"
)

// ExchangeRate 币种对汇率。同一币种对同一时刻只有一条生效记录（最新覆盖）；
// 正反向币种对不会同时作为权威来源，缺直接对时由换算器走倒数。
type ExchangeRate struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Pair   string          `gorm:"column:pair;type:varchar(16);uniqueIndex;not null" json:"pair"`
	Rate   decimal.Decimal `gorm:"column:rate;type:decimal(20,8);not null" json:"rate"`
	Source RateSourceType  `gorm:"column:source;type:varchar(8);not null;default:'manual'" json:"source"`
}

// TableName 表名
func (ExchangeRate) TableName() string {
	return "exchange_rates"
}

// RatePair 组合币种对键，如 "USD_RMB"
func RatePair(from, to Currency) string {
	return fmt.Sprintf("%s_%s", from, to)
}

// NewExchangeRate 创建汇率记录
func NewExchangeRate(from, to Currency, rate decimal.Decimal, source RateSourceType) (*ExchangeRate, error) {
	if !from.Valid() || !to.Valid() {
		return nil, NewError(CodeValidation, "unsupported currency pair %s_%s", from, to)
	}
	if from == to {
		return nil, NewError(CodeValidation, "rate pair must span two currencies")
	}
	if !rate.IsPositive() {
		return nil, NewError(CodeValidation, "rate must be positive, got %s", rate)
	}
	return &ExchangeRate{
		Pair:   RatePair(from, to),
		Rate:   rate,
		Source: source,
	}, nil
}
