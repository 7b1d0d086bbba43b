package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// RateSource 汇率读取接口，由仓储或内存存根实现
type RateSource interface {
	GetActiveRate(ctx context.Context, pair string) (*ExchangeRate, error)
}

// Converter 币种换算器。所有汇率运算走 decimal，杜绝浮点累积漂移。
type Converter struct {
	rates RateSource
}

// NewConverter 创建换算器
func NewConverter(rates RateSource) *Converter {
	return &Converter{rates: rates}
}

// GetRate 查询 from->to 汇率：优先直接币种对，缺失时取反向对的倒数。
// 两者都不存在返回 RATE_NOT_FOUND。
func (c *Converter) GetRate(ctx context.Context, from, to Currency) (decimal.Decimal, error) {
	if !from.Valid() || !to.Valid() {
		return decimal.Zero, NewError(CodeValidation, "unsupported currency pair %s_%s", from, to)
	}
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	direct, err := c.rates.GetActiveRate(ctx, RatePair(from, to))
	if err == nil && direct != nil {
		return direct.Rate, nil
	}
	if err != nil && !IsCode(err, CodeNotFound) {
		return decimal.Zero, err
	}

	inverse, err := c.rates.GetActiveRate(ctx, RatePair(to, from))
	if err != nil {
		if IsCode(err, CodeNotFound) {
			return decimal.Zero, NewError(CodeRateNotFound, "no rate configured for %s_%s or %s_%s", from, to, to, from)
		}
		return decimal.Zero, err
	}
	if inverse == nil || !inverse.Rate.IsPositive() {
		return decimal.Zero, NewError(CodeRateNotFound, "no usable rate for %s_%s", from, to)
	}
	return decimal.NewFromInt(1).Div(inverse.Rate), nil
}

// Convert 将 amount 从 from 换算到 to。
// from == to 属于平凡换算，不查汇率直接原样返回。
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to Currency) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, NewError(CodeValidation, "amount must be positive, got %s", amount)
	}
	if from == to {
		return amount, nil
	}
	rate, err := c.GetRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}
