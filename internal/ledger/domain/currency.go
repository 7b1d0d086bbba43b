// Package domain 多币种账本领域层
// 生成摘要：
// 1) 定义四币种金额值对象与客户聚合根
// 2) 定义账本分录（债权/收款/部分收款）实体及其领域逻辑
// 3) 定义钱箱流水、汇率与换算器
package domain

import (
	"github.com/shopspring/decimal"
)

// Currency 币种代码
type Currency string

const (
	CurrencyRMB Currency = "RMB" // 人民币，债权记账基准币种
	CurrencyUSD Currency = "USD"
	CurrencySDG Currency = "SDG"
	CurrencyAED Currency = "AED"
)

// AllCurrencies 支持的币种，顺序固定
var AllCurrencies = []Currency{CurrencyRMB, CurrencyUSD, CurrencySDG, CurrencyAED}

// Valid 是否为支持的币种
func (c Currency) Valid() bool {
	switch c {
	case CurrencyRMB, CurrencyUSD, CurrencySDG, CurrencyAED:
		return true
	}
	return false
}

// Amounts 四币种金额四元组
type Amounts struct {
	RMB decimal.Decimal `json:"rmb"`
	USD decimal.Decimal `json:"usd"`
	SDG decimal.Decimal `json:"sdg"`
	AED decimal.Decimal `json:"aed"`
}

// ZeroAmounts 全零金额
func ZeroAmounts() Amounts {
	return Amounts{
		RMB: decimal.Zero,
		USD: decimal.Zero,
		SDG: decimal.Zero,
		AED: decimal.Zero,
	}
}

// Get 按币种取值
func (a Amounts) Get(c Currency) decimal.Decimal {
	switch c {
	case CurrencyRMB:
		return a.RMB
	case CurrencyUSD:
		return a.USD
	case CurrencySDG:
		return a.SDG
	case CurrencyAED:
		return a.AED
	}
	return decimal.Zero
}

// Set 按币种赋值，返回新四元组
func (a Amounts) Set(c Currency, v decimal.Decimal) Amounts {
	switch c {
	case CurrencyRMB:
		a.RMB = v
	case CurrencyUSD:
		a.USD = v
	case CurrencySDG:
		a.SDG = v
	case CurrencyAED:
		a.AED = v
	}
	return a
}

// Add 逐币种相加
func (a Amounts) Add(b Amounts) Amounts {
	return Amounts{
		RMB: a.RMB.Add(b.RMB),
		USD: a.USD.Add(b.USD),
		SDG: a.SDG.Add(b.SDG),
		AED: a.AED.Add(b.AED),
	}
}

// Sub 逐币种相减
func (a Amounts) Sub(b Amounts) Amounts {
	return Amounts{
		RMB: a.RMB.Sub(b.RMB),
		USD: a.USD.Sub(b.USD),
		SDG: a.SDG.Sub(b.SDG),
		AED: a.AED.Sub(b.AED),
	}
}

// Neg 逐币种取反
func (a Amounts) Neg() Amounts {
	return Amounts{
		RMB: a.RMB.Neg(),
		USD: a.USD.Neg(),
		SDG: a.SDG.Neg(),
		AED: a.AED.Neg(),
	}
}

// IsZero 四币种是否全为零
func (a Amounts) IsZero() bool {
	return a.RMB.IsZero() && a.USD.IsZero() && a.SDG.IsZero() && a.AED.IsZero()
}

// AnyPositive 是否至少一个币种大于零
func (a Amounts) AnyPositive() bool {
	for _, c := range AllCurrencies {
		if a.Get(c).IsPositive() {
			return true
		}
	}
	return false
}

// AnyNegative 是否存在小于零的币种
func (a Amounts) AnyNegative() bool {
	for _, c := range AllCurrencies {
		if a.Get(c).IsNegative() {
			return true
		}
	}
	return false
}

// Exceeds 是否存在某币种大于 b 对应币种
func (a Amounts) Exceeds(b Amounts) bool {
	for _, c := range AllCurrencies {
		if a.Get(c).GreaterThan(b.Get(c)) {
			return true
		}
	}
	return false
}

// AllNonPositive 四币种是否全部小于等于零
func (a Amounts) AllNonPositive() bool {
	for _, c := range AllCurrencies {
		if a.Get(c).IsPositive() {
			return false
		}
	}
	return true
}
