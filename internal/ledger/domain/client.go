package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ClientStatus 客户状态
type ClientStatus int8

const (
	ClientStatusActive   ClientStatus = 1
	ClientStatusInactive ClientStatus = 2
)

// Client 客户聚合根。四币种余额字段是派生缓存：
// 唯一合法写入方是对账引擎，报表与接口层只读。
type Client struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Code       string       `gorm:"column:code;type:varchar(32);uniqueIndex;not null" json:"code"`
	Name       string       `gorm:"column:name;type:varchar(128);not null" json:"name"`
	ArabicName string       `gorm:"column:arabic_name;type:varchar(128)" json:"arabic_name"`
	Status     ClientStatus `gorm:"column:status;type:tinyint;not null;default:1" json:"status"`

	// 缓存余额(负数=客户欠款，正数=客户溢付)
	BalanceRMB decimal.Decimal `gorm:"column:balance_rmb;type:decimal(20,4);not null;default:0" json:"balance_rmb"`
	BalanceUSD decimal.Decimal `gorm:"column:balance_usd;type:decimal(20,4);not null;default:0" json:"balance_usd"`
	BalanceSDG decimal.Decimal `gorm:"column:balance_sdg;type:decimal(20,4);not null;default:0" json:"balance_sdg"`
	BalanceAED decimal.Decimal `gorm:"column:balance_aed;type:decimal(20,4);not null;default:0" json:"balance_aed"`
}

// TableName 表名
func (Client) TableName() string {
	return "clients"
}

// NewClient 创建客户
func NewClient(code, name, arabicName string) *Client {
	return &Client{
		Code:       code,
		Name:       name,
		ArabicName: arabicName,
		Status:     ClientStatusActive,
		BalanceRMB: decimal.Zero,
		BalanceUSD: decimal.Zero,
		BalanceSDG: decimal.Zero,
		BalanceAED: decimal.Zero,
	}
}

// IsActive 客户是否可交易
func (c *Client) IsActive() bool {
	return c.Status == ClientStatusActive
}

// Balances 以四元组返回缓存余额
func (c *Client) Balances() Amounts {
	return Amounts{
		RMB: c.BalanceRMB,
		USD: c.BalanceUSD,
		SDG: c.BalanceSDG,
		AED: c.BalanceAED,
	}
}

// SetBalances 写入缓存余额。仅供对账引擎调用。
func (c *Client) SetBalances(b Amounts) {
	c.BalanceRMB = b.RMB
	c.BalanceUSD = b.USD
	c.BalanceSDG = b.SDG
	c.BalanceAED = b.AED
}

// Deactivate 停用客户
func (c *Client) Deactivate() {
	c.Status = ClientStatusInactive
}

// Activate 启用客户
func (c *Client) Activate() {
	c.Status = ClientStatusActive
}
