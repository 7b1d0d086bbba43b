package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType 钱箱流水方向
type MovementType string

const (
	MovementIn  MovementType = "in"
	MovementOut MovementType = "out"
)

// MovementCategory 流水类别
type MovementCategory string

const (
	CategoryPaymentReceived MovementCategory = "payment_received"
	CategoryClaimSettlement MovementCategory = "claim_settlement"
	CategoryRefundPaid      MovementCategory = "refund_paid"
)

// CashboxMovement 钱箱流水。纯追加日志：插入后不再修改，
// 仅在父分录被硬删除时随之删除并触发余额重建。
// balance_after_<ccy> 是第 N 条流水时点的四币种累计快照。
type CashboxMovement struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EntryID      *uint64          `gorm:"column:entry_id;index" json:"entry_id,omitempty"`
	MovementDate time.Time        `gorm:"column:movement_date;index;not null" json:"movement_date"`
	MovementType MovementType     `gorm:"column:movement_type;type:varchar(8);not null" json:"movement_type"`
	Category     MovementCategory `gorm:"column:category;type:varchar(32);not null" json:"category"`

	AmountRMB decimal.Decimal `gorm:"column:amount_rmb;type:decimal(20,4);not null;default:0" json:"amount_rmb"`
	AmountUSD decimal.Decimal `gorm:"column:amount_usd;type:decimal(20,4);not null;default:0" json:"amount_usd"`
	AmountSDG decimal.Decimal `gorm:"column:amount_sdg;type:decimal(20,4);not null;default:0" json:"amount_sdg"`
	AmountAED decimal.Decimal `gorm:"column:amount_aed;type:decimal(20,4);not null;default:0" json:"amount_aed"`

	BalanceAfterRMB decimal.Decimal `gorm:"column:balance_after_rmb;type:decimal(20,4);not null;default:0" json:"balance_after_rmb"`
	BalanceAfterUSD decimal.Decimal `gorm:"column:balance_after_usd;type:decimal(20,4);not null;default:0" json:"balance_after_usd"`
	BalanceAfterSDG decimal.Decimal `gorm:"column:balance_after_sdg;type:decimal(20,4);not null;default:0" json:"balance_after_sdg"`
	BalanceAfterAED decimal.Decimal `gorm:"column:balance_after_aed;type:decimal(20,4);not null;default:0" json:"balance_after_aed"`

	Remark string `gorm:"column:remark;type:varchar(255)" json:"remark"`
}

// TableName 表名
func (CashboxMovement) TableName() string {
	return "cashbox_movements"
}

// Amounts 流水金额四元组
func (m *CashboxMovement) Amounts() Amounts {
	return Amounts{RMB: m.AmountRMB, USD: m.AmountUSD, SDG: m.AmountSDG, AED: m.AmountAED}
}

// BalancesAfter 时点快照四元组
func (m *CashboxMovement) BalancesAfter() Amounts {
	return Amounts{RMB: m.BalanceAfterRMB, USD: m.BalanceAfterUSD, SDG: m.BalanceAfterSDG, AED: m.BalanceAfterAED}
}

// signedAmounts in 记正、out 记负
func (m *CashboxMovement) signedAmounts() Amounts {
	if m.MovementType == MovementOut {
		return m.Amounts().Neg()
	}
	return m.Amounts()
}

// NewCashboxMovement 构造流水。时点快照不在此处计算：
// 追加时仓储先锁钱箱累计行再调用 ApplyPrevious，
// 否则并发快照读会让两条流水基于同一个前值分叉。
func NewCashboxMovement(entryID *uint64, mType MovementType, category MovementCategory, amounts Amounts, date time.Time, remark string) *CashboxMovement {
	return &CashboxMovement{
		EntryID:      entryID,
		MovementDate: date,
		MovementType: mType,
		Category:     category,
		AmountRMB:    amounts.RMB,
		AmountUSD:    amounts.USD,
		AmountSDG:    amounts.SDG,
		AmountAED:    amounts.AED,
		Remark:       remark,
	}
}

// ApplyPrevious 基于上一条流水的快照计算本条的 balance_after。
// prev 传全零表示这是第一条流水。
func (m *CashboxMovement) ApplyPrevious(prev Amounts) {
	m.SetBalancesAfter(prev.Add(m.signedAmounts()))
}

// SetBalancesAfter 重建运行余额时使用
func (m *CashboxMovement) SetBalancesAfter(b Amounts) {
	m.BalanceAfterRMB = b.RMB
	m.BalanceAfterUSD = b.USD
	m.BalanceAfterSDG = b.SDG
	m.BalanceAfterAED = b.AED
}

// CashboxTotals 钱箱累计单行表。每次追加先对此行取排他锁，
// 把不同客户的并发收款在钱箱上串行化，保证 balance_after 链不分叉。
type CashboxTotals struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	UpdatedAt time.Time `json:"updated_at"`

	BalanceRMB decimal.Decimal `gorm:"column:balance_rmb;type:decimal(20,4);not null;default:0" json:"balance_rmb"`
	BalanceUSD decimal.Decimal `gorm:"column:balance_usd;type:decimal(20,4);not null;default:0" json:"balance_usd"`
	BalanceSDG decimal.Decimal `gorm:"column:balance_sdg;type:decimal(20,4);not null;default:0" json:"balance_sdg"`
	BalanceAED decimal.Decimal `gorm:"column:balance_aed;type:decimal(20,4);not null;default:0" json:"balance_aed"`
}

// TableName 表名
func (CashboxTotals) TableName() string {
	return "cashbox_totals"
}

// Balances 累计四元组
func (t *CashboxTotals) Balances() Amounts {
	return Amounts{RMB: t.BalanceRMB, USD: t.BalanceUSD, SDG: t.BalanceSDG, AED: t.BalanceAED}
}

// SetBalances 回写累计四元组
func (t *CashboxTotals) SetBalances(b Amounts) {
	t.BalanceRMB = b.RMB
	t.BalanceUSD = b.USD
	t.BalanceSDG = b.SDG
	t.BalanceAED = b.AED
}

// RebuildRunningBalances 按 movement_date、插入顺序重放流水，重算每条快照。
// 返回需要持久化的被修正流水。
func RebuildRunningBalances(movements []*CashboxMovement) []*CashboxMovement {
	running := ZeroAmounts()
	var dirty []*CashboxMovement
	for _, m := range movements {
		running = running.Add(m.signedAmounts())
		if !m.BalancesAfter().Sub(running).IsZero() {
			m.SetBalancesAfter(running)
			dirty = append(dirty, m)
		}
	}
	return dirty
}
