package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EntryType 分录类型
type EntryType string

const (
	EntryTypeClaim    EntryType = "expense"  // 债权（货款/运费发票）
	EntryTypePayment  EntryType = "income"   // 收款
	EntryTypeTransfer EntryType = "transfer" // 内部划转
	EntryTypeRefund   EntryType = "refund"   // 退款记录
)

// EntryStatus 分录状态
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusApproved  EntryStatus = "approved"
	EntryStatusCancelled EntryStatus = "cancelled"
	EntryStatusRefunded  EntryStatus = "refunded"
)

// Included 是否计入余额对账（取消与已退款分录排除在外）
func (s EntryStatus) Included() bool {
	return s == EntryStatusPending || s == EntryStatusApproved
}

// LedgerEntry 账本分录。债权分录的 balance_<ccy> 恒等于债权总额减累计收款；
// 收款分录本身不构成债权，balance_* 恒为零。
type LedgerEntry struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	TransactionNo   string      `gorm:"column:transaction_no;type:varchar(32);uniqueIndex;not null" json:"transaction_no"`
	ClientID        uint64      `gorm:"column:client_id;index;not null" json:"client_id"`
	EntryType       EntryType   `gorm:"column:entry_type;type:varchar(16);index;not null" json:"entry_type"`
	Status          EntryStatus `gorm:"column:status;type:varchar(16);index;not null;default:'pending'" json:"status"`
	TransactionDate time.Time   `gorm:"column:transaction_date;index;not null" json:"transaction_date"`

	// 债权构成（基准币种 RMB；运费以 USD 原币并行跟踪）
	GoodsAmount decimal.Decimal `gorm:"column:goods_amount;type:decimal(20,4);not null;default:0" json:"goods_amount"`
	Commission  decimal.Decimal `gorm:"column:commission;type:decimal(20,4);not null;default:0" json:"commission"`
	Shipping    decimal.Decimal `gorm:"column:shipping;type:decimal(20,4);not null;default:0" json:"shipping"`
	ShippingUSD decimal.Decimal `gorm:"column:shipping_usd;type:decimal(20,4);not null;default:0" json:"shipping_usd"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:decimal(20,4);not null;default:0" json:"total_amount"`

	// 累计收款
	PaymentRMB decimal.Decimal `gorm:"column:payment_rmb;type:decimal(20,4);not null;default:0" json:"payment_rmb"`
	PaymentUSD decimal.Decimal `gorm:"column:payment_usd;type:decimal(20,4);not null;default:0" json:"payment_usd"`
	PaymentSDG decimal.Decimal `gorm:"column:payment_sdg;type:decimal(20,4);not null;default:0" json:"payment_sdg"`
	PaymentAED decimal.Decimal `gorm:"column:payment_aed;type:decimal(20,4);not null;default:0" json:"payment_aed"`

	// 未结余额（债权减累计收款，带符号）
	BalanceRMB decimal.Decimal `gorm:"column:balance_rmb;type:decimal(20,4);not null;default:0" json:"balance_rmb"`
	BalanceUSD decimal.Decimal `gorm:"column:balance_usd;type:decimal(20,4);not null;default:0" json:"balance_usd"`
	BalanceSDG decimal.Decimal `gorm:"column:balance_sdg;type:decimal(20,4);not null;default:0" json:"balance_sdg"`
	BalanceAED decimal.Decimal `gorm:"column:balance_aed;type:decimal(20,4);not null;default:0" json:"balance_aed"`

	// 部分收款经 parent_transaction_id 关联被冲减的债权
	ParentTransactionID *uint64 `gorm:"column:parent_transaction_id;index" json:"parent_transaction_id,omitempty"`
	// 装载（货柜）回溯引用，装载触发的债权分录必填
	LoadingID *uint64 `gorm:"column:loading_id;index" json:"loading_id,omitempty"`

	CreatedBy  string     `gorm:"column:created_by;type:varchar(64)" json:"created_by"`
	ApprovedBy string     `gorm:"column:approved_by;type:varchar(64)" json:"approved_by"`
	ApprovedAt *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	DeletedBy  string     `gorm:"column:deleted_by;type:varchar(64)" json:"-"`
	Remark     string     `gorm:"column:remark;type:varchar(255)" json:"remark"`
}

// TableName 表名
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// NewClaimEntry 创建债权分录（装载触发的发票）。
// totalRMB = 货款 + 佣金 + 运费折算 RMB；运费同时以 USD 原币挂账。
func NewClaimEntry(txNo string, clientID uint64, loadingID *uint64, goods, commission, shippingRMB, shippingUSD decimal.Decimal, date time.Time, createdBy string) *LedgerEntry {
	total := goods.Add(commission).Add(shippingRMB)
	return &LedgerEntry{
		TransactionNo:   txNo,
		ClientID:        clientID,
		EntryType:       EntryTypeClaim,
		Status:          EntryStatusPending,
		TransactionDate: date,
		GoodsAmount:     goods,
		Commission:      commission,
		Shipping:        shippingRMB,
		ShippingUSD:     shippingUSD,
		TotalAmount:     total,
		BalanceRMB:      total,
		BalanceUSD:      shippingUSD,
		BalanceSDG:      decimal.Zero,
		BalanceAED:      decimal.Zero,
		LoadingID:       loadingID,
		CreatedBy:       createdBy,
	}
}

// NewPaymentEntry 创建收款分录，立即生效，余额恒为零
func NewPaymentEntry(txNo string, clientID uint64, amounts Amounts, parentID *uint64, date time.Time, createdBy, remark string) *LedgerEntry {
	now := time.Now()
	return &LedgerEntry{
		TransactionNo:       txNo,
		ClientID:            clientID,
		EntryType:           EntryTypePayment,
		Status:              EntryStatusApproved,
		TransactionDate:     date,
		PaymentRMB:          amounts.RMB,
		PaymentUSD:          amounts.USD,
		PaymentSDG:          amounts.SDG,
		PaymentAED:          amounts.AED,
		ParentTransactionID: parentID,
		CreatedBy:           createdBy,
		ApprovedBy:          createdBy,
		ApprovedAt:          &now,
		Remark:              remark,
	}
}

// NewRefundEntry 创建退款分录。收款字段记负值，对账时自然冲销原收款。
func NewRefundEntry(txNo string, clientID uint64, amounts Amounts, parentID uint64, date time.Time, createdBy, remark string) *LedgerEntry {
	now := time.Now()
	neg := amounts.Neg()
	return &LedgerEntry{
		TransactionNo:       txNo,
		ClientID:            clientID,
		EntryType:           EntryTypeRefund,
		Status:              EntryStatusApproved,
		TransactionDate:     date,
		PaymentRMB:          neg.RMB,
		PaymentUSD:          neg.USD,
		PaymentSDG:          neg.SDG,
		PaymentAED:          neg.AED,
		ParentTransactionID: &parentID,
		CreatedBy:           createdBy,
		ApprovedBy:          createdBy,
		ApprovedAt:          &now,
		Remark:              remark,
	}
}

// Payments 累计收款四元组
func (e *LedgerEntry) Payments() Amounts {
	return Amounts{RMB: e.PaymentRMB, USD: e.PaymentUSD, SDG: e.PaymentSDG, AED: e.PaymentAED}
}

// Balances 未结余额四元组
func (e *LedgerEntry) Balances() Amounts {
	return Amounts{RMB: e.BalanceRMB, USD: e.BalanceUSD, SDG: e.BalanceSDG, AED: e.BalanceAED}
}

// ClaimTotals 债权四元组。RMB 取发票总额，USD 取原币运费；
// SDG/AED 当前业务模型不存在债权侧。
func (e *LedgerEntry) ClaimTotals() Amounts {
	if e.EntryType != EntryTypeClaim {
		return ZeroAmounts()
	}
	return Amounts{RMB: e.TotalAmount, USD: e.ShippingUSD, SDG: decimal.Zero, AED: decimal.Zero}
}

// ApplyPayment 向债权分录冲减部分收款。
// 任一币种超出未结余额即拒绝；全部结清后状态翻转为 approved。
func (e *LedgerEntry) ApplyPayment(amounts Amounts, approver string) error {
	if e.EntryType != EntryTypeClaim {
		return NewError(CodeValidation, "entry %s is not a claim", e.TransactionNo)
	}
	if !e.Status.Included() {
		return NewError(CodeValidation, "claim %s is %s", e.TransactionNo, e.Status)
	}
	for _, c := range AllCurrencies {
		if amounts.Get(c).GreaterThan(e.Balances().Get(c)) {
			return NewError(CodeExceedsBalance, "payment %s %s exceeds outstanding %s on claim %s",
				amounts.Get(c), c, e.Balances().Get(c), e.TransactionNo)
		}
	}

	paid := e.Payments().Add(amounts)
	e.PaymentRMB, e.PaymentUSD, e.PaymentSDG, e.PaymentAED = paid.RMB, paid.USD, paid.SDG, paid.AED

	bal := e.Balances().Sub(amounts)
	e.BalanceRMB, e.BalanceUSD, e.BalanceSDG, e.BalanceAED = bal.RMB, bal.USD, bal.SDG, bal.AED

	if bal.AllNonPositive() {
		now := time.Now()
		e.Status = EntryStatusApproved
		e.ApprovedBy = approver
		e.ApprovedAt = &now
	}
	return nil
}

// ReversePayment 回冲债权上的累计收款（子收款被退款时）。
// 未结余额恢复后债权重新可收；已结清的债权回到 pending。
func (e *LedgerEntry) ReversePayment(amounts Amounts) error {
	if e.EntryType != EntryTypeClaim {
		return NewError(CodeValidation, "entry %s is not a claim", e.TransactionNo)
	}
	if amounts.Exceeds(e.Payments()) {
		return NewError(CodeValidation, "reversal exceeds collected payments on claim %s", e.TransactionNo)
	}

	paid := e.Payments().Sub(amounts)
	e.PaymentRMB, e.PaymentUSD, e.PaymentSDG, e.PaymentAED = paid.RMB, paid.USD, paid.SDG, paid.AED

	bal := e.Balances().Add(amounts)
	e.BalanceRMB, e.BalanceUSD, e.BalanceSDG, e.BalanceAED = bal.RMB, bal.USD, bal.SDG, bal.AED

	if e.Status == EntryStatusApproved && bal.AnyPositive() {
		e.Status = EntryStatusPending
		e.ApprovedBy = ""
		e.ApprovedAt = nil
	}
	return nil
}

// Approve 审批分录（pending -> approved，不可逆）
func (e *LedgerEntry) Approve(approver string) error {
	if e.Status != EntryStatusPending {
		return NewError(CodeValidation, "entry %s is %s, only pending entries can be approved", e.TransactionNo, e.Status)
	}
	now := time.Now()
	e.Status = EntryStatusApproved
	e.ApprovedBy = approver
	e.ApprovedAt = &now
	return nil
}

// Cancel 取消分录（软删除路径）
func (e *LedgerEntry) Cancel(actor string) error {
	if e.Status == EntryStatusCancelled {
		return nil
	}
	if e.Status == EntryStatusRefunded {
		return NewError(CodeValidation, "entry %s already refunded", e.TransactionNo)
	}
	e.Status = EntryStatusCancelled
	e.DeletedBy = actor
	return nil
}

// MarkRefunded 全额退款后标记原分录
func (e *LedgerEntry) MarkRefunded() {
	e.Status = EntryStatusRefunded
}
