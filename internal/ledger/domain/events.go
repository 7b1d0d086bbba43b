// Package domain 账本领域事件
package domain

import "time"

type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
}

// PaymentReceivedEvent 收款入账事件
type PaymentReceivedEvent struct {
	ClientID      uint64    `json:"client_id"`
	TransactionNo string    `json:"transaction_no"`
	Amounts       Amounts   `json:"amounts"`
	Partial       bool      `json:"partial"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e *PaymentReceivedEvent) EventName() string     { return "ledger.payment_received" }
func (e *PaymentReceivedEvent) OccurredAt() time.Time { return e.Timestamp }

// ClaimCreatedEvent 债权生成事件（装载触发）
type ClaimCreatedEvent struct {
	ClientID      uint64    `json:"client_id"`
	TransactionNo string    `json:"transaction_no"`
	LoadingID     uint64    `json:"loading_id"`
	Totals        Amounts   `json:"totals"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e *ClaimCreatedEvent) EventName() string     { return "ledger.claim_created" }
func (e *ClaimCreatedEvent) OccurredAt() time.Time { return e.Timestamp }

// RefundIssuedEvent 退款事件
type RefundIssuedEvent struct {
	ClientID      uint64    `json:"client_id"`
	TransactionNo string    `json:"transaction_no"`
	OriginalNo    string    `json:"original_no"`
	Amounts       Amounts   `json:"amounts"`
	Full          bool      `json:"full"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e *RefundIssuedEvent) EventName() string     { return "ledger.refund_issued" }
func (e *RefundIssuedEvent) OccurredAt() time.Time { return e.Timestamp }

// BalancesRecomputedEvent 客户余额重算事件
type BalancesRecomputedEvent struct {
	ClientID  uint64    `json:"client_id"`
	Balances  Amounts   `json:"balances"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *BalancesRecomputedEvent) EventName() string     { return "ledger.balances_recomputed" }
func (e *BalancesRecomputedEvent) OccurredAt() time.Time { return e.Timestamp }
