package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType 帳本事件類型
type EventType string

const (
	EventTransactionCompleted EventType = "transaction.completed"
	EventTransferCompleted    EventType = "transfer.completed"
	// EventTransferReconcile 轉帳提交結果不確定，通知營運人員對帳
	EventTransferReconcile EventType = "transfer.reconcile"
	EventPasswordChanged   EventType = "password.changed"
	EventAccountRegistered EventType = "account.registered"
)

// LedgerEvent 提交後對外發布的事件
type LedgerEvent struct {
	EventType     EventType       `json:"event_type"`
	AccountID     uuid.UUID       `json:"account_id"`
	CounterpartID uuid.UUID       `json:"counterpart_id,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Type          TransactionType `json:"transaction_type,omitempty"`
	Amount        int64           `json:"amount,omitempty"`
	Fee           int64           `json:"fee,omitempty"`
	BalanceAfter  int64           `json:"balance_after"`
	Details       string          `json:"details,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Key 分區鍵，同一帳戶的事件保持順序
func (e *LedgerEvent) Key() string {
	return e.AccountID.String()
}
