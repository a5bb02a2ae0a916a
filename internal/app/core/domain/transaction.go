package domain

import (
	"bytes"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TransactionType 帳本紀錄類型，字串值即為對外的 type 欄位
type TransactionType string

const (
	// 存款
	TransactionTypeDeposit TransactionType = "deposit"
	// 提款
	TransactionTypeWithdraw TransactionType = "withdraw"
	// 轉出 (付款方)
	TransactionTypeTransferOut TransactionType = "transfer-out"
	// 轉入 (收款方)
	TransactionTypeTransferIn TransactionType = "transfer-in"
	// 手機儲值
	TransactionTypeTopUp TransactionType = "topup"
	// 電子錢包 (eSewa) 儲值
	TransactionTypeWalletLoad TransactionType = "esewa"
)

// IsCredit 是否為入帳
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeTransferIn
}

// Valid 是否為已知類型
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeTransferOut,
		TransactionTypeTransferIn, TransactionTypeTopUp, TransactionTypeWalletLoad:
		return true
	}
	return false
}

// Transaction 帳本紀錄，建立後不可修改
type Transaction struct {
	// ID: 單調遞增的 ULID，可依字典序排序
	ID ulid.ULID `json:"id"`
	// Type: 紀錄類型
	Type TransactionType `json:"type"`
	// Amount: 移動的金額 (不含手續費)
	Amount int64 `json:"amount"`
	// Fee: 手續費，只會出現在 transfer-out
	Fee int64 `json:"fee,omitempty"`
	// CreatedAt: 同一帳戶內單調不減
	CreatedAt time.Time `json:"date"`
	// Details: 對手方或手續費備註
	Details string `json:"details"`
	// BalanceAfter: 套用本筆後的帳戶餘額
	BalanceAfter int64 `json:"balanceAfter"`
}

// Delta 對餘額的淨影響
func (t *Transaction) Delta() int64 {
	if t.Type.IsCredit() {
		return t.Amount
	}
	return -(t.Amount + t.Fee)
}

// LockIDs 回傳需要鎖定的帳號 ID，依序排列以避免死鎖，重複的 ID 只保留一個
func LockIDs(ids ...uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen == id {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}
