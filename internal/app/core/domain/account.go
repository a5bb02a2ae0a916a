package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account 使用者錢包：餘額、密鑰與交易紀錄
type Account struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	DateOfBirth time.Time `json:"dob"`
	// Balance 以最小貨幣單位儲存，永遠 >= 0
	Balance      int64  `json:"balance"`
	PasswordHash string `json:"-"`
	PinHash      string `json:"-"`
	// Transactions 由舊到新
	Transactions []Transaction `json:"transactions,omitempty"`
	// Version 樂觀鎖版本號，每次成功儲存 +1
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewAccount(id uuid.UUID, phone string, balance int64) *Account {
	return &Account{
		ID:      id,
		Phone:   phone,
		Balance: balance,
	}
}

// Clone 深拷貝，Engine 只在拷貝上修改
func (a *Account) Clone() *Account {
	c := *a
	if a.Transactions != nil {
		c.Transactions = make([]Transaction, len(a.Transactions), len(a.Transactions)+2)
		copy(c.Transactions, a.Transactions)
	}
	return &c
}

// LastTransactionAt 最後一筆紀錄時間，沒有紀錄時回傳零值
func (a *Account) LastTransactionAt() time.Time {
	if n := len(a.Transactions); n > 0 {
		return a.Transactions[n-1].CreatedAt
	}
	return time.Time{}
}

// Credit 入帳並附加紀錄
func (a *Account) Credit(tran Transaction) error {
	if tran.Amount <= 0 {
		return ErrInvalidAmount
	}
	a.Balance = a.Balance + tran.Amount
	tran.BalanceAfter = a.Balance
	a.Transactions = append(a.Transactions, tran)
	return nil
}

// Debit 扣款 (金額 + 手續費) 並附加紀錄
func (a *Account) Debit(tran Transaction) error {
	if tran.Amount <= 0 || tran.Fee < 0 {
		return ErrInvalidAmount
	}
	total := tran.Amount + tran.Fee
	if a.Balance < total {
		return ErrInsufficientFunds
	}
	a.Balance = a.Balance - total
	tran.BalanceAfter = a.Balance
	a.Transactions = append(a.Transactions, tran)
	return nil
}

// HistoryMismatchError 重放紀錄時第一筆不一致的位置
type HistoryMismatchError struct {
	Index    int
	Expected int64
	Recorded int64
}

func (e *HistoryMismatchError) Error() string {
	return fmt.Sprintf("transaction %d: balanceAfter %d, replay gives %d", e.Index, e.Recorded, e.Expected)
}

// VerifyHistory 從初始餘額重放所有紀錄，檢查每筆 BalanceAfter 與最終餘額
func VerifyHistory(initial int64, a *Account) error {
	running := initial
	for i := range a.Transactions {
		running += a.Transactions[i].Delta()
		if running < 0 || running != a.Transactions[i].BalanceAfter {
			return &HistoryMismatchError{Index: i, Expected: running, Recorded: a.Transactions[i].BalanceAfter}
		}
	}
	if running != a.Balance {
		return &HistoryMismatchError{Index: len(a.Transactions), Expected: running, Recorded: a.Balance}
	}
	return nil
}
