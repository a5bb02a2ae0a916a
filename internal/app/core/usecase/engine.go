package usecase

import (
	"fmt"
	"time"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/pkg/clock"
)

// Engine 帳本規則：驗證請求、計算新餘額與交易紀錄
// 不做任何 I/O，也不修改傳入的帳戶 (一律在 Clone 上操作)
type Engine struct {
	limits   domain.Limits
	verifier SecretVerifier
	clock    Clock
	ids      *clock.ULIDSource
}

// NewEngine 建立 Engine
//
// 參數:
//
//	limits: 上下限與手續費設定
//	verifier: PIN / 密碼驗證
//	clk: 交易時間來源
func NewEngine(limits domain.Limits, verifier SecretVerifier, clk Clock) *Engine {
	return &Engine{
		limits:   limits,
		verifier: verifier,
		clock:    clk,
		ids:      clock.NewULIDSource(),
	}
}

// Limits 目前使用的設定
func (e *Engine) Limits() domain.Limits {
	return e.limits
}

// Result 一次操作的結果
// Transactions[0] 屬於 Account，轉帳時 Transactions[1] 屬於 Counterparty
type Result struct {
	Operation    domain.OperationType
	Account      *domain.Account
	Counterparty *domain.Account
	Transactions []domain.Transaction
}

// Accounts 需要一起儲存的帳戶
func (r *Result) Accounts() []*domain.Account {
	if r.Counterparty != nil {
		return []*domain.Account{r.Account, r.Counterparty}
	}
	return []*domain.Account{r.Account}
}

// Apply 套用一次餘額操作
//
// 檢查順序: 金額格式 -> 上下限 -> PIN -> 餘額
//
// 參數:
//
//	op: 操作請求
//	account: 發起操作的帳戶
//	counterparty: 轉帳的收款帳戶，其他操作傳 nil
//
// 回傳:
//
//	*Result: 更新後的帳戶拷貝與新增的紀錄
//	error: domain 錯誤
func (e *Engine) Apply(op domain.Operation, account, counterparty *domain.Account) (*Result, error) {
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	limit, ok := e.limits.For(op.Type)
	if !ok {
		return nil, domain.ErrInvalidOperation
	}
	if op.Type == domain.OperationTransfer {
		if counterparty == nil {
			return nil, domain.ErrRecipientNotFound
		}
		if counterparty.ID == account.ID {
			return nil, domain.ErrSameAccount
		}
	}

	amount, err := domain.ParseAmount(op.Amount)
	if err != nil {
		return nil, err
	}
	if !limit.Contains(amount) {
		return nil, domain.ErrAmountOutOfRange
	}
	if op.Type.RequiresSecret() && !e.verifier.Verify(op.Secret, account.PinHash) {
		return nil, domain.ErrAuthenticationFailed
	}

	switch op.Type {
	case domain.OperationDeposit:
		return e.handleDeposit(account, amount)
	case domain.OperationWithdraw:
		return e.handleDebit(op.Type, account, domain.TransactionTypeWithdraw, amount,
			fmt.Sprintf("Withdrawn %d", amount))
	case domain.OperationTransfer:
		return e.handleTransfer(account, counterparty, amount, op.CrossInstitution)
	case domain.OperationTopUp:
		return e.handleDebit(op.Type, account, domain.TransactionTypeTopUp, amount,
			fmt.Sprintf("Mobile top-up to %s", op.Reference))
	case domain.OperationWalletLoad:
		return e.handleDebit(op.Type, account, domain.TransactionTypeWalletLoad, amount,
			fmt.Sprintf("Loaded to eSewa ID %s", op.Reference))
	}
	return nil, domain.ErrInvalidOperation
}

// handleDeposit 存款
func (e *Engine) handleDeposit(account *domain.Account, amount domain.Amount) (*Result, error) {
	updated := account.Clone()
	tran := e.newTransaction(domain.TransactionTypeDeposit, amount, 0,
		fmt.Sprintf("Deposited %d", amount), updated)
	if err := updated.Credit(tran); err != nil {
		return nil, err
	}
	return &Result{
		Operation:    domain.OperationDeposit,
		Account:      updated,
		Transactions: []domain.Transaction{lastOf(updated)},
	}, nil
}

// handleDebit 提款、手機儲值、eSewa 儲值共用：只扣款的操作
func (e *Engine) handleDebit(opType domain.OperationType, account *domain.Account, tranType domain.TransactionType, amount domain.Amount, details string) (*Result, error) {
	updated := account.Clone()
	tran := e.newTransaction(tranType, amount, 0, details, updated)
	if err := updated.Debit(tran); err != nil {
		return nil, err
	}
	return &Result{
		Operation:    opType,
		Account:      updated,
		Transactions: []domain.Transaction{lastOf(updated)},
	}, nil
}

// handleTransfer 轉帳：付款方扣 amount+fee，收款方只收 amount
func (e *Engine) handleTransfer(sender, receiver *domain.Account, amount domain.Amount, crossInstitution bool) (*Result, error) {
	var fee int64
	if crossInstitution {
		fee = e.limits.CrossInstitutionFee
	}

	from := sender.Clone()
	to := receiver.Clone()

	details := fmt.Sprintf("To %s", receiver.Phone)
	if fee > 0 {
		details = fmt.Sprintf("To %s (%d fee)", receiver.Phone, fee)
	}
	// 兩邊使用同一個時間，且不早於任一方的最後一筆
	at := e.now(from, to)
	out := domain.Transaction{
		ID:        e.ids.New(at),
		Type:      domain.TransactionTypeTransferOut,
		Amount:    int64(amount),
		Fee:       fee,
		CreatedAt: at,
		Details:   details,
	}
	if err := from.Debit(out); err != nil {
		return nil, err
	}
	in := domain.Transaction{
		ID:        e.ids.New(at),
		Type:      domain.TransactionTypeTransferIn,
		Amount:    int64(amount),
		CreatedAt: at,
		Details:   fmt.Sprintf("From %s", sender.Phone),
	}
	if err := to.Credit(in); err != nil {
		return nil, err
	}

	return &Result{
		Operation:    domain.OperationTransfer,
		Account:      from,
		Counterparty: to,
		Transactions: []domain.Transaction{lastOf(from), lastOf(to)},
	}, nil
}

// ChangePassword 驗證舊密碼、檢查新密碼強度後替換雜湊
func (e *Engine) ChangePassword(account *domain.Account, oldPassword, newPassword string) (*domain.Account, error) {
	if !e.verifier.Verify(oldPassword, account.PasswordHash) {
		return nil, domain.ErrAuthenticationFailed
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return nil, err
	}
	hash, err := e.verifier.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	updated := account.Clone()
	updated.PasswordHash = hash
	return updated, nil
}

// Balance 目前餘額
func (e *Engine) Balance(account *domain.Account) int64 {
	return account.Balance
}

// History 由新到舊的交易紀錄拷貝
func (e *Engine) History(account *domain.Account) []domain.Transaction {
	n := len(account.Transactions)
	list := make([]domain.Transaction, n)
	for i, tran := range account.Transactions {
		list[n-1-i] = tran
	}
	return list
}

func (e *Engine) newTransaction(t domain.TransactionType, amount domain.Amount, fee int64, details string, account *domain.Account) domain.Transaction {
	at := e.now(account)
	return domain.Transaction{
		ID:        e.ids.New(at),
		Type:      t,
		Amount:    int64(amount),
		Fee:       fee,
		CreatedAt: at,
		Details:   details,
	}
}

// now 取時間，不早於相關帳戶的最後一筆紀錄
func (e *Engine) now(accounts ...*domain.Account) time.Time {
	at := e.clock.Now()
	for _, a := range accounts {
		if last := a.LastTransactionAt(); at.Before(last) {
			at = last
		}
	}
	return at
}

func lastOf(a *domain.Account) domain.Transaction {
	return a.Transactions[len(a.Transactions)-1]
}
