package usecase

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

func newTestEngine() *Engine {
	return NewEngine(domain.DefaultLimits(), plainVerifier{}, newFixedClock())
}

func testAccount(phone string, balance int64) *domain.Account {
	acc := domain.NewAccount(uuid.New(), phone, balance)
	acc.PinHash = "h:1234"
	acc.PasswordHash = "h:Passw0rd!"
	return acc
}

func TestEngineWithdraw(t *testing.T) {
	e := newTestEngine()
	acc := testAccount("9800000001", 100000)

	res, err := e.Apply(domain.Operation{Type: domain.OperationWithdraw, Amount: 10000, Secret: "1234"}, acc, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(90000), res.Account.Balance)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, domain.TransactionTypeWithdraw, res.Transactions[0].Type)
	assert.Equal(t, int64(90000), res.Transactions[0].BalanceAfter)
	assert.Equal(t, "Withdrawn 10000", res.Transactions[0].Details)

	// 原帳戶不被修改
	assert.Equal(t, int64(100000), acc.Balance)
	assert.Empty(t, acc.Transactions)
}

func TestEngineRejections(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name    string
		balance int64
		op      domain.Operation
		wantErr error
	}{
		{"withdraw above max", 1000, domain.Operation{Type: domain.OperationWithdraw, Amount: 25001, Secret: "1234"}, domain.ErrAmountOutOfRange},
		{"withdraw at max without funds", 1000, domain.Operation{Type: domain.OperationWithdraw, Amount: 25000, Secret: "1234"}, domain.ErrInsufficientFunds},
		{"withdraw wrong pin", 1000, domain.Operation{Type: domain.OperationWithdraw, Amount: 100, Secret: "0000"}, domain.ErrAuthenticationFailed},
		{"deposit below min", 1000, domain.Operation{Type: domain.OperationDeposit, Amount: 9}, domain.ErrAmountOutOfRange},
		{"deposit above max", 1000, domain.Operation{Type: domain.OperationDeposit, Amount: 50001}, domain.ErrAmountOutOfRange},
		{"deposit fractional", 1000, domain.Operation{Type: domain.OperationDeposit, Amount: 10.5}, domain.ErrInvalidAmount},
		{"deposit text", 1000, domain.Operation{Type: domain.OperationDeposit, Amount: "ten"}, domain.ErrInvalidAmount},
		{"deposit missing", 1000, domain.Operation{Type: domain.OperationDeposit}, domain.ErrInvalidAmount},
		{"topup below min", 1000, domain.Operation{Type: domain.OperationTopUp, Amount: 5, Secret: "1234", Reference: "9811111111"}, domain.ErrAmountOutOfRange},
		{"esewa wrong pin", 1000, domain.Operation{Type: domain.OperationWalletLoad, Amount: 50, Secret: "9999", Reference: "es-1"}, domain.ErrAuthenticationFailed},
		{"invalid amount before pin", 1000, domain.Operation{Type: domain.OperationWithdraw, Amount: -5, Secret: "0000"}, domain.ErrInvalidAmount},
		{"unknown operation", 1000, domain.Operation{Type: "refund", Amount: 10}, domain.ErrInvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := testAccount("9800000001", tt.balance)
			res, err := e.Apply(tt.op, acc, nil)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Equal(t, tt.balance, acc.Balance)
			assert.Empty(t, acc.Transactions)
		})
	}
}

func TestEngineDepositNeedsNoPin(t *testing.T) {
	e := newTestEngine()
	acc := testAccount("9800000001", 100)

	res, err := e.Apply(domain.Operation{Type: domain.OperationDeposit, Amount: "500"}, acc, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(600), res.Account.Balance)
	assert.Equal(t, domain.TransactionTypeDeposit, res.Transactions[0].Type)
	assert.Equal(t, "Deposited 500", res.Transactions[0].Details)
}

func TestEngineTopUpAndWalletLoad(t *testing.T) {
	e := newTestEngine()
	acc := testAccount("9800000001", 1000)

	res, err := e.Apply(domain.Operation{Type: domain.OperationTopUp, Amount: 100, Secret: "1234", Reference: "9811111111"}, acc, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(900), res.Account.Balance)
	assert.Equal(t, "Mobile top-up to 9811111111", res.Transactions[0].Details)

	res, err = e.Apply(domain.Operation{Type: domain.OperationWalletLoad, Amount: 200, Secret: "1234", Reference: "esewa-42"}, res.Account, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(700), res.Account.Balance)
	assert.Equal(t, domain.TransactionTypeWalletLoad, res.Transactions[0].Type)
	assert.Equal(t, "Loaded to eSewa ID esewa-42", res.Transactions[0].Details)
	assert.NoError(t, domain.VerifyHistory(1000, res.Account))
}

func TestEngineTransfer(t *testing.T) {
	tests := []struct {
		name        string
		cross       bool
		wantFee     int64
		wantDetails string
	}{
		{"same institution", false, 0, "To 9800000002"},
		{"cross institution", true, 11, "To 9800000002 (11 fee)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			sender := testAccount("9800000001", 1000)
			receiver := testAccount("9800000002", 50)

			res, err := e.Apply(domain.Operation{
				Type:             domain.OperationTransfer,
				Amount:           300,
				Secret:           "1234",
				Counterparty:     receiver.Phone,
				CrossInstitution: tt.cross,
			}, sender, receiver)
			require.NoError(t, err)

			assert.Equal(t, 1000-300-tt.wantFee, res.Account.Balance)
			assert.Equal(t, int64(350), res.Counterparty.Balance)

			out, in := res.Transactions[0], res.Transactions[1]
			assert.Equal(t, domain.TransactionTypeTransferOut, out.Type)
			assert.Equal(t, tt.wantFee, out.Fee)
			assert.Equal(t, tt.wantDetails, out.Details)
			assert.Equal(t, domain.TransactionTypeTransferIn, in.Type)
			assert.Zero(t, in.Fee)
			assert.Equal(t, "From 9800000001", in.Details)
			assert.Equal(t, out.CreatedAt, in.CreatedAt)
			assert.NotEqual(t, out.ID, in.ID)

			assert.NoError(t, domain.VerifyHistory(1000, res.Account))
			assert.NoError(t, domain.VerifyHistory(50, res.Counterparty))
			assert.Len(t, res.Accounts(), 2)
		})
	}
}

func TestEngineTransferRejections(t *testing.T) {
	e := newTestEngine()
	sender := testAccount("9800000001", 100)
	receiver := testAccount("9800000002", 0)

	op := domain.Operation{Type: domain.OperationTransfer, Amount: 100, Secret: "1234", CrossInstitution: true}

	_, err := e.Apply(op, sender, nil)
	assert.ErrorIs(t, err, domain.ErrRecipientNotFound)

	_, err = e.Apply(op, sender, sender)
	assert.ErrorIs(t, err, domain.ErrSameAccount)

	// 100 + 11 手續費 > 100
	_, err = e.Apply(op, sender, receiver)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(100), sender.Balance)
	assert.Zero(t, receiver.Balance)
}

func TestEngineTimestampsNeverGoBackwards(t *testing.T) {
	e := newTestEngine()
	acc := testAccount("9800000001", 1000)

	first, err := e.Apply(domain.Operation{Type: domain.OperationDeposit, Amount: 10}, acc, nil)
	require.NoError(t, err)

	// 帳戶最後一筆紀錄比時鐘還晚
	future := first.Account.Clone()
	future.Transactions[0].CreatedAt = future.Transactions[0].CreatedAt.Add(24 * time.Hour)

	second, err := e.Apply(domain.Operation{Type: domain.OperationDeposit, Amount: 10}, future, nil)
	require.NoError(t, err)
	assert.False(t, second.Transactions[0].CreatedAt.Before(future.Transactions[0].CreatedAt))
	assert.Equal(t, 1, second.Transactions[0].ID.Compare(future.Transactions[0].ID))
}

func TestEngineChangePassword(t *testing.T) {
	e := newTestEngine()
	acc := testAccount("9800000001", 0)

	_, err := e.ChangePassword(acc, "wrong", "N3w!Passw")
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)

	_, err = e.ChangePassword(acc, "Passw0rd!", "weak")
	assert.ErrorIs(t, err, domain.ErrWeakSecret)

	updated, err := e.ChangePassword(acc, "Passw0rd!", "N3w!Passw")
	require.NoError(t, err)
	assert.Equal(t, "h:N3w!Passw", updated.PasswordHash)
	assert.Equal(t, "h:Passw0rd!", acc.PasswordHash)
}

func TestEngineHistoryNewestFirst(t *testing.T) {
	e := newTestEngine()
	acc := testAccount("9800000001", 1000)

	res, err := e.Apply(domain.Operation{Type: domain.OperationDeposit, Amount: 10}, acc, nil)
	require.NoError(t, err)
	res, err = e.Apply(domain.Operation{Type: domain.OperationWithdraw, Amount: 20, Secret: "1234"}, res.Account, nil)
	require.NoError(t, err)

	history := e.History(res.Account)
	require.Len(t, history, 2)
	assert.Equal(t, domain.TransactionTypeWithdraw, history[0].Type)
	assert.Equal(t, domain.TransactionTypeDeposit, history[1].Type)
	assert.Equal(t, int64(990), e.Balance(res.Account))
}
