package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

const (
	// MinimumAge 開戶最低年齡
	MinimumAge = 18
	pinMinLen  = 4
	pinMaxLen  = 6
)

// RegisterInput 開戶資料
type RegisterInput struct {
	Name        string
	Phone       string
	Password    string
	PIN         string
	DateOfBirth time.Time
}

// Register 建立新帳戶並給予初始餘額
//
// 回傳:
//
//	*domain.Account: 新帳戶
//	error: *domain.RegistrationError / domain.ErrWeakSecret / domain.ErrAccountAlreadyExists
func (c *CoreUseCase) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" || in.Phone == "" || in.Password == "" || in.PIN == "" || in.DateOfBirth.IsZero() {
		return nil, &domain.RegistrationError{Reason: "All fields are required"}
	}
	now := c.engine.clock.Now()
	if ageAt(in.DateOfBirth, now) < MinimumAge {
		return nil, &domain.RegistrationError{Reason: fmt.Sprintf("Must be %d years or older", MinimumAge)}
	}
	if !validPIN(in.PIN) {
		return nil, &domain.RegistrationError{Reason: fmt.Sprintf("PIN must be %d to %d digits", pinMinLen, pinMaxLen)}
	}
	if err := domain.ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	passwordHash, err := c.engine.verifier.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	pinHash, err := c.engine.verifier.Hash(in.PIN)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}

	account := &domain.Account{
		ID:           uuid.New(),
		Name:         in.Name,
		Phone:        in.Phone,
		DateOfBirth:  in.DateOfBirth,
		Balance:      c.engine.Limits().StartingBalance,
		PasswordHash: passwordHash,
		PinHash:      pinHash,
		CreatedAt:    now,
	}
	if err := c.repo.Create(ctx, account); err != nil {
		return nil, err
	}

	c.logger.Info("account registered",
		zap.String("account_id", account.ID.String()),
		zap.Int64("starting_balance", account.Balance))
	c.publish(ctx, &domain.LedgerEvent{
		EventType:    domain.EventAccountRegistered,
		AccountID:    account.ID,
		BalanceAfter: account.Balance,
	})
	return account, nil
}

// Authenticate 以手機號碼與密碼登入
// 帳戶不存在與密碼錯誤回傳同一個錯誤，且都會做一次雜湊比對，避免被用來探測帳號
func (c *CoreUseCase) Authenticate(ctx context.Context, phone, password string) (*domain.Account, error) {
	account, err := c.repo.GetByPhone(ctx, strings.TrimSpace(phone))
	if errors.Is(err, domain.ErrAccountNotFound) {
		c.engine.verifier.Verify(password, c.dummySecretHash())
		return nil, domain.ErrAuthenticationFailed
	}
	if err != nil {
		return nil, err
	}
	if !c.engine.verifier.Verify(password, account.PasswordHash) {
		return nil, domain.ErrAuthenticationFailed
	}
	return account, nil
}

func (c *CoreUseCase) dummySecretHash() string {
	c.dummyOnce.Do(func() {
		hash, err := c.engine.verifier.Hash(uuid.NewString())
		if err != nil {
			c.logger.Warn("build dummy secret hash failed", zap.Error(err))
			return
		}
		c.dummyHash = hash
	})
	return c.dummyHash
}

// ageAt 計算滿幾歲
func ageAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

func validPIN(pin string) bool {
	if len(pin) < pinMinLen || len(pin) > pinMaxLen {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
