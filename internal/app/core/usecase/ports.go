package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// AccountRepository 帳戶儲存的介面 (MySQL / Postgres / Memory)
type AccountRepository interface {
	// GetByID 依 ID 取得帳戶 (含交易紀錄)，不存在回傳 domain.ErrAccountNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	// GetByPhone 依公開身分取得帳戶，不存在回傳 domain.ErrAccountNotFound
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)
	// Create 建立新帳戶，手機號碼重複回傳 domain.ErrAccountAlreadyExists
	Create(ctx context.Context, account *domain.Account) error
	// Save 以單一原子單位儲存所有帳戶
	// 任一帳戶版本不符回傳 domain.ErrConflict 且不做任何變更
	// 成功後每個帳戶的 Version +1
	Save(ctx context.Context, accounts ...*domain.Account) error
}

// SecretVerifier 密碼 / PIN 雜湊
type SecretVerifier interface {
	Verify(plaintext, storedHash string) bool
	Hash(plaintext string) (string, error)
}

// Clock 提供交易時間，必須單調不減
type Clock interface {
	Now() time.Time
}

// EventPublisher 提交後發布帳本事件
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.LedgerEvent) error
}

// Recorder 操作結果的觀測點 (metrics)
type Recorder interface {
	ObserveOperation(operation string, code domain.Code, elapsed time.Duration)
	ObserveRetry(operation string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *domain.LedgerEvent) error { return nil }

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, domain.Code, time.Duration) {}
func (nopRecorder) ObserveRetry(string)                                 {}
