package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// plainVerifier 測試用：雜湊就是加上前綴
type plainVerifier struct{}

func (plainVerifier) Verify(plaintext, storedHash string) bool {
	return storedHash == "h:"+plaintext
}

func (plainVerifier) Hash(plaintext string) (string, error) {
	return "h:" + plaintext, nil
}

// fixedClock 每次呼叫前進一秒
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// fakeRepo 以 map 實作 AccountRepository，可注入 Save 錯誤
type fakeRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
	saves    int
	// saveErr 不為 nil 時回傳並且不做任何變更；回傳 nil 代表照常儲存
	saveErr func(call int) error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (r *fakeRepo) GetByPhone(_ context.Context, phone string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.Phone == phone {
			return acc.Clone(), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *fakeRepo) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.Phone == account.Phone {
			return domain.ErrAccountAlreadyExists
		}
	}
	account.Version = 1
	r.accounts[account.ID] = account.Clone()
	return nil
}

func (r *fakeRepo) Save(_ context.Context, accounts ...*domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		if err := r.saveErr(r.saves); err != nil {
			return err
		}
	}
	for _, acc := range accounts {
		current, ok := r.accounts[acc.ID]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if current.Version != acc.Version {
			return domain.ErrConflict
		}
	}
	for _, acc := range accounts {
		acc.Version++
		r.accounts[acc.ID] = acc.Clone()
	}
	return nil
}

// seed 直接放入帳戶，PIN 為 1234、密碼為 Passw0rd!
func (r *fakeRepo) seed(phone string, balance int64) *domain.Account {
	acc := domain.NewAccount(uuid.New(), phone, balance)
	acc.Name = "User " + phone
	acc.PinHash = "h:1234"
	acc.PasswordHash = "h:Passw0rd!"
	acc.Version = 1
	r.mu.Lock()
	r.accounts[acc.ID] = acc.Clone()
	r.mu.Unlock()
	return acc
}

// recordingPublisher 收集發布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *domain.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

// countingRecorder 收集 metrics 呼叫
type countingRecorder struct {
	mu      sync.Mutex
	codes   []domain.Code
	retries int
}

func (r *countingRecorder) ObserveOperation(_ string, code domain.Code, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

func (r *countingRecorder) ObserveRetry(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}
