package usecase

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// KeyLocker 以帳戶 ID 為 key 的互斥鎖
// 每把鎖是容量 1 的 channel，等待時可以被 ctx 取消
type KeyLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{
		locks: make(map[uuid.UUID]*keyLock),
	}
}

// LockAll 依 ID 排序後逐一上鎖，方向相反的兩筆轉帳也不會互相死鎖
//
// 回傳:
//
//	func(): 解鎖函式 (反向釋放)
//	error: ctx 逾時或取消
func (l *KeyLocker) LockAll(ctx context.Context, ids ...uuid.UUID) (func(), error) {
	ordered := domain.LockIDs(ids...)
	acquired := make([]uuid.UUID, 0, len(ordered))
	unlock := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			l.release(acquired[i], true)
		}
	}
	for _, id := range ordered {
		if err := l.acquire(ctx, id); err != nil {
			unlock()
			return nil, err
		}
		acquired = append(acquired, id)
	}
	return unlock, nil
}

func (l *KeyLocker) acquire(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	k, ok := l.locks[id]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[id] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(id, false)
		return ctx.Err()
	}
}

func (l *KeyLocker) release(id uuid.UUID, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.locks[id]
	if held {
		<-k.ch
	}
	k.refs--
	if k.refs == 0 {
		delete(l.locks, id)
	}
}

// size 目前仍有人持有或等待的鎖數量 (測試用)
func (l *KeyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
