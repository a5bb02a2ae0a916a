package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

type factory func(t *testing.T, w *wal.WAL) usecase.AccountRepository

func repositories() map[string]factory {
	return map[string]factory{
		"mutex": func(t *testing.T, w *wal.WAL) usecase.AccountRepository {
			repo, err := NewMutexRepository(w)
			require.NoError(t, err)
			return repo
		},
		"lmax": func(t *testing.T, w *wal.WAL) usecase.AccountRepository {
			repo, err := NewLMAXRepository(w, 16)
			require.NoError(t, err)
			ctx, cancel := context.WithCancel(context.Background())
			repo.Start(ctx)
			t.Cleanup(func() {
				cancel()
				<-repo.Done()
			})
			return repo
		},
	}
}

func newAccount(phone string, balance int64) *domain.Account {
	acc := domain.NewAccount(uuid.New(), phone, balance)
	acc.Name = "Test " + phone
	acc.PasswordHash = "pw-hash"
	acc.PinHash = "pin-hash"
	acc.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return acc
}

func debit(acc *domain.Account, amount int64) error {
	return acc.Debit(domain.Transaction{
		ID:        ulid.Make(),
		Type:      domain.TransactionTypeWithdraw,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
		Details:   "test",
	})
}

func credit(acc *domain.Account, amount int64) error {
	return acc.Credit(domain.Transaction{
		ID:        ulid.Make(),
		Type:      domain.TransactionTypeDeposit,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
		Details:   "test",
	})
}

func TestRepositoryCreateAndGet(t *testing.T) {
	for name, build := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := build(t, nil)

			acc := newAccount("9800000001", 100)
			require.NoError(t, repo.Create(ctx, acc))
			assert.Equal(t, int64(1), acc.Version)

			got, err := repo.GetByPhone(ctx, "9800000001")
			require.NoError(t, err)
			assert.Equal(t, acc.ID, got.ID)
			assert.Equal(t, int64(100), got.Balance)
			assert.Equal(t, "pin-hash", got.PinHash)

			// 回傳的是副本
			got.Balance = 0
			again, err := repo.GetByID(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(100), again.Balance)

			dup := newAccount("9800000001", 100)
			assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrAccountAlreadyExists)

			_, err = repo.GetByID(ctx, uuid.New())
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)
			_, err = repo.GetByPhone(ctx, "nobody")
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)
		})
	}
}

func TestRepositorySaveVersionCheck(t *testing.T) {
	for name, build := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := build(t, nil)
			require.NoError(t, repo.Create(ctx, newAccount("9800000001", 100)))

			first, err := repo.GetByPhone(ctx, "9800000001")
			require.NoError(t, err)
			stale, err := repo.GetByPhone(ctx, "9800000001")
			require.NoError(t, err)

			require.NoError(t, debit(first, 30))
			require.NoError(t, repo.Save(ctx, first))
			assert.Equal(t, int64(2), first.Version)

			require.NoError(t, debit(stale, 30))
			assert.ErrorIs(t, repo.Save(ctx, stale), domain.ErrConflict)

			got, err := repo.GetByID(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(70), got.Balance)
			assert.Len(t, got.Transactions, 1)
		})
	}
}

func TestRepositorySaveIsAllOrNothing(t *testing.T) {
	for name, build := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := build(t, nil)
			require.NoError(t, repo.Create(ctx, newAccount("9800000001", 100)))
			require.NoError(t, repo.Create(ctx, newAccount("9800000002", 100)))

			a, _ := repo.GetByPhone(ctx, "9800000001")
			b, _ := repo.GetByPhone(ctx, "9800000002")
			staleB, _ := repo.GetByPhone(ctx, "9800000002")

			// 先讓 b 的版本前進
			require.NoError(t, credit(b, 10))
			require.NoError(t, repo.Save(ctx, b))

			require.NoError(t, debit(a, 50))
			require.NoError(t, credit(staleB, 50))
			assert.ErrorIs(t, repo.Save(ctx, a, staleB), domain.ErrConflict)

			gotA, _ := repo.GetByID(ctx, a.ID)
			gotB, _ := repo.GetByID(ctx, b.ID)
			assert.Equal(t, int64(100), gotA.Balance)
			assert.Empty(t, gotA.Transactions)
			assert.Equal(t, int64(110), gotB.Balance)
		})
	}
}

func TestRepositoryConcurrentDoubleSpend(t *testing.T) {
	for name, build := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := build(t, nil)
			acc := newAccount("9800000001", 100)
			require.NoError(t, repo.Create(ctx, acc))

			const workers = 20
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					snapshot, err := repo.GetByID(ctx, acc.ID)
					if err != nil {
						return
					}
					if debit(snapshot, 100) != nil {
						return
					}
					if repo.Save(ctx, snapshot) == nil {
						mu.Lock()
						succeeded++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, succeeded)
			got, err := repo.GetByID(ctx, acc.ID)
			require.NoError(t, err)
			assert.Zero(t, got.Balance)
			assert.NoError(t, domain.VerifyHistory(100, got))
		})
	}
}

func TestRepositoryRecoverFromWAL(t *testing.T) {
	for name, build := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "ledger.wal")

			w, err := wal.NewWAL(path)
			require.NoError(t, err)
			repo := build(t, w)

			a := newAccount("9800000001", 100)
			b := newAccount("9800000002", 100)
			require.NoError(t, repo.Create(ctx, a))
			require.NoError(t, repo.Create(ctx, b))

			require.NoError(t, debit(a, 40))
			require.NoError(t, credit(b, 40))
			require.NoError(t, repo.Save(ctx, a, b))
			require.NoError(t, debit(a, 10))
			require.NoError(t, repo.Save(ctx, a))

			want, err := repo.GetByID(ctx, a.ID)
			require.NoError(t, err)

			// 模擬重啟
			w2, err := wal.NewWAL(path)
			require.NoError(t, err)
			defer w2.Close()
			restored, err := NewMutexRepository(w2)
			require.NoError(t, err)

			got, err := restored.GetByID(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, int64(50), got.Balance)
			assert.Equal(t, int64(3), got.Version)
			assert.NoError(t, domain.VerifyHistory(100, got))

			gotB, err := restored.GetByPhone(ctx, "9800000002")
			require.NoError(t, err)
			assert.Equal(t, int64(140), gotB.Balance)
			assert.Equal(t, "pw-hash", gotB.PasswordHash)
		})
	}
}

func TestLMAXRepositoryClosed(t *testing.T) {
	repo, err := NewLMAXRepository(nil, 1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	repo.Start(ctx)
	cancel()
	<-repo.Done()

	err = repo.Create(context.Background(), newAccount("9800000001", 100))
	assert.ErrorIs(t, err, ErrRepositoryClosed)
}

func TestMutexRepositoryWALFailureRejectsCommit(t *testing.T) {
	ctx := context.Background()
	w, err := wal.NewWAL(filepath.Join(t.TempDir(), "ledger.wal"))
	require.NoError(t, err)
	repo, err := NewMutexRepository(w)
	require.NoError(t, err)

	acc := newAccount("9800000001", 100)
	require.NoError(t, repo.Create(ctx, acc))
	require.NoError(t, w.Close())

	require.NoError(t, debit(acc, 10))
	err = repo.Save(ctx, acc)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCommitUncertain)

	got, err := repo.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)
	assert.Equal(t, int64(1), got.Version)
}

// fullDiskFile 開啟 full 後寫入只寫一半就失敗
type fullDiskFile struct {
	*os.File
	full bool
}

func (f *fullDiskFile) Write(p []byte) (int, error) {
	if f.full {
		n, _ := f.File.Write(p[:len(p)/2])
		return n, errors.New("file too large")
	}
	return f.File.Write(p)
}

func TestRepositoryWALWriteFailureIsNotApplied(t *testing.T) {
	for name, build := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "ledger.wal")
			file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, wal.FileModePrivate)
			require.NoError(t, err)
			disk := &fullDiskFile{File: file}
			w := wal.NewWALFromFile(disk)
			repo := build(t, w)

			acc := newAccount("9800000001", 100)
			require.NoError(t, repo.Create(ctx, acc))

			disk.full = true
			require.NoError(t, debit(acc, 10))
			err = repo.Save(ctx, acc)
			require.ErrorIs(t, err, wal.ErrWriteFailed)
			assert.NotErrorIs(t, err, domain.ErrCommitUncertain)

			live, err := repo.GetByID(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(100), live.Balance)
			assert.Empty(t, live.Transactions)
			assert.Equal(t, int64(1), live.Version)

			// 空間恢復後從最新狀態重試
			disk.full = false
			require.NoError(t, debit(live, 5))
			require.NoError(t, repo.Save(ctx, live))

			// 模擬重啟，重放結果要和記憶體一致
			w2, err := wal.NewWAL(path)
			require.NoError(t, err)
			defer w2.Close()
			restored, err := NewMutexRepository(w2)
			require.NoError(t, err)

			got, err := restored.GetByID(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(95), got.Balance)
			assert.Len(t, got.Transactions, 1)
			assert.NoError(t, domain.VerifyHistory(100, got))

			want, err := repo.GetByID(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}
