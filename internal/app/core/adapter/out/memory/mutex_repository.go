package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

// MutexRepository 是一個使用 RWMutex 實現的帳戶儲存
//
// 結構:
//
//	store: 帳戶資料 Map
//	mu: 讀取共用、提交獨佔
//	wal: Write-Ahead Log 實例 (nil 代表純記憶體)
type MutexRepository struct {
	store *store
	mu    sync.RWMutex
	wal   *wal.WAL
}

// NewMutexRepository 建立一個新的 MutexRepository 實例
//
// 參數:
//
//	wal: Write-Ahead Log 實例，可為 nil
//
// 回傳:
//
//	*MutexRepository: MutexRepository 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexRepository(wal *wal.WAL) (*MutexRepository, error) {
	repo := &MutexRepository{
		store: newStore(),
		wal:   wal,
	}
	if err := repo.store.recover(wal); err != nil {
		return nil, err
	}
	return repo, nil
}

// GetByID 取得帳戶快照 (副本，修改不會影響儲存)
func (m *MutexRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.get(id)
}

// GetByPhone 以手機號碼取得帳戶快照
func (m *MutexRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.getByPhone(phone)
}

// Create 新增帳戶，成功後 account.Version 為 1
func (m *MutexRepository) Create(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.prepareCreate(account)
	if err != nil {
		return err
	}
	err = m.commit(rec)
	if err == nil || isUncertain(err) {
		account.Version = 1
	}
	return err
}

// Save 以單一原子單位寫回一個或多個帳戶
//
// 參數:
//
//	ctx: 上下文
//	accounts: 讀取後修改過的帳戶，Version 必須與目前儲存的相同
//
// 回傳:
//
//	error: ErrConflict 版本不符；ErrCommitUncertain 寫入 WAL 結果不確定
func (m *MutexRepository) Save(ctx context.Context, accounts ...*domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.prepareSave(accounts)
	if err != nil {
		return err
	}
	err = m.commit(rec)
	if err == nil || isUncertain(err) {
		bumpVersions(rec, accounts)
	}
	return err
}

// commit 1. 寫入 WAL 2. 更新記憶體
// 結果不確定時仍套用到記憶體，讓記憶體與重啟後重放的結果一致
func (m *MutexRepository) commit(rec *walRecord) error {
	err := persist(m.wal, rec)
	if err != nil && !isUncertain(err) {
		return err
	}
	if applyErr := m.store.apply(rec); applyErr != nil {
		return applyErr
	}
	return err
}

var _ usecase.AccountRepository = (*MutexRepository)(nil)
