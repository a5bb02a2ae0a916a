package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

// walRecord 一次提交 (一個或兩個帳戶) 寫入 WAL 的內容
// Sequence: 全局唯一的順序號，用於 WAL 重放確保順序一致
type walRecord struct {
	Sequence uint64       `json:"seq"`
	Accounts []walAccount `json:"accounts"`
}

// walAccount 帳戶的完整表頭 + 本次新增的交易紀錄
// domain.Account 的 json tag 會隱藏雜湊與版本，所以另外定義
type walAccount struct {
	Create       bool                 `json:"create,omitempty"`
	ID           uuid.UUID            `json:"id"`
	Name         string               `json:"name"`
	Phone        string               `json:"phone"`
	DateOfBirth  time.Time            `json:"dob"`
	Balance      int64                `json:"balance"`
	PasswordHash string               `json:"password_hash"`
	PinHash      string               `json:"pin_hash"`
	Version      int64                `json:"version"`
	CreatedAt    time.Time            `json:"created_at"`
	Transactions []domain.Transaction `json:"transactions,omitempty"`
}

// store 帳戶資料，本身不加鎖，由外層 Repository 保護
type store struct {
	accounts map[uuid.UUID]*domain.Account
	phones   map[string]uuid.UUID
	sequence uint64
}

func newStore() *store {
	return &store{
		accounts: make(map[uuid.UUID]*domain.Account),
		phones:   make(map[string]uuid.UUID),
	}
}

func (s *store) get(id uuid.UUID) (*domain.Account, error) {
	account, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (s *store) getByPhone(phone string) (*domain.Account, error) {
	id, ok := s.phones[phone]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return s.get(id)
}

// prepareCreate 檢查並產生建立帳戶的紀錄
func (s *store) prepareCreate(account *domain.Account) (*walRecord, error) {
	if _, ok := s.accounts[account.ID]; ok {
		return nil, domain.ErrAccountAlreadyExists
	}
	if _, ok := s.phones[account.Phone]; ok {
		return nil, domain.ErrAccountAlreadyExists
	}
	entry := toWAL(account, account.Transactions)
	entry.Create = true
	entry.Version = 1
	return &walRecord{Sequence: s.sequence + 1, Accounts: []walAccount{entry}}, nil
}

// prepareSave 版本檢查並產生提交紀錄，任何一個帳戶不符就整筆拒絕
func (s *store) prepareSave(accounts []*domain.Account) (*walRecord, error) {
	rec := &walRecord{Sequence: s.sequence + 1, Accounts: make([]walAccount, 0, len(accounts))}
	for _, account := range accounts {
		current, ok := s.accounts[account.ID]
		if !ok {
			return nil, domain.ErrAccountNotFound
		}
		if current.Version != account.Version || len(account.Transactions) < len(current.Transactions) {
			return nil, domain.ErrConflict
		}
		entry := toWAL(account, account.Transactions[len(current.Transactions):])
		entry.Version = account.Version + 1
		rec.Accounts = append(rec.Accounts, entry)
	}
	return rec, nil
}

// apply 套用紀錄 (提交與 WAL 重放共用)
func (s *store) apply(rec *walRecord) error {
	// 寫入不完整的那筆在重放時已被截掉，所以只要求遞增，不要求連續
	if rec.Sequence <= s.sequence {
		return fmt.Errorf("wal sequence out of order: have %d, got %d", s.sequence, rec.Sequence)
	}
	for _, entry := range rec.Accounts {
		current, ok := s.accounts[entry.ID]
		switch {
		case entry.Create && ok:
			return fmt.Errorf("wal seq %d: account %s already exists", rec.Sequence, entry.ID)
		case !entry.Create && !ok:
			return fmt.Errorf("wal seq %d: account %s: %w", rec.Sequence, entry.ID, domain.ErrAccountNotFound)
		case entry.Create:
			current = &domain.Account{ID: entry.ID}
			s.accounts[entry.ID] = current
		}
		if current.Phone != "" && current.Phone != entry.Phone {
			delete(s.phones, current.Phone)
		}
		current.Name = entry.Name
		current.Phone = entry.Phone
		current.DateOfBirth = entry.DateOfBirth
		current.Balance = entry.Balance
		current.PasswordHash = entry.PasswordHash
		current.PinHash = entry.PinHash
		current.Version = entry.Version
		current.CreatedAt = entry.CreatedAt
		current.Transactions = append(current.Transactions, entry.Transactions...)
		s.phones[entry.Phone] = entry.ID
	}
	s.sequence = rec.Sequence
	return nil
}

// recover 從 WAL 檔案恢復帳本狀態 (單執行緒，無需 Lock)
func (s *store) recover(log *wal.WAL) error {
	if log == nil {
		return nil
	}
	return log.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		return s.apply(&rec)
	})
}

// persist 寫入 WAL (Critical Path)
// 序列化或寫入失敗：重放時不會有這筆，回傳一般錯誤，不可套用到記憶體
// fsync 失敗：檔案裡可能已有這筆，回傳 ErrCommitUncertain
func persist(log *wal.WAL, rec *walRecord) error {
	if log == nil {
		return nil
	}
	err := log.Write(rec)
	if err == nil {
		return nil
	}
	if errors.Is(err, wal.ErrSyncFailed) {
		return fmt.Errorf("%w: %v", domain.ErrCommitUncertain, err)
	}
	return err
}

func isUncertain(err error) bool {
	return errors.Is(err, domain.ErrCommitUncertain)
}

func toWAL(a *domain.Account, newTransactions []domain.Transaction) walAccount {
	return walAccount{
		ID:           a.ID,
		Name:         a.Name,
		Phone:        a.Phone,
		DateOfBirth:  a.DateOfBirth,
		Balance:      a.Balance,
		PasswordHash: a.PasswordHash,
		PinHash:      a.PinHash,
		Version:      a.Version,
		CreatedAt:    a.CreatedAt,
		Transactions: newTransactions,
	}
}

// bumpVersions 提交成功後同步呼叫端手上的版本號
func bumpVersions(rec *walRecord, accounts []*domain.Account) {
	for i := range accounts {
		accounts[i].Version = rec.Accounts[i].Version
	}
}
