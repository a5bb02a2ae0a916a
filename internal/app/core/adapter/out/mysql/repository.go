package mysql

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/mysql"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID           string `gorm:"primaryKey;type:char(36)"`
	Name         string `gorm:"size:128"`
	Phone        string `gorm:"size:32;uniqueIndex"`
	DateOfBirth  time.Time
	Balance      int64
	PasswordHash string `gorm:"size:100"`
	PinHash      string `gorm:"size:100"`
	// Version 樂觀鎖
	Version   int64
	CreatedAt time.Time `gorm:"precision:6"`
	UpdatedAt int64     `gorm:"autoUpdateTime:milli"` // 自動更新時間
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlTransaction 對應資料庫的 transactions 表，只新增不修改
type sqlTransaction struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	RefID        []byte `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.Transaction.ID (ULID)
	AccountID    string `gorm:"type:char(36);uniqueIndex:idx_account_seq,priority:1"`
	Seq          int    `gorm:"uniqueIndex:idx_account_seq,priority:2"` // 帳戶內第幾筆 (從 0 開始)
	Type         string `gorm:"size:16"`
	Amount       int64
	Fee          int64
	Details      string `gorm:"size:255"`
	BalanceAfter int64
	CreatedAt    time.Time `gorm:"precision:6"`
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

// AccountRepository MySQL (GORM) 實作
type AccountRepository struct {
	client *mysql.Client
}

func NewAccountRepository(client *mysql.Client) *AccountRepository {
	return &AccountRepository{
		client: client,
	}
}

// AutoMigrate 建立或更新資料表
func (r *AccountRepository) AutoMigrate(ctx context.Context) error {
	return r.client.DB().WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlTransaction{})
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.load(ctx, "id = ?", id.String())
}

func (r *AccountRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	return r.load(ctx, "phone = ?", phone)
}

func (r *AccountRepository) load(ctx context.Context, query string, arg any) (*domain.Account, error) {
	db := r.client.DB().WithContext(ctx)

	var row sqlAccount
	err := db.Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}

	var trans []sqlTransaction
	if err := db.Where("account_id = ?", row.ID).Order("seq ASC").Find(&trans).Error; err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	return toDomain(&row, trans)
}

// Create 新增帳戶 (與初始紀錄，如果有的話)
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	row := fromDomain(account)
	row.Version = 1
	err := r.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		return insertTransactions(tx, row.ID, 0, account.Transactions)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrAccountAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	account.Version = 1
	return nil
}

// Save 在同一個資料庫 Transaction 內更新所有帳戶並附加新紀錄
//
// 參數:
//
//	ctx: 上下文
//	accounts: 讀取後修改過的帳戶
//
// 回傳:
//
//	error: ErrConflict 版本不符 (已回滾)；ErrCommitUncertain Commit 失敗，無法確定是否落地
func (r *AccountRepository) Save(ctx context.Context, accounts ...*domain.Account) error {
	// 依 ID 排序更新，避免兩筆方向相反的轉帳在資料庫互相等待
	ordered := slices.Clone(accounts)
	slices.SortFunc(ordered, func(a, b *domain.Account) int {
		return slices.Compare(a.ID[:], b.ID[:])
	})

	tx := r.client.DB().WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin: %w", tx.Error)
	}
	for _, account := range ordered {
		if err := saveAccount(tx, account); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCommitUncertain, err)
	}
	for _, account := range accounts {
		account.Version++
	}
	return nil
}

// saveAccount 版本相符才更新，接著附加資料庫還沒有的紀錄
func saveAccount(tx *gorm.DB, account *domain.Account) error {
	id := account.ID.String()
	res := tx.Model(&sqlAccount{}).
		Where("id = ? AND version = ?", id, account.Version).
		Updates(map[string]any{
			"name":          account.Name,
			"phone":         account.Phone,
			"balance":       account.Balance,
			"password_hash": account.PasswordHash,
			"pin_hash":      account.PinHash,
			"version":       gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("update account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrConflict
	}

	// 帳戶列已被本 Transaction 鎖住，此時的筆數就是已落地的筆數
	var stored int64
	if err := tx.Model(&sqlTransaction{}).Where("account_id = ?", id).Count(&stored).Error; err != nil {
		return fmt.Errorf("count transactions: %w", err)
	}
	if int(stored) > len(account.Transactions) {
		return domain.ErrConflict
	}
	return insertTransactions(tx, id, int(stored), account.Transactions[stored:])
}

func insertTransactions(tx *gorm.DB, accountID string, firstSeq int, trans []domain.Transaction) error {
	if len(trans) == 0 {
		return nil
	}
	rows := make([]sqlTransaction, 0, len(trans))
	for i, tran := range trans {
		rows = append(rows, sqlTransaction{
			RefID:        tran.ID.Bytes(),
			AccountID:    accountID,
			Seq:          firstSeq + i,
			Type:         string(tran.Type),
			Amount:       tran.Amount,
			Fee:          tran.Fee,
			Details:      tran.Details,
			BalanceAfter: tran.BalanceAfter,
			CreatedAt:    tran.CreatedAt,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert transactions: %w", err)
	}
	return nil
}

func fromDomain(a *domain.Account) *sqlAccount {
	return &sqlAccount{
		ID:           a.ID.String(),
		Name:         a.Name,
		Phone:        a.Phone,
		DateOfBirth:  a.DateOfBirth,
		Balance:      a.Balance,
		PasswordHash: a.PasswordHash,
		PinHash:      a.PinHash,
		Version:      a.Version,
		CreatedAt:    a.CreatedAt,
	}
}

func toDomain(row *sqlAccount, trans []sqlTransaction) (*domain.Account, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("account id %q: %w", row.ID, err)
	}
	account := &domain.Account{
		ID:           id,
		Name:         row.Name,
		Phone:        row.Phone,
		DateOfBirth:  row.DateOfBirth.UTC(),
		Balance:      row.Balance,
		PasswordHash: row.PasswordHash,
		PinHash:      row.PinHash,
		Version:      row.Version,
		CreatedAt:    row.CreatedAt.UTC(),
	}
	if len(trans) > 0 {
		account.Transactions = make([]domain.Transaction, 0, len(trans))
	}
	for _, t := range trans {
		var ref ulid.ULID
		if err := ref.UnmarshalBinary(t.RefID); err != nil {
			return nil, fmt.Errorf("transaction %d ref_id: %w", t.ID, err)
		}
		account.Transactions = append(account.Transactions, domain.Transaction{
			ID:           ref,
			Type:         domain.TransactionType(t.Type),
			Amount:       t.Amount,
			Fee:          t.Fee,
			CreatedAt:    t.CreatedAt.UTC(),
			Details:      t.Details,
			BalanceAfter: t.BalanceAfter,
		})
	}
	return account, nil
}

var _ usecase.AccountRepository = (*AccountRepository)(nil)
