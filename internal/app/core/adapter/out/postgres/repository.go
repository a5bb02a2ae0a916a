package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

// uniqueViolation PostgreSQL 的 unique_violation 錯誤碼
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	phone         TEXT NOT NULL UNIQUE,
	date_of_birth TIMESTAMPTZ NOT NULL,
	balance       BIGINT NOT NULL CHECK (balance >= 0),
	password_hash TEXT NOT NULL,
	pin_hash      TEXT NOT NULL,
	version       BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS transactions (
	ref_id        CHAR(26) PRIMARY KEY,
	account_id    UUID NOT NULL REFERENCES accounts(id),
	seq           INT NOT NULL,
	type          TEXT NOT NULL,
	amount        BIGINT NOT NULL,
	fee           BIGINT NOT NULL DEFAULT 0,
	details       TEXT NOT NULL,
	balance_after BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (account_id, seq)
);`

// AccountRepository PostgreSQL (pgx) 實作
type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Migrate 建立資料表 (可重複執行)
func (r *AccountRepository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.load(ctx, `WHERE id = $1`, id.String())
}

func (r *AccountRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	return r.load(ctx, `WHERE phone = $1`, phone)
}

func (r *AccountRepository) load(ctx context.Context, where string, arg any) (*domain.Account, error) {
	var (
		account domain.Account
		id      string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id::text, name, phone, date_of_birth, balance, password_hash, pin_hash, version, created_at
		FROM accounts `+where, arg).Scan(
		&id, &account.Name, &account.Phone, &account.DateOfBirth, &account.Balance,
		&account.PasswordHash, &account.PinHash, &account.Version, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	if account.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("account id %q: %w", id, err)
	}
	account.DateOfBirth = account.DateOfBirth.UTC()
	account.CreatedAt = account.CreatedAt.UTC()

	rows, err := r.db.Query(ctx, `
		SELECT ref_id, type, amount, fee, details, balance_after, created_at
		FROM transactions WHERE account_id = $1 ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tran  domain.Transaction
			refID string
			typ   string
		)
		if err := rows.Scan(&refID, &typ, &tran.Amount, &tran.Fee, &tran.Details, &tran.BalanceAfter, &tran.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tran.ID, err = ulid.ParseStrict(refID); err != nil {
			return nil, fmt.Errorf("transaction ref_id %q: %w", refID, err)
		}
		tran.Type = domain.TransactionType(typ)
		tran.CreatedAt = tran.CreatedAt.UTC()
		account.Transactions = append(account.Transactions, tran)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}
	return &account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (id, name, phone, date_of_birth, balance, password_hash, pin_hash, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)`,
		account.ID.String(), account.Name, account.Phone, account.DateOfBirth, account.Balance,
		account.PasswordHash, account.PinHash, account.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAccountAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if err := insertTransactions(ctx, tx, account.ID.String(), 0, account.Transactions); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	account.Version = 1
	return nil
}

// Save 在同一個資料庫 Transaction 內更新所有帳戶並附加新紀錄
//
// 回傳:
//
//	error: ErrConflict 版本不符 (已回滾)；ErrCommitUncertain Commit 失敗，無法確定是否落地
func (r *AccountRepository) Save(ctx context.Context, accounts ...*domain.Account) error {
	ordered := slices.Clone(accounts)
	slices.SortFunc(ordered, func(a, b *domain.Account) int {
		return slices.Compare(a.ID[:], b.ID[:])
	})

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, account := range ordered {
		if err := saveAccount(ctx, tx, account); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCommitUncertain, err)
	}
	for _, account := range accounts {
		account.Version++
	}
	return nil
}

func saveAccount(ctx context.Context, tx pgx.Tx, account *domain.Account) error {
	id := account.ID.String()
	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET name = $3, phone = $4, balance = $5, password_hash = $6, pin_hash = $7,
			version = version + 1, updated_at = $8
		WHERE id = $1 AND version = $2`,
		id, account.Version, account.Name, account.Phone, account.Balance,
		account.PasswordHash, account.PinHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}

	// 帳戶列已被本 Transaction 鎖住，此時的筆數就是已落地的筆數
	var stored int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM transactions WHERE account_id = $1`, id).Scan(&stored); err != nil {
		return fmt.Errorf("count transactions: %w", err)
	}
	if stored > len(account.Transactions) {
		return domain.ErrConflict
	}
	return insertTransactions(ctx, tx, id, stored, account.Transactions[stored:])
}

func insertTransactions(ctx context.Context, tx pgx.Tx, accountID string, firstSeq int, trans []domain.Transaction) error {
	if len(trans) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, tran := range trans {
		batch.Queue(`
			INSERT INTO transactions (ref_id, account_id, seq, type, amount, fee, details, balance_after, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			tran.ID.String(), accountID, firstSeq+i, string(tran.Type), tran.Amount, tran.Fee,
			tran.Details, tran.BalanceAfter, tran.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert transactions: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ usecase.AccountRepository = (*AccountRepository)(nil)
