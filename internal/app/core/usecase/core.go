package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// Options CoreUseCase 的執行參數
type Options struct {
	// OperationTimeout 單次 讀取-驗證-修改-附加 的上限
	OperationTimeout time.Duration
	// MaxRetries 遇到 ErrConflict 時最多重試幾次
	MaxRetries int
	// PublishTimeout 發布事件的上限
	PublishTimeout time.Duration
}

// DefaultOptions 預設值
func DefaultOptions() Options {
	return Options{
		OperationTimeout: 5 * time.Second,
		MaxRetries:       3,
		PublishTimeout:   time.Second,
	}
}

// CoreUseCase 是核心業務邏輯層
// 負責 I/O：從 Repository 讀帳戶、交給 Engine 計算、再以單一原子單位寫回
type CoreUseCase struct {
	repo      AccountRepository
	engine    *Engine
	locker    *KeyLocker
	publisher EventPublisher
	recorder  Recorder
	logger    *zap.Logger
	opts      Options

	dummyOnce sync.Once
	dummyHash string
}

// Option CoreUseCase 的選項
type Option func(*CoreUseCase)

func WithPublisher(p EventPublisher) Option {
	return func(c *CoreUseCase) {
		c.publisher = p
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *CoreUseCase) {
		c.recorder = r
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *CoreUseCase) {
		c.logger = l
	}
}

func WithOptions(o Options) Option {
	return func(c *CoreUseCase) {
		c.opts = o
	}
}

func NewCoreUseCase(repo AccountRepository, engine *Engine, opts ...Option) *CoreUseCase {
	c := &CoreUseCase{
		repo:      repo,
		engine:    engine,
		locker:    NewKeyLocker(),
		publisher: nopPublisher{},
		recorder:  nopRecorder{},
		logger:    zap.NewNop(),
		opts:      DefaultOptions(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Receipt 操作成功後回給呼叫端的結果
type Receipt struct {
	Operation   domain.OperationType
	Transaction domain.Transaction
	Balance     int64
	// Counterparty 轉帳時收款方的紀錄
	Counterparty *domain.Transaction
}

// PostOperation 處理一次餘額操作
//
// 參數:
//
//	ctx: 上下文，另外套用 OperationTimeout
//	accountID: 發起操作的帳戶
//	op: 操作請求
//
// 回傳:
//
//	*Receipt: 新增的紀錄與新餘額
//	error: domain 錯誤；ErrConflict 重試用盡、ErrTimeout 逾時、*PartialTransferError 需對帳
func (c *CoreUseCase) PostOperation(ctx context.Context, accountID uuid.UUID, op domain.Operation) (receipt *Receipt, err error) {
	start := time.Now()
	defer func() {
		c.recorder.ObserveOperation(string(op.Type), domain.CodeOf(err), time.Since(start))
	}()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var result *Result
	err = c.retry(ctx, string(op.Type), func(ctx context.Context) error {
		var postErr error
		result, postErr = c.postOnce(ctx, accountID, op)
		return postErr
	})
	if err != nil {
		c.logger.Debug("operation rejected",
			zap.String("operation", string(op.Type)),
			zap.String("account_id", accountID.String()),
			zap.String("code", string(domain.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}

	c.publishResult(ctx, result)

	receipt = &Receipt{
		Operation:   result.Operation,
		Transaction: result.Transactions[0],
		Balance:     result.Account.Balance,
	}
	if len(result.Transactions) > 1 {
		in := result.Transactions[1]
		receipt.Counterparty = &in
	}
	return receipt, nil
}

// postOnce 一次完整的 讀取-驗證-修改-附加
func (c *CoreUseCase) postOnce(ctx context.Context, accountID uuid.UUID, op domain.Operation) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 收款人最先解析，不存在時不做任何變更
	var receiverID uuid.UUID
	if op.Type == domain.OperationTransfer {
		receiver, err := c.repo.GetByPhone(ctx, op.Counterparty)
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrRecipientNotFound
		}
		if err != nil {
			return nil, err
		}
		if receiver.ID == accountID {
			return nil, domain.ErrSameAccount
		}
		receiverID = receiver.ID
	}

	unlock, err := c.locker.LockAll(ctx, accountID, receiverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 上鎖後重新讀取，避免用到舊餘額
	account, err := c.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var counterparty *domain.Account
	if receiverID != uuid.Nil {
		counterparty, err = c.repo.GetByID(ctx, receiverID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrRecipientNotFound
		}
		if err != nil {
			return nil, err
		}
	}

	result, err := c.engine.Apply(op, account, counterparty)
	if err != nil {
		return nil, err
	}

	// 開始提交後不再受取消影響，要嘛全部完成要嘛全部回滾
	if err := c.repo.Save(context.WithoutCancel(ctx), result.Accounts()...); err != nil {
		if op.Type == domain.OperationTransfer && errors.Is(err, domain.ErrCommitUncertain) {
			return nil, c.partialTransfer(ctx, result, err)
		}
		return nil, err
	}
	return result, nil
}

// partialTransfer 提交結果不確定：記錄、發布對帳事件，回傳與一般驗證錯誤不同的錯誤
func (c *CoreUseCase) partialTransfer(ctx context.Context, result *Result, cause error) error {
	out := result.Transactions[0]
	perr := &domain.PartialTransferError{
		SenderID:      result.Account.ID,
		ReceiverID:    result.Counterparty.ID,
		TransactionID: out.ID,
		Amount:        out.Amount,
		Fee:           out.Fee,
		Err:           cause,
	}
	c.logger.Error("transfer requires reconciliation",
		zap.String("transaction_id", out.ID.String()),
		zap.String("sender_id", perr.SenderID.String()),
		zap.String("receiver_id", perr.ReceiverID.String()),
		zap.Int64("amount", out.Amount),
		zap.Int64("fee", out.Fee),
		zap.Error(cause))
	c.publish(ctx, &domain.LedgerEvent{
		EventType:     domain.EventTransferReconcile,
		AccountID:     perr.SenderID,
		CounterpartID: perr.ReceiverID,
		TransactionID: out.ID.String(),
		Type:          out.Type,
		Amount:        out.Amount,
		Fee:           out.Fee,
		ErrorMessage:  cause.Error(),
	})
	return perr
}

// GetBalance 取得帳戶餘額
func (c *CoreUseCase) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	account, err := c.repo.GetByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return c.engine.Balance(account), nil
}

// GetHistory 由新到舊的交易紀錄
func (c *CoreUseCase) GetHistory(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	account, err := c.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return c.engine.History(account), nil
}

// GetProfile 帳戶資料 (雜湊欄位不會被序列化)
func (c *CoreUseCase) GetProfile(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return c.repo.GetByID(ctx, accountID)
}

// ChangePassword 變更密碼，與餘額操作走同一條上鎖與版本檢查路徑
func (c *CoreUseCase) ChangePassword(ctx context.Context, accountID uuid.UUID, oldPassword, newPassword string) (err error) {
	const operation = "change-password"
	start := time.Now()
	defer func() {
		c.recorder.ObserveOperation(operation, domain.CodeOf(err), time.Since(start))
	}()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err = c.retry(ctx, operation, func(ctx context.Context) error {
		unlock, err := c.locker.LockAll(ctx, accountID)
		if err != nil {
			return err
		}
		defer unlock()

		account, err := c.repo.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		updated, err := c.engine.ChangePassword(account, oldPassword, newPassword)
		if err != nil {
			return err
		}
		return c.repo.Save(context.WithoutCancel(ctx), updated)
	})
	if err != nil {
		return err
	}
	c.publish(ctx, &domain.LedgerEvent{
		EventType: domain.EventPasswordChanged,
		AccountID: accountID,
	})
	return nil
}

// retry 遇到 ErrConflict 從頭重跑整個操作，逾時轉成 ErrTimeout
func (c *CoreUseCase) retry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if !errors.Is(err, domain.ErrConflict) || attempt >= c.opts.MaxRetries {
			break
		}
		c.recorder.ObserveRetry(operation)
		c.logger.Debug("conflict, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1))
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrTimeout
	case errors.Is(err, context.Canceled):
		return domain.ErrCanceled
	}
	return err
}

func (c *CoreUseCase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.OperationTimeout)
}

// publishResult 每筆新增的紀錄發布一個事件
func (c *CoreUseCase) publishResult(ctx context.Context, result *Result) {
	out := result.Transactions[0]
	event := &domain.LedgerEvent{
		EventType:     domain.EventTransactionCompleted,
		AccountID:     result.Account.ID,
		TransactionID: out.ID.String(),
		Type:          out.Type,
		Amount:        out.Amount,
		Fee:           out.Fee,
		BalanceAfter:  out.BalanceAfter,
		Details:       out.Details,
		Timestamp:     out.CreatedAt,
	}
	if result.Counterparty != nil {
		event.EventType = domain.EventTransferCompleted
		event.CounterpartID = result.Counterparty.ID
	}
	c.publish(ctx, event)

	if result.Counterparty != nil {
		in := result.Transactions[1]
		c.publish(ctx, &domain.LedgerEvent{
			EventType:     domain.EventTransactionCompleted,
			AccountID:     result.Counterparty.ID,
			CounterpartID: result.Account.ID,
			TransactionID: in.ID.String(),
			Type:          in.Type,
			Amount:        in.Amount,
			BalanceAfter:  in.BalanceAfter,
			Details:       in.Details,
			Timestamp:     in.CreatedAt,
		})
	}
}

// publish 盡力而為：失敗只記 log，不影響已提交的結果
func (c *CoreUseCase) publish(ctx context.Context, event *domain.LedgerEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = c.engine.clock.Now()
	}
	timeout := c.opts.PublishTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := c.publisher.Publish(pubCtx, event); err != nil {
		c.logger.Warn("publish ledger event failed",
			zap.String("event_type", string(event.EventType)),
			zap.String("account_id", event.AccountID.String()),
			zap.Error(err))
	}
}
