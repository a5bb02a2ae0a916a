package event

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

// LogPublisher 只把事件寫進 log，沒有設定 Redis / Kafka 時使用
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event *domain.LedgerEvent) error {
	level := zap.InfoLevel
	if event.EventType == domain.EventTransferReconcile {
		level = zap.ErrorLevel
	}
	p.log.Log(level, "ledger event",
		zap.String("event_type", string(event.EventType)),
		zap.String("account_id", event.AccountID.String()),
		zap.String("transaction_id", event.TransactionID),
		zap.String("type", string(event.Type)),
		zap.Int64("amount", event.Amount),
		zap.Int64("fee", event.Fee),
		zap.Int64("balance_after", event.BalanceAfter),
		zap.Time("timestamp", event.Timestamp))
	return nil
}

// Fanout 依序發布到每個 publisher，回傳所有失敗的合併錯誤
type Fanout []usecase.EventPublisher

func (f Fanout) Publish(ctx context.Context, event *domain.LedgerEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ usecase.EventPublisher = (*LogPublisher)(nil)
	_ usecase.EventPublisher = Fanout(nil)
)
