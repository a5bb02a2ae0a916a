package main

import (
	"context"
	"flag"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	grpc_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	grpcpool "github.com/JoeShih716/go-wallet-ledger/pkg/grpc"
	"github.com/JoeShih716/go-wallet-ledger/pkg/logger"
)

// 同時對同一個帳戶送出大量提款，檢查最後餘額等於 初始餘額 - 成功筆數 * 金額
// 任何一筆超扣都代表帳本的並發控制有問題
func main() {
	var (
		target      = flag.String("target", "localhost:50051", "gRPC address")
		account     = flag.String("account", "", "account id to withdraw from")
		pin         = flag.String("pin", "", "account PIN")
		amount      = flag.Int64("amount", 10, "amount per withdraw")
		total       = flag.Int("n", 1000, "number of withdraw requests")
		concurrency = flag.Int("c", 100, "concurrent requests")
	)
	flag.Parse()

	log, err := logger.New("info", "console")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	accountID, err := uuid.Parse(*account)
	if err != nil {
		log.Fatal("invalid -account", zap.Error(err))
	}

	pool := grpcpool.NewPool(grpcpool.WithInterceptor(grpcpool.TimeoutInterceptor(10 * time.Second)))
	defer pool.Close()
	conn, err := pool.GetConnection(*target)
	if err != nil {
		log.Fatal("did not connect", zap.Error(err))
	}
	client := grpc_adapter.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	initial, err := client.GetBalance(ctx, accountID)
	if err != nil {
		log.Fatal("get balance", zap.Error(err))
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rejected  sync.Map // domain.Code -> *atomic.Int64
	)
	sem := make(chan struct{}, *concurrency)
	startTime := time.Now()

	for i := 0; i < *total; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := client.PostOperation(ctx, grpc_adapter.OperationRequest{
				AccountID: accountID,
				Type:      domain.OperationWithdraw,
				Amount:    *amount,
				PIN:       *pin,
			})
			if err == nil {
				succeeded.Add(1)
				return
			}
			code := grpc_adapter.CodeFromError(err)
			if code == "" {
				code = "TRANSPORT"
			}
			v, _ := rejected.LoadOrStore(code, new(atomic.Int64))
			v.(*atomic.Int64).Add(1)
		}()
	}
	wg.Wait()
	elapsed := time.Since(startTime)

	final, err := client.GetBalance(ctx, accountID)
	if err != nil {
		log.Fatal("get balance", zap.Error(err))
	}

	fields := []zap.Field{
		zap.Int("requests", *total),
		zap.Duration("elapsed", elapsed),
		zap.Float64("tps", float64(*total)/elapsed.Seconds()),
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("initial_balance", initial),
		zap.Int64("final_balance", final),
	}
	rejected.Range(func(k, v any) bool {
		fields = append(fields, zap.Int64("rejected_"+string(k.(domain.Code)), v.(*atomic.Int64).Load()))
		return true
	})
	log.Info("withdraw run completed", fields...)

	if want := initial - succeeded.Load()*(*amount); final != want || final < 0 {
		log.Fatal("balance mismatch", zap.Int64("want", want), zap.Int64("got", final))
	}
}
