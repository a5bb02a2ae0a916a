package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

// ErrorDomain 放在 ErrorInfo.Domain，Reason 為帳本錯誤代碼
const ErrorDomain = "wallet.ledger"

// GrpcServer 供內部服務呼叫的帳本介面
// 呼叫端已通過驗證，直接以 account_id 指定帳戶
type GrpcServer struct {
	core *usecase.CoreUseCase
	log  *zap.Logger
}

func NewGrpcServer(core *usecase.CoreUseCase, log *zap.Logger) *GrpcServer {
	return &GrpcServer{
		core: core,
		log:  log,
	}
}

// NewServer 建立 grpc.Server 並註冊帳本服務、health 與 reflection
func NewServer(srv *GrpcServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(LoggingInterceptor(srv.log)),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterLedgerServiceServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	reflection.Register(s) // 方便用 grpcurl 列出服務
	return s
}

// PostOperation 執行一次餘額操作
//
// 請求欄位:
//
//	account_id, type, amount, pin, phone (轉帳收款人), reference (儲值門號 / eSewa ID), cross_institution
//
// 回應欄位:
//
//	balance, transaction, received (轉帳時收款方的紀錄)
func (s *GrpcServer) PostOperation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	accountID, err := uuid.Parse(fields["account_id"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid account_id: "+err.Error())
	}
	opType, err := domain.ParseOperationType(fields["type"].GetStringValue())
	if err != nil {
		return nil, s.toStatus(err)
	}

	op := domain.Operation{
		Type:             opType,
		Amount:           fields["amount"].AsInterface(),
		Secret:           fields["pin"].GetStringValue(),
		Counterparty:     fields["phone"].GetStringValue(),
		Reference:        strings.TrimSpace(fields["reference"].GetStringValue()),
		CrossInstitution: fields["cross_institution"].GetBoolValue(),
	}
	if op.Reference == "" && (opType == domain.OperationTopUp || opType == domain.OperationWalletLoad) {
		return nil, status.Error(codes.InvalidArgument, "reference is required for "+string(opType))
	}
	receipt, err := s.core.PostOperation(ctx, accountID, op)
	if err != nil {
		return nil, s.toStatus(err)
	}

	out := map[string]any{
		"balance":     receipt.Balance,
		"transaction": transactionFields(receipt.Transaction),
	}
	if receipt.Counterparty != nil {
		out["received"] = transactionFields(*receipt.Counterparty)
	}
	return structpb.NewStruct(out)
}

func (s *GrpcServer) GetBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := uuid.Parse(req.GetFields()["account_id"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid account_id: "+err.Error())
	}
	balance, err := s.core.GetBalance(ctx, accountID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"balance": balance})
}

// GetHistory 由新到舊
func (s *GrpcServer) GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := uuid.Parse(req.GetFields()["account_id"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid account_id: "+err.Error())
	}
	history, err := s.core.GetHistory(ctx, accountID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	list := make([]any, 0, len(history))
	for _, tran := range history {
		list = append(list, transactionFields(tran))
	}
	return structpb.NewStruct(map[string]any{"transactions": list})
}

func transactionFields(t domain.Transaction) map[string]any {
	return map[string]any{
		"id":            t.ID.String(),
		"type":          string(t.Type),
		"amount":        t.Amount,
		"fee":           t.Fee,
		"details":       t.Details,
		"balance_after": t.BalanceAfter,
		"date":          t.CreatedAt.Format(time.RFC3339Nano),
	}
}

// grpcCode 帳本錯誤代碼對應的 gRPC status code
func grpcCode(code domain.Code) codes.Code {
	switch code {
	case domain.CodeAccountNotFound, domain.CodeRecipientNotFound:
		return codes.NotFound
	case domain.CodeAccountAlreadyExists:
		return codes.AlreadyExists
	case domain.CodeConflict:
		return codes.Aborted
	case domain.CodeTimeout:
		return codes.DeadlineExceeded
	case domain.CodeCanceled:
		return codes.Canceled
	case domain.CodeAuthenticationFailed:
		return codes.PermissionDenied
	case domain.CodeInsufficientFunds:
		return codes.FailedPrecondition
	case domain.CodePartialTransferFailure:
		return codes.DataLoss
	case domain.CodeInternal:
		return codes.Internal
	}
	return codes.InvalidArgument
}

// toStatus 帳本錯誤轉成 gRPC status，代碼放在 ErrorInfo.Reason
func (s *GrpcServer) toStatus(err error) error {
	code := domain.CodeOf(err)
	message := err.Error()
	var perr *domain.PartialTransferError
	switch {
	case errors.As(err, &perr):
		message = "transfer flagged for reconciliation (ref " + perr.TransactionID.String() + ")"
	case code == domain.CodeInternal:
		s.log.Error("grpc request failed", zap.Error(err))
		message = "server error"
	}

	st := status.New(grpcCode(code), message)
	withInfo, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(code),
		Domain: ErrorDomain,
	})
	if detailErr != nil {
		return st.Err()
	}
	return withInfo.Err()
}

// CodeFromError 從 gRPC 錯誤取回帳本錯誤代碼，沒有時回傳空字串
func CodeFromError(err error) domain.Code {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return domain.Code(info.GetReason())
		}
	}
	return ""
}

// LoggingInterceptor 以 zap 記錄每個 RPC，並把 panic 轉成 Internal
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error("grpc panic", zap.String("method", info.FullMethod), zap.Any("panic", r))
				err = status.Error(codes.Internal, "server error")
			}
			log.Info("grpc request",
				zap.String("method", info.FullMethod),
				zap.String("code", status.Code(err).String()),
				zap.Duration("elapsed", time.Since(start)))
		}()
		return handler(ctx, req)
	}
}
