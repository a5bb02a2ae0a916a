package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 帳本 gRPC 服務名稱
// 訊息一律使用 google.protobuf.Struct，不需要額外產生程式碼
const ServiceName = "wallet.v1.LedgerService"

const (
	methodPostOperation = "/" + ServiceName + "/PostOperation"
	methodGetBalance    = "/" + ServiceName + "/GetBalance"
	methodGetHistory    = "/" + ServiceName + "/GetHistory"
)

// LedgerServiceServer 服務端介面
type LedgerServiceServer interface {
	PostOperation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterLedgerServiceServer 註冊到 grpc.Server
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

func unaryHandler(method string, call func(LedgerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PostOperation",
			Handler:    unaryHandler(methodPostOperation, LedgerServiceServer.PostOperation),
		},
		{
			MethodName: "GetBalance",
			Handler:    unaryHandler(methodGetBalance, LedgerServiceServer.GetBalance),
		},
		{
			MethodName: "GetHistory",
			Handler:    unaryHandler(methodGetHistory, LedgerServiceServer.GetHistory),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wallet/v1/ledger.proto",
}
