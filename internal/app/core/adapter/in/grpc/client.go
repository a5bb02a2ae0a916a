package grpc

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// Client LedgerService 的呼叫端
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// OperationRequest PostOperation 的參數
type OperationRequest struct {
	AccountID        uuid.UUID
	Type             domain.OperationType
	Amount           int64
	PIN              string
	Phone            string
	Reference        string
	CrossInstitution bool
}

// PostOperation 回傳原始的回應 Struct，錯誤代碼可用 CodeFromError 取得
func (c *Client) PostOperation(ctx context.Context, req OperationRequest) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{
		"account_id":        req.AccountID.String(),
		"type":              string(req.Type),
		"amount":            req.Amount,
		"pin":               req.PIN,
		"phone":             req.Phone,
		"reference":         req.Reference,
		"cross_institution": req.CrossInstitution,
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodPostOperation, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBalance 查詢餘額
func (c *Client) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	out, err := c.invokeAccount(ctx, methodGetBalance, accountID)
	if err != nil {
		return 0, err
	}
	return int64(out.GetFields()["balance"].GetNumberValue()), nil
}

// GetHistory 交易紀錄 (由新到舊)
func (c *Client) GetHistory(ctx context.Context, accountID uuid.UUID) ([]*structpb.Struct, error) {
	out, err := c.invokeAccount(ctx, methodGetHistory, accountID)
	if err != nil {
		return nil, err
	}
	values := out.GetFields()["transactions"].GetListValue().GetValues()
	list := make([]*structpb.Struct, 0, len(values))
	for _, v := range values {
		list = append(list, v.GetStructValue())
	}
	return list, nil
}

func (c *Client) invokeAccount(ctx context.Context, method string, accountID uuid.UUID) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"account_id": accountID.String()})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
