package domain

// OperationType 會改變餘額的操作
type OperationType string

const (
	OperationDeposit    OperationType = "deposit"
	OperationWithdraw   OperationType = "withdraw"
	OperationTransfer   OperationType = "transfer"
	OperationTopUp      OperationType = "topup"
	OperationWalletLoad OperationType = "esewa"
)

// RequiresSecret 除了存款以外都要驗證 PIN
func (t OperationType) RequiresSecret() bool {
	return t != OperationDeposit
}

// Operation 一次餘額操作請求
// 不再分 Deposit/Withdraw 介面，直接看 Type 決定
type Operation struct {
	Type OperationType
	// Amount: 尚未正規化的金額，由 Engine 透過 ParseAmount 處理
	Amount any
	// Secret: PIN 明文，只在驗證時使用一次
	Secret string
	// Counterparty: 轉帳收款人的公開身分 (手機號碼)
	Counterparty string
	// Reference: 儲值的手機號碼或 eSewa ID
	Reference string
	// CrossInstitution: 跨行轉帳，需收手續費
	CrossInstitution bool
}

// ParseOperationType 解析外部傳入的操作名稱
func ParseOperationType(s string) (OperationType, error) {
	switch t := OperationType(s); t {
	case OperationDeposit, OperationWithdraw, OperationTransfer, OperationTopUp, OperationWalletLoad:
		return t, nil
	}
	return "", ErrInvalidOperation
}
