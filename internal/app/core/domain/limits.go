package domain

// OperationLimit 單一操作的金額上下限
// Max 為 0 代表沒有上限
type OperationLimit struct {
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`
}

// Contains 金額是否落在 [Min, Max] 內
func (l OperationLimit) Contains(amount Amount) bool {
	if int64(amount) < l.Min {
		return false
	}
	if l.Max > 0 && int64(amount) > l.Max {
		return false
	}
	return true
}

// Limits 全域的上下限與手續費設定，由設定檔注入 Engine
type Limits struct {
	Deposit    OperationLimit `yaml:"deposit"`
	Withdraw   OperationLimit `yaml:"withdraw"`
	Transfer   OperationLimit `yaml:"transfer"`
	TopUp      OperationLimit `yaml:"topup"`
	WalletLoad OperationLimit `yaml:"wallet_load"`
	// CrossInstitutionFee 跨行轉帳手續費，由付款方負擔
	CrossInstitutionFee int64 `yaml:"cross_institution_fee"`
	// StartingBalance 註冊時給予的初始餘額
	StartingBalance int64 `yaml:"starting_balance"`
}

// DefaultLimits 預設值
func DefaultLimits() Limits {
	return Limits{
		Deposit:             OperationLimit{Min: 10, Max: 50000},
		Withdraw:            OperationLimit{Min: 10, Max: 25000},
		Transfer:            OperationLimit{Min: 10, Max: 25000},
		TopUp:               OperationLimit{Min: 10},
		WalletLoad:          OperationLimit{Min: 10},
		CrossInstitutionFee: 11,
		StartingBalance:     100,
	}
}

// For 取得操作對應的限制
func (l Limits) For(t OperationType) (OperationLimit, bool) {
	switch t {
	case OperationDeposit:
		return l.Deposit, true
	case OperationWithdraw:
		return l.Withdraw, true
	case OperationTransfer:
		return l.Transfer, true
	case OperationTopUp:
		return l.TopUp, true
	case OperationWalletLoad:
		return l.WalletLoad, true
	}
	return OperationLimit{}, false
}
