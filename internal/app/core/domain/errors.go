package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Code 穩定的錯誤代碼，對外 (HTTP / gRPC) 只暴露這個值
type Code string

const (
	CodeInvalidAmount          Code = "INVALID_AMOUNT"
	CodeAmountOutOfRange       Code = "AMOUNT_OUT_OF_RANGE"
	CodeAuthenticationFailed   Code = "AUTHENTICATION_FAILED"
	CodeInsufficientFunds      Code = "INSUFFICIENT_FUNDS"
	CodeRecipientNotFound      Code = "RECIPIENT_NOT_FOUND"
	CodePartialTransferFailure Code = "PARTIAL_TRANSFER_FAILURE"
	CodeConflict               Code = "CONFLICT"
	CodeWeakSecret             Code = "WEAK_SECRET"
	CodeAccountNotFound        Code = "ACCOUNT_NOT_FOUND"
	CodeAccountAlreadyExists   Code = "ACCOUNT_ALREADY_EXISTS"
	CodeSameAccount            Code = "SAME_ACCOUNT"
	CodeInvalidRegistration    Code = "INVALID_REGISTRATION"
	CodeInvalidOperation       Code = "INVALID_OPERATION"
	CodeTimeout                Code = "TIMEOUT"
	CodeCanceled               Code = "CANCELED"
	CodeInternal               Code = "INTERNAL"
)

// Error 業務錯誤，以指標比對 (errors.Is)
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrInvalidAmount 金額缺漏、非數字、非整數或不為正數
	ErrInvalidAmount = &Error{Code: CodeInvalidAmount, Message: "amount must be a positive integer"}

	// ErrAmountOutOfRange 金額超出該操作的上下限
	ErrAmountOutOfRange = &Error{Code: CodeAmountOutOfRange, Message: "amount out of range"}

	// ErrAuthenticationFailed PIN 或密碼錯誤
	ErrAuthenticationFailed = &Error{Code: CodeAuthenticationFailed, Message: "invalid credentials"}

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds, Message: "insufficient balance"}

	// ErrRecipientNotFound 找不到收款人
	ErrRecipientNotFound = &Error{Code: CodeRecipientNotFound, Message: "recipient not found"}

	// ErrPartialTransfer 轉帳提交結果不確定，需要人工對帳
	ErrPartialTransfer = &Error{Code: CodePartialTransferFailure, Message: "transfer commit left accounts inconsistent"}

	// ErrConflict 併發修改，整個操作可安全重試
	ErrConflict = &Error{Code: CodeConflict, Message: "concurrent modification, retry"}

	// ErrWeakSecret 新密碼不符合強度規則
	ErrWeakSecret = &Error{Code: CodeWeakSecret, Message: "password must be 8+ characters, include uppercase, number, and symbol"}

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = &Error{Code: CodeAccountNotFound, Message: "account not found"}

	// ErrAccountAlreadyExists 帳戶已存在
	ErrAccountAlreadyExists = &Error{Code: CodeAccountAlreadyExists, Message: "phone already registered"}

	// ErrSameAccount 不可轉帳給自己
	ErrSameAccount = &Error{Code: CodeSameAccount, Message: "cannot transfer to your own account"}

	// ErrInvalidOperation 未知的操作類型
	ErrInvalidOperation = &Error{Code: CodeInvalidOperation, Message: "invalid operation type"}

	// ErrTimeout 操作逾時，未提交任何變更，可重試
	ErrTimeout = &Error{Code: CodeTimeout, Message: "operation timed out, retry"}

	// ErrCanceled 呼叫端在提交前取消，未提交任何變更
	ErrCanceled = &Error{Code: CodeCanceled, Message: "operation canceled"}
)

// ErrCommitUncertain 由 Repository 回傳：提交階段失敗，無法確定資料是否已落地
var ErrCommitUncertain = errors.New("commit outcome uncertain")

// RegistrationError 註冊欄位驗證失敗
type RegistrationError struct {
	Reason string
}

func (e *RegistrationError) Error() string {
	return e.Reason
}

// Is 讓 errors.Is(err, ErrInvalidRegistration) 成立
func (e *RegistrationError) Is(target error) bool {
	return target == ErrInvalidRegistration
}

// ErrInvalidRegistration 註冊資料不合法的共同哨兵
var ErrInvalidRegistration = &Error{Code: CodeInvalidRegistration, Message: "invalid registration"}

// PartialTransferError 帶有對帳所需資訊的轉帳失敗
type PartialTransferError struct {
	SenderID      uuid.UUID
	ReceiverID    uuid.UUID
	TransactionID ulid.ULID
	Amount        int64
	Fee           int64
	Err           error
}

func (e *PartialTransferError) Error() string {
	return fmt.Sprintf("partial transfer %s from %s to %s: %v", e.TransactionID, e.SenderID, e.ReceiverID, e.Err)
}

func (e *PartialTransferError) Unwrap() error {
	return e.Err
}

func (e *PartialTransferError) Is(target error) bool {
	return target == ErrPartialTransfer
}

// CodeOf 將任何錯誤對應到穩定代碼，未知錯誤一律 INTERNAL
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrPartialTransfer) {
		return CodePartialTransferFailure
	}
	if errors.Is(err, ErrInvalidRegistration) {
		return CodeInvalidRegistration
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return CodeCanceled
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable 衝突、逾時、取消都保證沒有任何變更被提交
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeConflict, CodeTimeout, CodeCanceled:
		return true
	}
	return false
}
