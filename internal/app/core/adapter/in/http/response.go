package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// HTTP 層自己的錯誤代碼 (不屬於帳本規則)
const (
	codeInvalidRequest domain.Code = "INVALID_REQUEST"
	codeUnauthorized   domain.Code = "UNAUTHORIZED"
)

// APIResponse 統一的回應格式
type APIResponse struct {
	Status  string      `json:"status"`
	Code    domain.Code `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    any         `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, APIResponse{Status: "success", Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, code domain.Code, message string) {
	writeJSON(w, status, APIResponse{Status: "error", Code: code, Message: message})
}

// statusOf 錯誤代碼對應的 HTTP status
func statusOf(code domain.Code) int {
	switch code {
	case domain.CodeRecipientNotFound, domain.CodeAccountNotFound:
		return http.StatusNotFound
	case domain.CodeAccountAlreadyExists, domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeTimeout:
		return http.StatusServiceUnavailable
	case domain.CodeCanceled:
		return http.StatusRequestTimeout
	case domain.CodePartialTransferFailure, domain.CodeInternal:
		return http.StatusInternalServerError
	case codeUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusBadRequest
}

// writeError 將 usecase 回傳的錯誤轉成回應
// 基礎設施錯誤只回傳固定訊息，細節寫進 log
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	message := err.Error()

	var perr *domain.PartialTransferError
	switch {
	case errors.As(err, &perr):
		message = "Transfer could not be confirmed and has been flagged for reconciliation (ref " + perr.TransactionID.String() + ")"
	case code == domain.CodeInternal:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		message = "Server error"
	}
	writeFailure(w, statusOf(code), code, message)
}
