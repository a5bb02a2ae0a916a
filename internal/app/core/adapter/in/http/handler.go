package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/statement"
)

const maxBodyBytes = 1 << 20

// Handler /api/user 底下的所有端點
type Handler struct {
	core   *usecase.CoreUseCase
	tokens *TokenIssuer
	log    *zap.Logger
	// scale 對帳單金額的小數位數
	scale int32
}

func NewHandler(core *usecase.CoreUseCase, tokens *TokenIssuer, log *zap.Logger, scale int32) *Handler {
	return &Handler{core: core, tokens: tokens, log: log, scale: scale}
}

// decode 讀取 JSON body，數字保留為 json.Number 交給 ParseAmount 判斷
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeFailure(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return false
	}
	return true
}

type registerRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	DOB      string `json:"dob"`
	PIN      string `json:"pin"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	in := usecase.RegisterInput{
		Name:     req.Name,
		Phone:    req.Phone,
		Password: req.Password,
		PIN:      req.PIN,
	}
	if req.DOB != "" {
		dob, err := parseDate(req.DOB)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, domain.CodeInvalidRegistration, "Invalid date of birth")
			return
		}
		in.DateOfBirth = dob
	}
	account, err := h.core.Register(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Registration successful", account)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Phone) == "" || req.Password == "" {
		writeFailure(w, http.StatusBadRequest, codeInvalidRequest, "Please enter all fields")
		return
	}
	account, err := h.core.Authenticate(r.Context(), req.Phone, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.tokens.Issue(account.ID, account.Phone)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("issue token: %w", err))
		return
	}
	writeSuccess(w, http.StatusOK, "", loginResponse{Token: token, Name: account.Name, Phone: account.Phone})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.core.GetBalance(r.Context(), accountIDFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]int64{"balance": balance})
}

// operationRequest 各種餘額操作共用的 body
// phone: 轉帳收款人或儲值門號；id: eSewa ID；bankType: "different" 代表跨行
type operationRequest struct {
	Amount   any    `json:"amount"`
	PIN      string `json:"pin"`
	Phone    string `json:"phone"`
	ID       string `json:"id"`
	BankType string `json:"bankType"`
}

type operationResponse struct {
	Balance     int64               `json:"balance"`
	Transaction domain.Transaction  `json:"transaction"`
	Received    *domain.Transaction `json:"received,omitempty"`
}

// Operation 產生處理某種餘額操作的 handler
func (h *Handler) Operation(opType domain.OperationType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req operationRequest
		if !decode(w, r, &req) {
			return
		}
		op := domain.Operation{
			Type:   opType,
			Amount: req.Amount,
			Secret: req.PIN,
		}
		switch opType {
		case domain.OperationTransfer:
			op.Counterparty = strings.TrimSpace(req.Phone)
			op.CrossInstitution = req.BankType == "different"
		case domain.OperationTopUp:
			op.Reference = strings.TrimSpace(req.Phone)
		case domain.OperationWalletLoad:
			op.Reference = strings.TrimSpace(req.ID)
		}
		if op.Reference == "" && (opType == domain.OperationTopUp || opType == domain.OperationWalletLoad) {
			writeFailure(w, http.StatusBadRequest, codeInvalidRequest, "Recipient phone or wallet ID is required")
			return
		}

		receipt, err := h.core.PostOperation(r.Context(), accountIDFrom(r.Context()), op)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, receipt.Transaction.Details, operationResponse{
			Balance:     receipt.Balance,
			Transaction: receipt.Transaction,
			Received:    receipt.Counterparty,
		})
	}
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.core.ChangePassword(r.Context(), accountIDFrom(r.Context()), req.OldPassword, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password changed successfully", nil)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	account, err := h.core.GetProfile(r.Context(), accountIDFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	account.Transactions = nil
	writeSuccess(w, http.StatusOK, "", account)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	history, err := h.core.GetHistory(r.Context(), accountIDFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", history)
}

// ExportTransactions 下載對帳單 ?format=xlsx|pdf (預設 xlsx)
func (h *Handler) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	format := statement.FormatXLSX
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := statement.ParseFormat(f)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, codeInvalidRequest, "format must be xlsx or pdf")
			return
		}
		format = parsed
	}

	account, err := h.core.GetProfile(r.Context(), accountIDFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	stmt := &statement.Statement{
		AccountName: account.Name,
		Phone:       account.Phone,
		GeneratedAt: time.Now().UTC(),
		Balance:     account.Balance,
		Scale:       h.scale,
	}
	for i := len(account.Transactions) - 1; i >= 0; i-- {
		tran := account.Transactions[i]
		stmt.Entries = append(stmt.Entries, statement.Entry{
			ID:           tran.ID.String(),
			Date:         tran.CreatedAt,
			Type:         string(tran.Type),
			Details:      tran.Details,
			Amount:       tran.Amount,
			Fee:          tran.Fee,
			BalanceAfter: tran.BalanceAfter,
		})
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%s.%s"`, account.Phone, format))
	if err := stmt.Write(w, format); err != nil {
		h.log.Error("write statement failed", zap.String("format", string(format)), zap.Error(err))
	}
}
