// internal/api/handler/ledger.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mentor-points/internal/api/types"
	"mentor-points/internal/domain"
	"mentor-points/internal/repository"
	"mentor-points/internal/service"
	"mentor-points/internal/util" // For custom errors
)

// DefaultTimeout bounds every request handled by the router.
const DefaultTimeout = 30 * time.Second

// ExpirationProcessor runs one expiration sweep.
type ExpirationProcessor interface {
	ProcessExpired(ctx context.Context, now time.Time) (int, error)
}

// LedgerHandler handles HTTP requests for the points ledger.
type LedgerHandler struct {
	service  service.LedgerService
	sweeper  ExpirationProcessor
	validate *validator.Validate
	logger   *slog.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(svc service.LedgerService, sweeper ExpirationProcessor, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		service:  svc,
		sweeper:  sweeper,
		validate: validator.New(),
		logger:   logger,
	}
}

// Helper function to send JSON responses.
func (h *LedgerHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Helper function to send error responses.
func (h *LedgerHandler) respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case util.IsError(err, util.ErrInvalidInput),
		util.IsError(err, util.ErrInvalidAmount),
		util.IsError(err, util.ErrInvalidReason):
		statusCode = http.StatusBadRequest
		message = err.Error()
	case util.IsError(err, util.ErrAccountNotFound):
		statusCode = http.StatusNotFound
		message = "Account not found"
	case util.IsError(err, util.ErrTransactionNotFound):
		statusCode = http.StatusNotFound
		message = "Transaction not found"
	case util.IsError(err, util.ErrInsufficientBalance):
		statusCode = http.StatusPaymentRequired // 402 Payment Required
		message = "Insufficient points balance"
	case util.IsError(err, util.ErrAlreadyReversed):
		statusCode = http.StatusConflict
		message = "Transaction already reversed"
	case util.IsError(err, util.ErrReversalNotAllowed):
		statusCode = http.StatusConflict
		message = "Reversal transactions cannot be reversed"
	case util.IsError(err, util.ErrAccountLockTimeout):
		statusCode = http.StatusServiceUnavailable
		message = "Account is busy, retry later"
		w.Header().Set("Retry-After", "1")
	default:
		h.logger.Error("Unhandled service error", "error", err)
	}

	h.respondWithJSON(w, statusCode, types.ErrorResponse{Error: message})
}

func (h *LedgerHandler) respondWithValidationError(w http.ResponseWriter, err error) {
	var details []string
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			details = append(details, fmt.Sprintf("field '%s' failed on the '%s' tag", e.Field(), e.Tag()))
		}
	}
	h.respondWithJSON(w, http.StatusBadRequest, types.ErrorResponse{
		Error:   util.ErrInvalidInput.Error(),
		Details: details,
	})
}

// ownerParam reads and validates the {owner} path segment.
func (h *LedgerHandler) ownerParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := chi.URLParam(r, "owner")
	if err := h.validate.Var(owner, "required,max=128,printascii"); err != nil {
		h.respondWithValidationError(w, err)
		return "", false
	}
	return owner, true
}

// EntryRequest represents the request body for award and deduct.
type EntryRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason" validate:"required,max=64"`
	ReferenceID *string         `json:"reference_id,omitempty" validate:"omitempty,max=255"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=1000"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

func (req EntryRequest) options() []domain.EntryOption {
	var opts []domain.EntryOption
	if req.ReferenceID != nil {
		opts = append(opts, domain.WithReference(*req.ReferenceID))
	}
	if req.Description != nil {
		opts = append(opts, domain.WithDescription(*req.Description))
	}
	if req.ExpiresAt != nil {
		opts = append(opts, domain.WithExpiry(*req.ExpiresAt))
	}
	return opts
}

type entryFunc func(ctx context.Context, owner string, amount decimal.Decimal, reason domain.ReasonCode, opts ...domain.EntryOption) (*domain.Account, *domain.Transaction, error)

// Award handles the award points request.
// POST /accounts/{owner}/award
func (h *LedgerHandler) Award(w http.ResponseWriter, r *http.Request) {
	h.handleEntry(w, r, h.service.Award, "Points awarded")
}

// Deduct handles the deduct points request.
// POST /accounts/{owner}/deduct
func (h *LedgerHandler) Deduct(w http.ResponseWriter, r *http.Request) {
	h.handleEntry(w, r, h.service.Deduct, "Points deducted")
}

func (h *LedgerHandler) handleEntry(w http.ResponseWriter, r *http.Request, book entryFunc, message string) {
	owner, ok := h.ownerParam(w, r)
	if !ok {
		return
	}

	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondWithValidationError(w, err)
		return
	}

	account, transaction, err := book(r.Context(), owner, req.Amount, domain.ReasonCode(req.Reason), req.options()...)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.EntryResponse{
		Message:        message,
		Owner:          account.Owner,
		NewBalance:     account.Balance,
		LifetimeEarned: account.LifetimeEarned,
		LifetimeSpent:  account.LifetimeSpent,
		Transaction:    transaction,
	})
}

// GetBalance handles the get balance request. Unknown owners have a zero balance.
// GET /accounts/{owner}/balance
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.ownerParam(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), owner)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.BalanceResponse{Owner: owner, Balance: balance})
}

// GetAccount handles the get account request.
// GET /accounts/{owner}
func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.ownerParam(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), owner)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, account)
}

// GetTransactionHistory handles the get transaction history request.
// GET /accounts/{owner}/transactions?limit&offset&from&to
func (h *LedgerHandler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.ownerParam(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit <= 0 {
		limit = service.DefaultHistoryLimit
	}
	if limit > service.MaxHistoryLimit {
		limit = service.MaxHistoryLimit
	}
	offset, err := strconv.Atoi(query.Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	from, err := parseTimeParam(query.Get("from"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	to, err := parseTimeParam(query.Get("to"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	transactions, totalCount, err := h.service.GetHistory(r.Context(), owner, repository.HistoryFilter{
		Limit:  limit,
		Offset: offset,
		From:   from,
		To:     to,
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.PaginatedResponse[domain.Transaction]{
		Data:       transactions,
		Limit:      limit,
		Offset:     offset,
		TotalCount: totalCount,
	})
}

type periodFunc func(ctx context.Context, owner string, start, end time.Time) (decimal.Decimal, error)

// GetEarned handles the earned-in-period request.
// GET /accounts/{owner}/earned?from&to
func (h *LedgerHandler) GetEarned(w http.ResponseWriter, r *http.Request) {
	h.handlePeriod(w, r, h.service.GetEarnedInPeriod)
}

// GetSpent handles the spent-in-period request.
// GET /accounts/{owner}/spent?from&to
func (h *LedgerHandler) GetSpent(w http.ResponseWriter, r *http.Request) {
	h.handlePeriod(w, r, h.service.GetSpentInPeriod)
}

func (h *LedgerHandler) handlePeriod(w http.ResponseWriter, r *http.Request, total periodFunc) {
	owner, ok := h.ownerParam(w, r)
	if !ok {
		return
	}

	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if from.IsZero() || to.IsZero() {
		h.respondWithError(w, fmt.Errorf("from and to are required: %w", util.ErrInvalidInput))
		return
	}

	sum, err := total(r.Context(), owner, from, to)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.PeriodTotalResponse{Owner: owner, From: from, To: to, Total: sum})
}

// Reconcile handles the balance audit request.
// GET /accounts/{owner}/reconcile
func (h *LedgerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.ownerParam(w, r)
	if !ok {
		return
	}

	result, err := h.service.Reconcile(r.Context(), owner)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, result)
}

// ReverseRequest represents the request body for reverse.
type ReverseRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// Reverse handles the reverse transaction request.
// POST /transactions/{transactionID}/reverse
func (h *LedgerHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		h.respondWithError(w, fmt.Errorf("malformed transaction id: %w", util.ErrInvalidInput))
		return
	}

	var req ReverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondWithValidationError(w, err)
		return
	}

	reversal, err := h.service.Reverse(r.Context(), transactionID, req.Reason)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.ReversalResponse{
		Message:    "Transaction reversed",
		ReversalOf: transactionID,
		Reversal:   reversal,
	})
}

// RunSweep triggers one expiration sweep.
// POST /sweeps?as_of=RFC3339
func (h *LedgerHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseTimeParam(r.URL.Query().Get("as_of"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	processed, err := h.sweeper.ProcessExpired(r.Context(), asOf)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.SweepResponse{AsOf: asOf, Processed: processed})
}

// parseTimeParam parses an optional RFC 3339 query value. Empty means zero time.
func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, want RFC 3339: %w", value, util.ErrInvalidInput)
	}
	return t.UTC(), nil
}
