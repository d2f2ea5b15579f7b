// internal/api/types/response.go
package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mentor-points/internal/domain"
)

// PaginatedResponse defines a generic structure for paginated API responses.
// T represents the type of data contained in the 'Data' slice.
type PaginatedResponse[T any] struct {
	Data       []T   `json:"data"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	TotalCount int64 `json:"total_count"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// EntryResponse is returned by award and deduct.
type EntryResponse struct {
	Message        string              `json:"message"`
	Owner          string              `json:"owner"`
	NewBalance     decimal.Decimal     `json:"new_balance"`
	LifetimeEarned decimal.Decimal     `json:"lifetime_earned"`
	LifetimeSpent  decimal.Decimal     `json:"lifetime_spent"`
	Transaction    *domain.Transaction `json:"transaction"`
}

// BalanceResponse is returned by the balance endpoint.
type BalanceResponse struct {
	Owner   string          `json:"owner"`
	Balance decimal.Decimal `json:"balance"`
}

// PeriodTotalResponse is returned by the earned and spent endpoints.
type PeriodTotalResponse struct {
	Owner string          `json:"owner"`
	From  time.Time       `json:"from"`
	To    time.Time       `json:"to"`
	Total decimal.Decimal `json:"total"`
}

// ReversalResponse is returned by the reverse endpoint.
type ReversalResponse struct {
	Message    string              `json:"message"`
	ReversalOf uuid.UUID           `json:"reversal_of"`
	Reversal   *domain.Transaction `json:"reversal"`
}

// SweepResponse is returned by a manually triggered expiration sweep.
type SweepResponse struct {
	AsOf      time.Time `json:"as_of"`
	Processed int       `json:"processed"`
}
