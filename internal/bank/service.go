// Package bank holds the feature flows: transfers, recharge/withdraw,
// investments, savings goals and referrals. Every flow is a thin
// validate-then-call wrapper; balance and interest arithmetic stays behind
// the backend's remote procedures and is never re-derived here.
package bank

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"wafra.app/internal/api"
	"wafra.app/internal/notify"
)

// Currency is the single product currency; amounts are minor units.
const Currency = "SAR"

// Client-side amount bounds, re-validated authoritatively server-side.
const (
	MinTransferAmount = 1_000     // 10.00 SAR
	MaxTransferAmount = 5_000_000 // 50,000.00 SAR
	MinRechargeAmount = 1_000
	MaxRechargeAmount = 1_000_000
	MinWithdrawAmount = 5_000
	MinInvestAmount   = 10_000
	MinGoalTarget     = 1_000
)

var (
	ErrAmountOutOfRange = errors.New("bank: amount out of range")
	ErrRecipientUnknown = errors.New("bank: recipient not found")
	ErrWrongStep        = errors.New("bank: wizard step out of order")
	ErrSelfTransfer     = errors.New("bank: cannot transfer to own account")
	ErrBadMethod        = errors.New("bank: unsupported method")
	ErrBadInvestType    = errors.New("bank: unsupported investment type")
	ErrNameRequired     = errors.New("bank: name is required")
)

// Service executes banking flows for a signed-in user.
type Service struct {
	api    *api.Client
	notify *notify.Center

	// searchLimiter spaces recipient lookups the way the UI debounces
	// search-as-you-type.
	searchLimiter *rate.Limiter
	now           func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithSearchInterval overrides the recipient-lookup spacing.
func WithSearchInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.searchLimiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the banking service. The notification center may be
// nil; completion toasts are then skipped.
func NewService(client *api.Client, center *notify.Center, opts ...Option) *Service {
	s := &Service{
		api:           client,
		notify:        center,
		searchLimiter: rate.NewLimiter(rate.Every(300*time.Millisecond), 1),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) push(typ notify.Type, title, message string) {
	if s.notify == nil {
		return
	}
	s.notify.Push(typ, title, message)
}

// Transactions lists the user's transaction history, newest first as served.
func (s *Service) Transactions(ctx context.Context, userID string) ([]api.Transaction, error) {
	var out []api.Transaction
	if err := s.api.Select(ctx, "transactions", api.Filters{"user_id": userID}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// balanceMutation is the argument block of the update_user_balance procedure.
type balanceMutation struct {
	UserID         string `json:"user_id"`
	Counterparty   string `json:"counterparty,omitempty"`
	Operation      string `json:"operation"` // transfer | recharge | withdraw
	Currency       string `json:"currency"`
	Amount         int64  `json:"amount"`
	Method         string `json:"method,omitempty"`
	Reference      string `json:"reference,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}
