package bank

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"wafra.app/internal/api"
	"wafra.app/internal/audit"
	"wafra.app/internal/notify"
)

// Investment plans. Rates are display values; accrual happens server-side.
var investPlans = map[string]float64{
	"weekly":  2.5,
	"monthly": 12.0,
}

// OpenInvestment opens a position through the process_investment procedure.
func (s *Service) OpenInvestment(ctx context.Context, userID, typ string, amount int64) (*api.Investment, error) {
	if _, ok := investPlans[typ]; !ok {
		return nil, ErrBadInvestType
	}
	if amount < MinInvestAmount {
		return nil, ErrAmountOutOfRange
	}

	var inv api.Investment
	err := s.api.RPC(ctx, api.RPCProcessInvestment, map[string]any{
		"user_id":  userID,
		"action":   "open",
		"type":     typ,
		"currency": Currency,
		"amount":   amount,
	}, &inv)
	if err != nil {
		return nil, err
	}

	_ = audit.LogEvent(audit.WithUserID(ctx, userID), "bank.invest.open", map[string]any{
		"type":   typ,
		"amount": amount,
	})
	s.push(notify.Success, "استثمار جديد", "تم فتح الاستثمار بنجاح")
	return &inv, nil
}

// Investments lists the user's positions as the backend reports them.
func (s *Service) Investments(ctx context.Context, userID string) ([]api.Investment, error) {
	var out []api.Investment
	if err := s.api.Select(ctx, "investments", api.Filters{"user_id": userID}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchInvestment polls the backend for one position and emits a snapshot on
// every status change until it completes or ctx ends. The client never
// simulates maturity locally; the stream only reflects server state.
func (s *Service) WatchInvestment(ctx context.Context, id string, interval time.Duration) <-chan api.Investment {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	out := make(chan api.Investment, 4)
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	go func() {
		defer close(out)
		lastStatus := ""
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			var inv api.Investment
			if err := s.api.SelectOne(ctx, "investments", api.Filters{"id": id}, &inv); err != nil {
				if api.KindOf(err) == api.KindNotFound {
					return
				}
				continue
			}
			if inv.Status != lastStatus {
				lastStatus = inv.Status
				select {
				case out <- inv:
				case <-ctx.Done():
					return
				}
				if inv.Status == "completed" {
					s.push(notify.Success, "اكتمل الاستثمار", "تمت إضافة الأرباح إلى رصيدك")
					return
				}
			}
		}
	}()
	return out
}
