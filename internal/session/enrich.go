package session

import (
	"context"
	"sync"

	"wafra.app/internal/api"
	"wafra.app/internal/obs"
)

// enrich attaches credentials, profile and balance to the base identity. The
// three fetches run concurrently with an all-settled join: each is isolated,
// a failure in one neither cancels the others nor blocks exposing the
// identity. Failures are logged, never surfaced.
func (m *Manager) enrich(ctx context.Context, id api.Identity) *ExtendedUser {
	user := &ExtendedUser{Identity: id}
	filters := api.Filters{"user_id": id.ID}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		var creds api.Credentials
		if err := m.api.SelectOne(ctx, "credentials", filters, &creds); err != nil {
			logEnrichFailure("credentials", id.ID, err)
			return
		}
		user.Credentials = &creds
	}()

	go func() {
		defer wg.Done()
		var profile api.Profile
		if err := m.api.SelectOne(ctx, "profiles", filters, &profile); err != nil {
			logEnrichFailure("profiles", id.ID, err)
			return
		}
		user.Profile = &profile
	}()

	go func() {
		defer wg.Done()
		var balance api.Balance
		if err := m.api.SelectOne(ctx, "balances", filters, &balance); err != nil {
			logEnrichFailure("balances", id.ID, err)
			return
		}
		user.Balance = &balance
	}()

	wg.Wait()
	return user
}

func logEnrichFailure(table, userID string, err error) {
	obs.Warn("enrichment sub-fetch failed", map[string]any{
		"table":   table,
		"user_id": userID,
		"kind":    string(api.KindOf(err)),
		"err":     err.Error(),
	})
}
