package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// RPC invokes a named remote procedure. The procedures own all money and
// interest logic; the client treats them as an authoritative black box and
// never re-derives balances locally.
func (c *Client) RPC(ctx context.Context, name string, args, out any) error {
	name = strings.TrimSpace(name)
	return c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+url.PathEscape(name), args, out)
}

// Names of the remote procedures the client calls. Their internals are
// server-side only.
const (
	RPCUpdateUserBalance    = "update_user_balance"
	RPCProcessInvestment    = "process_investment"
	RPCSetupGoogleUser      = "setup_google_user"
	RPCGenerateReferralCode = "generate_referral_code"
)
