package sandbox

import (
	"net/http"
	"strings"
	"time"

	"wafra.app/internal/audit"
	"wafra.app/internal/ids"
)

const msgInsufficientFunds = "Insufficient funds"

// handleRPC dispatches named procedures under /rest/v1/rpc/{name}.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if _, ok := s.bearerUser(r); !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/rest/v1/rpc/")

	var args row
	if err := decodeJSON(r, &args); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	switch name {
	case "update_user_balance":
		s.rpcUpdateBalance(w, r, args)
	case "process_investment":
		s.rpcProcessInvestment(w, r, args)
	case "setup_google_user":
		s.rpcSetupGoogleUser(w, r, args)
	case "generate_referral_code":
		s.rpcGenerateReferralCode(w, args)
	default:
		writeError(w, http.StatusNotFound, "unknown function")
	}
}

// rpcUpdateBalance is the single money-movement procedure: transfer, recharge
// and withdraw all go through it. An idempotency key replays the stored
// transaction instead of moving money twice.
func (s *Server) rpcUpdateBalance(w http.ResponseWriter, r *http.Request, args row) {
	userID, _ := args["user_id"].(string)
	op, _ := args["operation"].(string)
	amount := asInt64(args["amount"])
	idemKey, _ := args["idempotency_key"].(string)

	if userID == "" || amount <= 0 {
		writeError(w, http.StatusBadRequest, "user_id and a positive amount are required")
		return
	}
	if idemKey != "" {
		if tx, ok := s.store.idem[idemKey]; ok {
			writeJSON(w, http.StatusOK, tx)
			return
		}
	}

	bal := s.store.findOne("balances", map[string]string{"user_id": userID})
	if bal == nil {
		writeError(w, http.StatusNotFound, "balance not found")
		return
	}
	now := s.now()

	var tx row
	switch op {
	case "recharge":
		bal["available"] = asInt64(bal["available"]) + amount
		tx = s.appendTx(userID, "recharge", amount, args, now)

	case "withdraw":
		if asInt64(bal["available"]) < amount {
			writeError(w, http.StatusBadRequest, msgInsufficientFunds)
			return
		}
		bal["available"] = asInt64(bal["available"]) - amount
		tx = s.appendTx(userID, "withdraw", amount, args, now)

	case "transfer":
		peerID, _ := args["counterparty"].(string)
		peer := s.store.findOne("balances", map[string]string{"user_id": peerID})
		if peer == nil {
			writeError(w, http.StatusNotFound, "counterparty not found")
			return
		}
		if asInt64(bal["available"]) < amount {
			writeError(w, http.StatusBadRequest, msgInsufficientFunds)
			return
		}
		bal["available"] = asInt64(bal["available"]) - amount
		peer["available"] = asInt64(peer["available"]) + amount
		tx = s.appendTx(userID, "transfer_out", amount, args, now)
		s.appendTx(peerID, "transfer_in", amount, args, now)

	default:
		writeError(w, http.StatusBadRequest, "unsupported operation")
		return
	}

	bal["updated_at"] = now
	if idemKey != "" {
		s.store.idem[idemKey] = tx
	}
	_ = audit.LogEvent(audit.WithUserID(r.Context(), userID), "rpc.balance."+op, map[string]any{"amount": amount})
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) appendTx(userID, typ string, amount int64, args row, now time.Time) row {
	ref, _ := args["reference"].(string)
	tx := row{
		"id":         ids.NewAt(now),
		"user_id":    userID,
		"type":       typ,
		"currency":   "SAR",
		"amount":     amount,
		"reference":  ref,
		"status":     "completed",
		"created_at": now,
	}
	s.store.insert("transactions", tx)
	return tx
}

var investTerms = map[string]struct {
	rate float64
	term time.Duration
}{
	"weekly":  {rate: 2.5, term: 7 * 24 * time.Hour},
	"monthly": {rate: 12.0, term: 30 * 24 * time.Hour},
}

func (s *Server) rpcProcessInvestment(w http.ResponseWriter, r *http.Request, args row) {
	userID, _ := args["user_id"].(string)
	typ, _ := args["type"].(string)
	amount := asInt64(args["amount"])

	terms, ok := investTerms[typ]
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported investment type")
		return
	}
	if userID == "" || amount <= 0 {
		writeError(w, http.StatusBadRequest, "user_id and a positive amount are required")
		return
	}

	bal := s.store.findOne("balances", map[string]string{"user_id": userID})
	if bal == nil {
		writeError(w, http.StatusNotFound, "balance not found")
		return
	}
	if asInt64(bal["available"]) < amount {
		writeError(w, http.StatusBadRequest, msgInsufficientFunds)
		return
	}

	now := s.now()
	bal["available"] = asInt64(bal["available"]) - amount
	bal["updated_at"] = now

	inv := row{
		"id":          ids.NewAt(now),
		"user_id":     userID,
		"type":        typ,
		"currency":    "SAR",
		"amount":      amount,
		"profit_rate": terms.rate,
		"profit":      amount * int64(terms.rate*100) / 10_000,
		"status":      "active",
		"start_date":  now,
		"end_date":    now.Add(terms.term),
	}
	s.store.insert("investments", inv)
	_ = audit.LogEvent(audit.WithUserID(r.Context(), userID), "rpc.invest.open", map[string]any{
		"type":   typ,
		"amount": amount,
	})
	writeJSON(w, http.StatusOK, inv)
}

// settleInvestments completes matured positions, crediting principal plus
// profit back. Runs lazily on every investments read. Caller holds store.mu.
func (s *Server) settleInvestments() {
	now := s.now()
	for _, inv := range s.store.tables["investments"] {
		if inv["status"] != "active" {
			continue
		}
		end, ok := inv["end_date"].(time.Time)
		if !ok || end.After(now) {
			continue
		}
		inv["status"] = "completed"
		userID, _ := inv["user_id"].(string)
		payout := asInt64(inv["amount"]) + asInt64(inv["profit"])
		if bal := s.store.findOne("balances", map[string]string{"user_id": userID}); bal != nil {
			bal["available"] = asInt64(bal["available"]) + payout
			bal["updated_at"] = now
		}
		s.appendTx(userID, "profit", payout, row{}, now)
	}
}

// rpcSetupGoogleUser provisions banking rows for a first OAuth login, the
// work signup triggers do for email accounts.
func (s *Server) rpcSetupGoogleUser(w http.ResponseWriter, r *http.Request, args row) {
	userID, _ := args["user_id"].(string)
	u, ok := s.store.users[userID]
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if s.store.findOne("credentials", map[string]string{"user_id": userID}) == nil {
		s.store.provision(u, s.now())
		_ = audit.LogEvent(audit.WithUserID(r.Context(), userID), "rpc.oauth.provisioned", nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) rpcGenerateReferralCode(w http.ResponseWriter, args row) {
	userID, _ := args["user_id"].(string)
	profile := s.store.findOne("profiles", map[string]string{"user_id": userID})
	if profile == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	code, _ := profile["referral_code"].(string)
	if code == "" {
		code = referralCode(userID)
		profile["referral_code"] = code
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code})
}
