package api

import (
	"strings"
	"time"
)

// Identity is the base record the identity provider returns for a signed-in
// user. Auxiliary banking data (credentials, profile, balance) lives in
// separate tables and is fetched independently.
type Identity struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// Provider returns the identity provider name ("email", "google", ...).
func (id Identity) Provider() string {
	if id.AppMetadata == nil {
		return "email"
	}
	if p, ok := id.AppMetadata["provider"].(string); ok && strings.TrimSpace(p) != "" {
		return p
	}
	return "email"
}

// FreshOAuthUser reports whether this identity was created by an OAuth
// provider within the last minute, i.e. server-side provisioning triggers may
// still be running.
func (id Identity) FreshOAuthUser(now time.Time) bool {
	if id.Provider() == "email" {
		return false
	}
	return now.Sub(id.CreatedAt) < time.Minute
}

// Session is the token bundle issued on successful authentication.
type Session struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	RefreshToken string   `json:"refresh_token"`
	User         Identity `json:"user"`
}

// Credentials is the per-user banking credentials row.
type Credentials struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	AccountNumber string    `json:"account_number"`
	IBAN          string    `json:"iban,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Profile is the per-user display profile row.
type Profile struct {
	UserID       string    `json:"user_id"`
	FullName     string    `json:"full_name"`
	Phone        string    `json:"phone,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	KYCStatus    string    `json:"kyc_status"`
	ReferralCode string    `json:"referral_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Balance is the per-user balance row. Amounts are minor units; no floats.
type Balance struct {
	UserID    string    `json:"user_id"`
	Currency  string    `json:"currency"`
	Available int64     `json:"available"`
	Pending   int64     `json:"pending"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction mirrors a row of the transactions table.
type Transaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"` // transfer_in | transfer_out | recharge | withdraw | profit
	Currency  string    `json:"currency"`
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Investment mirrors a row of the investments table. Accrual and completion
// are computed server-side; the client only reflects this state.
type Investment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Type       string    `json:"type"` // weekly | monthly
	Currency   string    `json:"currency"`
	Amount     int64     `json:"amount"`
	ProfitRate float64   `json:"profit_rate"`
	Profit     int64     `json:"profit"`
	Status     string    `json:"status"` // active | completed
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

// SavingsGoal mirrors a row of the savings_goals table.
type SavingsGoal struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	Target    int64     `json:"target"`
	Saved     int64     `json:"saved"`
	CreatedAt time.Time `json:"created_at"`
}

// Referral mirrors a row of the referrals table.
type Referral struct {
	ID           string    `json:"id"`
	ReferrerID   string    `json:"referrer_id"`
	ReferredID   string    `json:"referred_id"`
	Reward       int64     `json:"reward"`
	RewardStatus string    `json:"reward_status"` // pending | paid
	CreatedAt    time.Time `json:"created_at"`
}

// OTPStatus reports the state of an outstanding one-time code.
type OTPStatus struct {
	Target    string     `json:"target"`
	Sent      bool       `json:"sent"`
	Verified  bool       `json:"verified"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
