package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// SignUpParams carries registration input. Metadata is stored as arbitrary
// JSON user metadata on the identity.
type SignUpParams struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Metadata map[string]any `json:"data,omitempty"`
}

// OTPParams addresses a one-time code. Exactly one of Email or Phone is set.
type OTPParams struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Type  string `json:"type"` // sms | email | signup | recovery
}

// PasswordGrant signs in with email and password and returns the session.
func (c *Client) PasswordGrant(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SignUp registers a new identity. Depending on backend settings the session
// may come back without a confirmed email.
func (c *Client) SignUp(ctx context.Context, params SignUpParams) (*Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", params, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SignOut revokes the current session server-side.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, nil)
}

// CurrentUser returns the identity bound to the installed access token.
func (c *Client) CurrentUser(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// Recover sends a password-reset email.
func (c *Client) Recover(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/recover", map[string]string{"email": email}, nil)
}

// UpdatePassword sets a new password for the signed-in user (the
// confirmation half of the reset flow).
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodPut, "/auth/v1/user", map[string]string{"password": newPassword}, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// VerifyToken redeems an email-verification or recovery token.
func (c *Client) VerifyToken(ctx context.Context, token, typ string) (*Session, error) {
	body := map[string]string{"token": token, "type": typ}
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/verify", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ResendVerification re-sends the signup confirmation email.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	body := map[string]string{"email": email, "type": "signup"}
	return c.do(ctx, http.MethodPost, "/auth/v1/resend", body, nil)
}

// SendOTP asks the backend to deliver a one-time code.
func (c *Client) SendOTP(ctx context.Context, params OTPParams) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/otp", params, nil)
}

// VerifyOTP redeems a one-time code and returns a session on success.
func (c *Client) VerifyOTP(ctx context.Context, params OTPParams, code string) (*Session, error) {
	body := map[string]string{"type": params.Type, "token": code}
	if params.Email != "" {
		body["email"] = params.Email
	}
	if params.Phone != "" {
		body["phone"] = params.Phone
	}
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/verify", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// OTPStatus reports whether a code for the target is outstanding or redeemed.
func (c *Client) OTPStatus(ctx context.Context, target string) (*OTPStatus, error) {
	var st OTPStatus
	path := "/auth/v1/otp/status?target=" + url.QueryEscape(strings.TrimSpace(target))
	if err := c.do(ctx, http.MethodGet, path, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// AuthorizeURL builds the browser URL that starts an OAuth redirect flow.
func (c *Client) AuthorizeURL(provider, redirectTo string) string {
	q := url.Values{}
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/auth/v1/authorize?" + q.Encode()
}

// ExchangeCode swaps an OAuth callback code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	body := map[string]string{"auth_code": code}
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=authorization_code", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// RefreshSession swaps a refresh token for a fresh session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}
