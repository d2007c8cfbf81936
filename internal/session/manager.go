// Package session owns the authentication lifecycle: one writer mediates
// every identity operation against the remote backend and publishes snapshots
// to any number of readers. Remote failures are normalized at the API
// boundary and surface here only as localized prose.
package session

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"wafra.app/internal/api"
	"wafra.app/internal/audit"
	"wafra.app/internal/config"
	"wafra.app/internal/locale"
	"wafra.app/internal/obs"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLen = 6

// TokenStore persists the refresh/access token pair between runs.
type TokenStore interface {
	SaveTokens(access, refresh string) error
	LoadTokens() (access, refresh string, err error)
	ClearTokens() error
}

// Manager is the single owner of session state. All mutation goes through its
// operations; readers observe via Snapshot and Subscribe.
type Manager struct {
	api    *api.Client
	tokens TokenStore

	timeouts   config.Timeouts
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	otpLimiter *rate.Limiter

	hub   *hub
	group singleflight.Group

	// epoch stamps each operation so a stale completion can never overwrite
	// newer state.
	mu    sync.Mutex
	snap  Snapshot
	epoch uint64
}

// Option configures the Manager.
type Option func(*Manager) error

// WithTimeouts overrides the per-operation deadlines.
func WithTimeouts(t config.Timeouts) Option {
	return func(m *Manager) error {
		m.timeouts = t
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) error {
		if fn != nil {
			m.now = fn
		}
		return nil
	}
}

// WithTokenStore enables token persistence across runs.
func WithTokenStore(store TokenStore) Option {
	return func(m *Manager) error {
		m.tokens = store
		return nil
	}
}

// WithOTPLimit overrides the client-side throttle on OTP sends.
func WithOTPLimit(limit rate.Limit, burst int) Option {
	return func(m *Manager) error {
		m.otpLimiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// NewManager constructs the session manager. The initial state is Restoring;
// call Restore once at startup to settle it.
func NewManager(client *api.Client, opts ...Option) (*Manager, error) {
	m := &Manager{
		api:        client,
		timeouts:   defaultTimeouts(),
		now:        time.Now,
		sleep:      sleepCtx,
		otpLimiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
		hub:        newHub(),
		snap:       Snapshot{State: StateRestoring, Loading: true},
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func defaultTimeouts() config.Timeouts {
	return config.Timeouts{
		Restore:        8 * time.Second,
		Login:          15 * time.Second,
		OAuth:          30 * time.Second,
		Register:       30 * time.Second,
		Logout:         10 * time.Second,
		Verify:         15 * time.Second,
		Resend:         10 * time.Second,
		OTP:            15 * time.Second,
		ProvisionDelay: 3 * time.Second,
		RegisterDelay:  2 * time.Second,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Snapshot returns a copy of the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Subscribe delivers every state change until ctx ends.
func (m *Manager) Subscribe(ctx context.Context) <-chan Snapshot {
	return m.hub.subscribe(ctx)
}

// --- state transitions ------------------------------------------------------

// begin stamps a new operation epoch and marks the session busy.
func (m *Manager) begin(state State) uint64 {
	m.mu.Lock()
	m.epoch++
	e := m.epoch
	m.snap.State = state
	m.snap.Loading = true
	m.snap.Err = ""
	snap := m.snap
	m.mu.Unlock()
	m.hub.publish(snap)
	return e
}

// beginAux marks the session busy without changing the lifecycle state.
func (m *Manager) beginAux() uint64 {
	m.mu.Lock()
	m.epoch++
	e := m.epoch
	m.snap.Loading = true
	m.snap.Err = ""
	snap := m.snap
	m.mu.Unlock()
	m.hub.publish(snap)
	return e
}

// commit applies fn only when the epoch is still current, discarding late
// results from abandoned operations.
func (m *Manager) commit(e uint64, fn func(*Snapshot)) bool {
	m.mu.Lock()
	if e != m.epoch {
		m.mu.Unlock()
		return false
	}
	fn(&m.snap)
	snap := m.snap
	m.mu.Unlock()
	m.hub.publish(snap)
	return true
}

func (m *Manager) commitUser(e uint64, user *ExtendedUser) {
	m.commit(e, func(s *Snapshot) {
		s.State = StateAuthenticated
		s.Loading = false
		s.User = user
		s.Err = ""
	})
}

func (m *Manager) commitSignedOut(e uint64) {
	m.commit(e, func(s *Snapshot) {
		s.State = StateUnauthenticated
		s.Loading = false
		s.User = nil
		s.Err = ""
	})
}

func (m *Manager) commitErr(e uint64, opErr *OpError) {
	m.commit(e, func(s *Snapshot) {
		s.Loading = false
		s.Err = opErr.Message
		if s.User == nil {
			s.State = StateUnauthenticated
		} else {
			s.State = StateAuthenticated
		}
	})
}

func (m *Manager) commitIdle(e uint64) {
	m.commit(e, func(s *Snapshot) {
		s.Loading = false
		s.Err = ""
	})
}

// failOp converts a boundary error into the localized operation error,
// records metrics, and settles the snapshot.
func (m *Manager) failOp(e uint64, op string, started time.Time, err error) *OpError {
	kind := api.KindOf(err)
	opErr := &OpError{Kind: kind, Message: locale.ForError(err)}
	result := "error"
	switch kind {
	case api.KindTimeout:
		result = "timeout"
	case api.KindCanceled:
		result = "canceled"
	}
	obs.ObserveOp(op, result, time.Since(started))
	obs.Warn("session operation failed", map[string]any{
		"op":   op,
		"kind": string(kind),
		"err":  err.Error(),
	})
	m.commitErr(e, opErr)
	return opErr
}

// validationErr surfaces a pre-network validation failure. No epoch is
// involved: nothing was in flight.
func (m *Manager) validationErr(op, msg string) *OpError {
	obs.ObserveOp(op, "validation", 0)
	m.mu.Lock()
	m.snap.Err = msg
	snap := m.snap
	m.mu.Unlock()
	m.hub.publish(snap)
	return &OpError{Kind: api.KindValidation, Message: msg}
}

// --- validation helpers -----------------------------------------------------

func validEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// usernameFromEmail derives a handle from the email local part, keeping only
// [a-z0-9_].
func usernameFromEmail(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}
	local = strings.ToLower(local)
	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

// --- operations -------------------------------------------------------------

// Login authenticates with email and password. Invalid input short-circuits
// before any network call.
func (m *Manager) Login(ctx context.Context, email, password string) (*ExtendedUser, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !validEmail(email) {
		return nil, m.validationErr("login", locale.MsgInvalidEmailFormat)
	}
	if len(password) < minPasswordLen {
		return nil, m.validationErr("login", locale.MsgPasswordTooShort)
	}

	v, err, _ := m.group.Do("login:"+email, func() (any, error) {
		return m.doLogin(ctx, email, password)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ExtendedUser), nil
}

func (m *Manager) doLogin(ctx context.Context, email, password string) (*ExtendedUser, error) {
	started := m.now()
	e := m.begin(StateAuthenticating)

	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.Login)
	defer cancel()

	sess, err := m.api.PasswordGrant(opCtx, email, password)
	if err != nil {
		return nil, m.failOp(e, "login", started, err)
	}

	user := m.installSession(opCtx, sess)
	m.commitUser(e, user)
	obs.ObserveOp("login", "ok", time.Since(started))
	_ = audit.LogEvent(audit.WithUserID(ctx, sess.User.ID), "session.login", map[string]any{
		"provider": sess.User.Provider(),
	})
	return user, nil
}

// RegisterDetails carries optional registration metadata.
type RegisterDetails struct {
	FullName     string
	Phone        string
	ReferralCode string
}

// Register creates a new identity, waits for server-side provisioning, then
// enriches and exposes the user.
func (m *Manager) Register(ctx context.Context, email, password string, details RegisterDetails) (*ExtendedUser, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !validEmail(email) {
		return nil, m.validationErr("register", locale.MsgInvalidEmailFormat)
	}
	if len(password) < minPasswordLen {
		return nil, m.validationErr("register", locale.MsgPasswordTooShort)
	}

	v, err, _ := m.group.Do("register:"+email, func() (any, error) {
		return m.doRegister(ctx, email, password, details)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ExtendedUser), nil
}

func (m *Manager) doRegister(ctx context.Context, email, password string, details RegisterDetails) (*ExtendedUser, error) {
	started := m.now()
	e := m.begin(StateAuthenticating)

	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.Register)
	defer cancel()

	metadata := map[string]any{"username": usernameFromEmail(email)}
	if details.FullName != "" {
		metadata["full_name"] = details.FullName
	}
	if details.Phone != "" {
		metadata["phone"] = details.Phone
	}
	if details.ReferralCode != "" {
		metadata["referral_code"] = details.ReferralCode
	}

	sess, err := m.api.SignUp(opCtx, api.SignUpParams{Email: email, Password: password, Metadata: metadata})
	if err != nil {
		return nil, m.failOp(e, "register", started, err)
	}

	// Provisioning triggers (credentials/balance rows) run server-side right
	// after signup; give them a moment before the first enrichment read.
	if err := m.sleep(opCtx, m.timeouts.RegisterDelay); err != nil {
		return nil, m.failOp(e, "register", started, err)
	}

	user := m.installSession(opCtx, sess)
	m.commitUser(e, user)
	obs.ObserveOp("register", "ok", time.Since(started))
	_ = audit.LogEvent(audit.WithUserID(ctx, sess.User.ID), "session.register", map[string]any{
		"referral": details.ReferralCode != "",
	})
	return user, nil
}

// Restore recovers a persisted session at startup. Failure is not an error
// condition: a missing or expired session settles to Unauthenticated with no
// user-facing message.
func (m *Manager) Restore(ctx context.Context) (*ExtendedUser, error) {
	started := m.now()
	e := m.begin(StateRestoring)

	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.Restore)
	defer cancel()

	access, refresh := m.loadPersistedTokens()
	if access == "" && refresh == "" {
		m.commitSignedOut(e)
		obs.ObserveOp("restore", "ok", time.Since(started))
		return nil, nil
	}

	var lastErr error
	if access != "" && !tokenExpired(access, m.now()) {
		m.api.SetSession(access, refresh)
		id, err := m.api.CurrentUser(opCtx)
		if err == nil {
			user := m.enrich(opCtx, *id)
			m.commitUser(e, user)
			obs.ObserveOp("restore", "ok", time.Since(started))
			return user, nil
		}
		lastErr = err
	}

	if refresh != "" {
		sess, err := m.api.RefreshSession(opCtx, refresh)
		if err == nil {
			user := m.installSession(opCtx, sess)
			m.commitUser(e, user)
			obs.ObserveOp("restore", "ok", time.Since(started))
			return user, nil
		}
		lastErr = err
	}

	// No recoverable session: swallow, do not surface. Tokens are cleared only
	// when the backend actually rejected them; a flaky network at startup must
	// not sign the user out for good.
	m.api.ClearSession()
	result := "expired"
	if retryableRestore(lastErr) {
		result = "unavailable"
	} else {
		m.clearPersistedTokens()
	}
	m.commitSignedOut(e)
	obs.ObserveOp("restore", result, time.Since(started))
	return nil, nil
}

// retryableRestore reports whether a failed session recovery may still
// succeed on a later launch with the same tokens.
func retryableRestore(err error) bool {
	if err == nil {
		return false
	}
	switch api.KindOf(err) {
	case api.KindNetwork, api.KindTimeout, api.KindCanceled, api.KindServer:
		return true
	}
	return false
}

// Logout signs out. Local state is cleared no matter what the remote call
// does; calling while already signed out is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	alreadyOut := m.snap.State == StateUnauthenticated && m.snap.User == nil
	m.mu.Unlock()
	if alreadyOut {
		return nil
	}

	started := m.now()
	e := m.beginAux()

	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.Logout)
	defer cancel()

	if err := m.api.SignOut(opCtx); err != nil {
		obs.Warn("remote signout failed, clearing local state anyway", map[string]any{
			"kind": string(api.KindOf(err)),
		})
	}

	m.api.ClearSession()
	m.clearPersistedTokens()
	m.commitSignedOut(e)
	obs.ObserveOp("logout", "ok", time.Since(started))
	_ = audit.LogEvent(ctx, "session.logout", nil)
	return nil
}

// RequestPasswordReset asks the backend to email a reset link.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if !validEmail(email) {
		return m.validationErr("password_reset_request", locale.MsgInvalidEmailFormat)
	}

	started := m.now()
	e := m.beginAux()
	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.Resend)
	defer cancel()

	if err := m.api.Recover(opCtx, email); err != nil {
		return m.failOp(e, "password_reset_request", started, err)
	}
	m.commitIdle(e)
	obs.ObserveOp("password_reset_request", "ok", time.Since(started))
	return nil
}

// ConfirmPasswordReset sets the new password for the recovery session.
func (m *Manager) ConfirmPasswordReset(ctx context.Context, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return m.validationErr("password_reset_confirm", locale.MsgPasswordTooShort)
	}

	started := m.now()
	e := m.beginAux()
	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.Verify)
	defer cancel()

	if _, err := m.api.UpdatePassword(opCtx, newPassword); err != nil {
		return m.failOp(e, "password_reset_confirm", started, err)
	}
	m.commitIdle(e)
	obs.ObserveOp("password_reset_confirm", "ok", time.Since(started))
	return nil
}

// VerifyEmail redeems a verification token and signs the user in.
func (m *Manager) VerifyEmail(ctx context.Context, token, typ string) (*ExtendedUser, error) {
	if strings.TrimSpace(token) == "" {
		return nil, m.validationErr("verify_email", locale.MsgTokenRequired)
	}
	if typ == "" {
		typ = "signup"
	}

	started := m.now()
	e := m.begin(StateAuthenticating)
	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.Verify)
	defer cancel()

	sess, err := m.api.VerifyToken(opCtx, token, typ)
	if err != nil {
		return nil, m.failOp(e, "verify_email", started, err)
	}
	user := m.installSession(opCtx, sess)
	m.commitUser(e, user)
	obs.ObserveOp("verify_email", "ok", time.Since(started))
	return user, nil
}

// ResendVerification re-sends the signup confirmation email. With an empty
// address the signed-in user's email is used.
func (m *Manager) ResendVerification(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		m.mu.Lock()
		if m.snap.User != nil {
			email = m.snap.User.Identity.Email
		}
		m.mu.Unlock()
	}
	if !validEmail(email) {
		return m.validationErr("resend_verification", locale.MsgInvalidEmailFormat)
	}

	started := m.now()
	e := m.beginAux()
	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.Resend)
	defer cancel()

	if err := m.api.ResendVerification(opCtx, email); err != nil {
		return m.failOp(e, "resend_verification", started, err)
	}
	m.commitIdle(e)
	obs.ObserveOp("resend_verification", "ok", time.Since(started))
	return nil
}

// SendOTP delivers a one-time code, throttled client-side.
func (m *Manager) SendOTP(ctx context.Context, params api.OTPParams) error {
	if strings.TrimSpace(params.Email) == "" && strings.TrimSpace(params.Phone) == "" {
		return m.validationErr("send_otp", locale.MsgTargetRequired)
	}
	if !m.otpLimiter.Allow() {
		return m.validationErrKind("send_otp", api.KindRateLimited, locale.MsgTooManyAttempts)
	}

	started := m.now()
	e := m.beginAux()
	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.OTP)
	defer cancel()

	if err := m.api.SendOTP(opCtx, params); err != nil {
		return m.failOp(e, "send_otp", started, err)
	}
	m.commitIdle(e)
	obs.ObserveOp("send_otp", "ok", time.Since(started))
	return nil
}

// VerifyOTP redeems a one-time code and signs the user in on success.
func (m *Manager) VerifyOTP(ctx context.Context, params api.OTPParams, code string) (*ExtendedUser, error) {
	if strings.TrimSpace(params.Email) == "" && strings.TrimSpace(params.Phone) == "" {
		return nil, m.validationErr("verify_otp", locale.MsgTargetRequired)
	}
	if strings.TrimSpace(code) == "" {
		return nil, m.validationErr("verify_otp", locale.MsgCodeRequired)
	}

	started := m.now()
	e := m.begin(StateAuthenticating)
	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.OTP)
	defer cancel()

	sess, err := m.api.VerifyOTP(opCtx, params, code)
	if err != nil {
		return nil, m.failOp(e, "verify_otp", started, err)
	}
	user := m.installSession(opCtx, sess)
	m.commitUser(e, user)
	obs.ObserveOp("verify_otp", "ok", time.Since(started))
	return user, nil
}

// CheckOTPStatus reports the state of an outstanding code.
func (m *Manager) CheckOTPStatus(ctx context.Context, target string) (*api.OTPStatus, error) {
	if strings.TrimSpace(target) == "" {
		return nil, m.validationErr("otp_status", locale.MsgTargetRequired)
	}

	started := m.now()
	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.OTP)
	defer cancel()

	st, err := m.api.OTPStatus(opCtx, target)
	if err != nil {
		obs.ObserveOp("otp_status", "error", time.Since(started))
		return nil, &OpError{Kind: api.KindOf(err), Message: locale.ForError(err)}
	}
	obs.ObserveOp("otp_status", "ok", time.Since(started))
	return st, nil
}

func (m *Manager) validationErrKind(op string, kind api.Kind, msg string) *OpError {
	obs.ObserveOp(op, "validation", 0)
	m.mu.Lock()
	m.snap.Err = msg
	snap := m.snap
	m.mu.Unlock()
	m.hub.publish(snap)
	return &OpError{Kind: kind, Message: msg}
}

// --- session install --------------------------------------------------------

// installSession stores tokens and runs enrichment for the session's user.
func (m *Manager) installSession(ctx context.Context, sess *api.Session) *ExtendedUser {
	m.api.SetSession(sess.AccessToken, sess.RefreshToken)
	m.persistTokens(sess.AccessToken, sess.RefreshToken)
	return m.enrich(ctx, sess.User)
}

func (m *Manager) persistTokens(access, refresh string) {
	if m.tokens == nil {
		return
	}
	if err := m.tokens.SaveTokens(access, refresh); err != nil {
		obs.Warn("token persistence failed", map[string]any{"err": err.Error()})
	}
}

func (m *Manager) loadPersistedTokens() (string, string) {
	if m.tokens == nil {
		return "", ""
	}
	access, refresh, err := m.tokens.LoadTokens()
	if err != nil {
		return "", ""
	}
	return access, refresh
}

func (m *Manager) clearPersistedTokens() {
	if m.tokens == nil {
		return
	}
	_ = m.tokens.ClearTokens()
}
