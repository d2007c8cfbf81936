package sandbox

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"wafra.app/internal/api"
	"wafra.app/internal/audit"
	"wafra.app/internal/obs"
)

const (
	msgBadCredentials = "Invalid login credentials"
	msgUnconfirmed    = "Email not confirmed"
	msgDuplicate      = "User already registered"
	msgWeakPassword   = "Password should be at least 6 characters"
	msgBadToken       = "Token has expired or is invalid"
)

type credentialsRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
	AuthCode     string `json:"auth_code"`
}

// sessionFor mints a token pair for the user. Caller holds store.mu.
func (s *Server) sessionFor(u *user) (*api.Session, error) {
	access, err := s.mintToken(u.ID, u.Email, s.now())
	if err != nil {
		return nil, err
	}
	refresh := uuid.NewString()
	s.store.refresh[refresh] = u.ID
	return &api.Session{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL / time.Second),
		RefreshToken: refresh,
		User:         u.Identity,
	}, nil
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	switch r.URL.Query().Get("grant_type") {
	case "password":
		u, ok := s.store.userByEmail(req.Email)
		if !ok || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)) != nil {
			writeError(w, http.StatusBadRequest, msgBadCredentials)
			return
		}
		if s.requireConfirm && u.EmailConfirmedAt == nil {
			writeError(w, http.StatusBadRequest, msgUnconfirmed)
			return
		}
		s.issueSession(w, r, u, "auth.login")

	case "refresh_token":
		id, ok := s.store.refresh[req.RefreshToken]
		if !ok {
			writeError(w, http.StatusBadRequest, msgBadToken)
			return
		}
		delete(s.store.refresh, req.RefreshToken)
		s.issueSession(w, r, s.store.users[id], "auth.refresh")

	case "authorization_code":
		v, ok := s.store.codes.Get("authcode:" + req.AuthCode)
		if !ok {
			writeError(w, http.StatusBadRequest, msgBadToken)
			return
		}
		s.store.codes.Delete("authcode:" + req.AuthCode)
		s.issueSession(w, r, s.store.users[v.(string)], "auth.oauth")

	default:
		writeError(w, http.StatusBadRequest, "unsupported grant type")
	}
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, u *user, event string) {
	if u == nil {
		writeError(w, http.StatusBadRequest, msgBadCredentials)
		return
	}
	now := s.now()
	u.LastSignInAt = &now
	sess, err := s.sessionFor(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	_ = audit.LogEvent(audit.WithUserID(r.Context(), u.ID), event, nil)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req api.SignUpParams
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusUnprocessableEntity, msgWeakPassword)
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	now := s.now()
	u, err := s.store.createUser(req.Email, req.Password, "email", req.Metadata, now)
	if err == errDuplicate {
		writeError(w, http.StatusUnprocessableEntity, msgDuplicate)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.store.provision(u, now)

	if s.requireConfirm {
		token := uuid.NewString()
		s.store.codes.Set("verify:"+token, u.ID, cache.DefaultExpiration)
		obs.Info("verification token issued", map[string]any{"email": u.Email, "token": token})
	} else {
		u.EmailConfirmedAt = &now
	}

	_ = audit.LogEvent(audit.WithUserID(r.Context(), u.ID), "auth.signup", map[string]any{"email": u.Email})
	s.issueSession(w, r, u, "auth.signup.session")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	id, ok := s.bearerUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	s.store.mu.Lock()
	for token, owner := range s.store.refresh {
		if owner == id {
			delete(s.store.refresh, token)
		}
	}
	s.store.mu.Unlock()

	_ = audit.LogEvent(audit.WithUserID(r.Context(), id), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bearerUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	u, ok := s.store.users[id]
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, u.Identity)

	case http.MethodPut:
		var req struct {
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Password != "" {
			if len(req.Password) < 6 {
				writeError(w, http.StatusUnprocessableEntity, msgWeakPassword)
				return
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			u.passwordHash = hash
			_ = audit.LogEvent(audit.WithUserID(r.Context(), id), "auth.password.updated", nil)
		}
		writeJSON(w, http.StatusOK, u.Identity)

	default:
		methodNotAllowed(w, "GET, PUT")
	}
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.store.mu.Lock()
	u, ok := s.store.userByEmail(req.Email)
	if ok {
		token := uuid.NewString()
		s.store.codes.Set("recover:"+token, u.ID, cache.DefaultExpiration)
		obs.Info("recovery token issued", map[string]any{"email": u.Email, "token": token})
	}
	s.store.mu.Unlock()

	// Do not disclose whether the address exists.
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		Token string `json:"token"`
		Type  string `json:"type"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	// One-time code against an email or phone target.
	if target := firstNonEmpty(req.Email, req.Phone); target != "" && (req.Type == "sms" || req.Type == "email") {
		v, ok := s.store.codes.Get("otp:" + target)
		if !ok || v.(string) != req.Token {
			writeError(w, http.StatusBadRequest, msgBadToken)
			return
		}
		s.store.codes.Delete("otp:" + target)
		s.store.codes.Set("otpdone:"+target, true, cache.DefaultExpiration)
		u, ok := s.store.userByEmail(target)
		if !ok {
			u = s.store.userByPhone(target)
		}
		if u == nil {
			writeError(w, http.StatusBadRequest, msgBadToken)
			return
		}
		s.issueSession(w, r, u, "auth.otp.verified")
		return
	}

	// Signup or recovery token.
	for _, prefix := range []string{"verify:", "recover:"} {
		if v, ok := s.store.codes.Get(prefix + req.Token); ok {
			s.store.codes.Delete(prefix + req.Token)
			u := s.store.users[v.(string)]
			if prefix == "verify:" && u != nil && u.EmailConfirmedAt == nil {
				now := s.now()
				u.EmailConfirmedAt = &now
			}
			s.issueSession(w, r, u, "auth.verified")
			return
		}
	}
	writeError(w, http.StatusBadRequest, msgBadToken)
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		Email string `json:"email"`
		Type  string `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.store.mu.Lock()
	if u, ok := s.store.userByEmail(req.Email); ok && u.EmailConfirmedAt == nil {
		token := uuid.NewString()
		s.store.codes.Set("verify:"+token, u.ID, cache.DefaultExpiration)
		obs.Info("verification token issued", map[string]any{"email": u.Email, "token": token})
	}
	s.store.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req api.OTPParams
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target := firstNonEmpty(req.Email, req.Phone)
	if target == "" {
		writeError(w, http.StatusBadRequest, "email or phone is required")
		return
	}

	code := otpCode()
	s.store.mu.Lock()
	s.store.codes.Set("otp:"+target, code, cache.DefaultExpiration)
	s.store.codes.Delete("otpdone:" + target)
	s.store.mu.Unlock()

	// Codes are "delivered" through the server log.
	obs.Info("otp issued", map[string]any{"target": target, "code": code})
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleOTPStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("target"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	st := api.OTPStatus{Target: target}
	if _, ok := s.store.codes.Get("otpdone:" + target); ok {
		st.Sent = true
		st.Verified = true
	} else if _, exp, ok := s.store.codes.GetWithExpiration("otp:" + target); ok {
		st.Sent = true
		if !exp.IsZero() {
			st.ExpiresAt = &exp
		}
	}
	writeJSON(w, http.StatusOK, st)
}

// handleAuthorize fakes the provider redirect dance: it signs a demo account
// in for the requested provider and bounces straight back with an auth code.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	redirectTo := r.URL.Query().Get("redirect_to")
	if provider == "" || redirectTo == "" {
		writeError(w, http.StatusBadRequest, "provider and redirect_to are required")
		return
	}

	s.store.mu.Lock()
	email := provider + ".user@wafra.test"
	u, ok := s.store.userByEmail(email)
	if !ok {
		var err error
		u, err = s.store.createUser(email, uuid.NewString(), provider, map[string]any{}, s.now())
		if err != nil {
			s.store.mu.Unlock()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		now := s.now()
		u.EmailConfirmedAt = &now
		// No provisioning here: first-login setup runs through the
		// setup_google_user procedure, as in production.
	}
	code := uuid.NewString()
	s.store.codes.Set("authcode:"+code, u.ID, cache.DefaultExpiration)
	s.store.mu.Unlock()

	sep := "?"
	if strings.Contains(redirectTo, "?") {
		sep = "&"
	}
	http.Redirect(w, r, redirectTo+sep+"code="+url.QueryEscape(code), http.StatusFound)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func otpCode() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	n := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return fmt.Sprintf("%06d", n%1_000_000)
}
