package sandbox

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wafra.app/internal/obs"
)

var errDuplicate = errors.New("sandbox: user already registered")

// Config tunes the sandbox server.
type Config struct {
	AnonKey   string
	Secret    string
	AccessTTL time.Duration
	// RequireEmailConfirm gates password logins on a redeemed verification
	// token, like a hosted project with confirmations enabled.
	RequireEmailConfirm bool
	// Rate limit per client IP; zero values disable limiting.
	RateBurst     int
	RatePerSecond int
}

// Server serves the backend surface the client speaks.
type Server struct {
	mux   *http.ServeMux
	store *store

	anonKey        string
	secret         []byte
	accessTTL      time.Duration
	requireConfirm bool
	rateBurst      int
	ratePerSec     int

	now func() time.Time
}

// New constructs a sandbox server. AnonKey is required; every request must
// present it, like the hosted backend.
func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.AnonKey) == "" {
		return nil, errors.New("sandbox: anon key is required")
	}
	secret := cfg.Secret
	if secret == "" {
		secret = "wafra-sandbox-secret"
	}
	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	s := &Server{
		mux:            http.NewServeMux(),
		store:          newStore(),
		anonKey:        cfg.AnonKey,
		secret:         []byte(secret),
		accessTTL:      ttl,
		requireConfirm: cfg.RequireEmailConfirm,
		rateBurst:      cfg.RateBurst,
		ratePerSec:     cfg.RatePerSecond,
		now:            time.Now,
	}

	s.mux.HandleFunc("/auth/v1/token", s.handleToken)
	s.mux.HandleFunc("/auth/v1/signup", s.handleSignUp)
	s.mux.HandleFunc("/auth/v1/logout", s.handleLogout)
	s.mux.HandleFunc("/auth/v1/user", s.handleUser)
	s.mux.HandleFunc("/auth/v1/recover", s.handleRecover)
	s.mux.HandleFunc("/auth/v1/verify", s.handleVerify)
	s.mux.HandleFunc("/auth/v1/resend", s.handleResend)
	s.mux.HandleFunc("/auth/v1/otp", s.handleOTP)
	s.mux.HandleFunc("/auth/v1/otp/status", s.handleOTPStatus)
	s.mux.HandleFunc("/auth/v1/authorize", s.handleAuthorize)
	s.mux.HandleFunc("/rest/v1/rpc/", s.handleRPC)
	s.mux.HandleFunc("/rest/v1/", s.handleTable)

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", obs.Handler())

	return s, nil
}

// Handler returns the full middleware chain around the mux.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.requireAnonKey(h)
	if s.rateBurst > 0 && s.ratePerSec > 0 {
		h = rateLimit(h, s.rateBurst, s.ratePerSec)
	}
	h = securityHeaders(h)
	return obs.Instrument(h)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "wafra-sandbox",
	})
}

// requireAnonKey rejects requests missing the project key. Health and metrics
// stay open for probes.
func (s *Server) requireAnonKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/metrics", "/auth/v1/authorize":
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("apikey") != s.anonKey {
			writeError(w, http.StatusUnauthorized, "No API key found in request")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// rateLimit keeps a token bucket per client IP. The bucket map is shared
// between request goroutines and the pruning goroutine, so every access holds
// the mutex.
func rateLimit(next http.Handler, burst, perSecond int) http.Handler {
	type bucket struct {
		lim *rate.Limiter
		ts  time.Time
	}
	var (
		mu      sync.Mutex
		buckets = make(map[string]*bucket)
		ttl     = 5 * time.Minute
	)
	ticker := time.NewTicker(time.Minute)
	go func() {
		for range ticker.C {
			now := time.Now()
			mu.Lock()
			for k, b := range buckets {
				if now.Sub(b.ts) > ttl {
					delete(buckets, k)
				}
			}
			mu.Unlock()
		}
	}()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		mu.Lock()
		b, ok := buckets[ip]
		if !ok {
			b = &bucket{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
			buckets[ip] = b
		}
		b.ts = time.Now()
		mu.Unlock()
		if !b.lim.Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"message": msg,
		"status":  code,
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// bearerUser resolves the Authorization header to a user id.
func (s *Server) bearerUser(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	id, err := s.parseToken(strings.TrimPrefix(h, "Bearer "))
	if err != nil {
		return "", false
	}
	return id, true
}
