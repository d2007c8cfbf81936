// Package sandbox is an in-process stand-in for the hosted backend. It
// serves the same /auth/v1 and /rest/v1 surface the client speaks, backed by
// in-memory state, so flows can run end to end without a remote project.
package sandbox

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"wafra.app/internal/api"
	"wafra.app/internal/ids"
)

// user is an identity record plus its password hash.
type user struct {
	api.Identity
	passwordHash []byte
}

// row is one generic table row.
type row map[string]any

// store holds all sandbox state with in-process concurrency safety.
type store struct {
	mu sync.Mutex

	users   map[string]*user  // id -> user
	byEmail map[string]string // lower(email) -> id

	refresh map[string]string // refresh token -> user id
	tables  map[string][]row
	idem    map[string]row // idempotency key -> stored transaction

	// short-lived codes: OTP, email verification, OAuth auth codes
	codes *cache.Cache

	acctSeq int
}

func newStore() *store {
	return &store{
		users:   make(map[string]*user),
		byEmail: make(map[string]string),
		refresh: make(map[string]string),
		tables:  make(map[string][]row),
		idem:    make(map[string]row),
		codes:   cache.New(5*time.Minute, 10*time.Minute),
	}
}

func (s *store) userByEmail(email string) (*user, bool) {
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, false
	}
	u, ok := s.users[id]
	return u, ok
}

func (s *store) userByPhone(phone string) *user {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	for _, u := range s.users {
		if u.Phone == phone {
			return u
		}
	}
	return nil
}

// createUser registers an identity. Caller holds s.mu.
func (s *store) createUser(email, password, provider string, meta map[string]any, now time.Time) (*user, error) {
	if _, exists := s.userByEmail(email); exists {
		return nil, errDuplicate
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &user{
		Identity: api.Identity{
			ID:           ids.New(),
			Email:        strings.ToLower(strings.TrimSpace(email)),
			CreatedAt:    now,
			AppMetadata:  map[string]any{"provider": provider},
			UserMetadata: meta,
		},
		passwordHash: hash,
	}
	if phone, ok := meta["phone"].(string); ok {
		u.Phone = phone
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

// provision creates the banking rows a fresh identity needs, mirroring the
// backend's signup triggers.
func (s *store) provision(u *user, now time.Time) {
	s.acctSeq++
	acct := fmt.Sprintf("9100%08d", s.acctSeq)

	username, _ := u.UserMetadata["username"].(string)
	if username == "" {
		username = strings.SplitN(u.Email, "@", 2)[0]
	}
	fullName, _ := u.UserMetadata["full_name"].(string)

	s.insert("credentials", row{
		"user_id":        u.ID,
		"username":       strings.ToLower(username),
		"account_number": acct,
		"iban":           "SA03" + acct + "0000000000",
		"created_at":     now,
	})
	s.insert("profiles", row{
		"user_id":       u.ID,
		"full_name":     fullName,
		"phone":         u.Phone,
		"kyc_status":    "pending",
		"referral_code": referralCode(u.ID),
		"created_at":    now,
	})
	s.insert("balances", row{
		"user_id":    u.ID,
		"currency":   "SAR",
		"available":  int64(0),
		"pending":    int64(0),
		"updated_at": now,
	})

	if code, ok := u.UserMetadata["referral_code"].(string); ok && code != "" {
		if ref := s.findOne("profiles", map[string]string{"referral_code": code}); ref != nil {
			s.insert("referrals", row{
				"id":            ids.New(),
				"referrer_id":   ref["user_id"],
				"referred_id":   u.ID,
				"reward":        int64(2_500),
				"reward_status": "pending",
				"created_at":    now,
			})
		}
	}
}

func (s *store) insert(table string, r row) {
	s.tables[table] = append(s.tables[table], r)
}

func matches(r row, filters map[string]string) bool {
	for col, want := range filters {
		if fmt.Sprint(r[col]) != want {
			return false
		}
	}
	return true
}

// findAll returns copies of matching rows. Caller holds s.mu.
func (s *store) findAll(table string, filters map[string]string) []row {
	var out []row
	for _, r := range s.tables[table] {
		if matches(r, filters) {
			cp := make(row, len(r))
			for k, v := range r {
				cp[k] = v
			}
			out = append(out, cp)
		}
	}
	return out
}

// findOne returns the first matching row, live, for mutation. Caller holds s.mu.
func (s *store) findOne(table string, filters map[string]string) row {
	for _, r := range s.tables[table] {
		if matches(r, filters) {
			return r
		}
	}
	return nil
}

func referralCode(userID string) string {
	code := strings.ToUpper(userID)
	if len(code) > 8 {
		code = code[len(code)-8:]
	}
	return "WF" + code
}
