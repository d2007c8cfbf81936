package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Kind is the stable classification of a remote failure. The free-text
// provider message is matched exactly once, here; callers branch on Kind and
// never on message substrings.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindAuthInvalid      Kind = "auth_invalid"
	KindEmailUnconfirmed Kind = "email_unconfirmed"
	KindRateLimited      Kind = "rate_limited"
	KindDisabled         Kind = "disabled"
	KindConflict         Kind = "conflict"
	KindWeakPassword     Kind = "weak_password"
	KindNotFound         Kind = "not_found"
	KindNetwork          Kind = "network"
	KindTimeout          Kind = "timeout"
	KindCanceled         Kind = "canceled"
	KindServer           Kind = "server"
	KindUnknown          Kind = "unknown"
)

// Error is the normalized remote failure returned by every client method.
type Error struct {
	Kind    Kind
	Message string // raw provider text, for logs only
	Status  int    // HTTP status when applicable, 0 otherwise
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// KindOf extracts the classification from any error returned by this package.
// Deadline expiry maps to KindTimeout; a caller-initiated cancellation keeps
// its own kind so it is never reported as the backend being slow.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindUnknown
}

// substringRule maps a provider message fragment to a Kind. Order matters:
// the first match wins.
type substringRule struct {
	fragment string
	kind     Kind
}

var messageRules = []substringRule{
	{"invalid login credentials", KindAuthInvalid},
	{"invalid grant", KindAuthInvalid},
	{"email not confirmed", KindEmailUnconfirmed},
	{"user already registered", KindConflict},
	{"already exists", KindConflict},
	{"already registered", KindConflict},
	{"password should be", KindWeakPassword},
	{"weak password", KindWeakPassword},
	{"signups not allowed", KindDisabled},
	{"logins are disabled", KindDisabled},
	{"signin disabled", KindDisabled},
	{"too many requests", KindRateLimited},
	{"rate limit", KindRateLimited},
	{"otp expired", KindValidation},
	{"token has expired", KindValidation},
}

// classify folds an HTTP status and provider message into a Kind.
func classify(status int, message string) Kind {
	lower := strings.ToLower(message)
	for _, rule := range messageRules {
		if strings.Contains(lower, rule.fragment) {
			return rule.kind
		}
	}
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthInvalid
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 400 && status < 500:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}
