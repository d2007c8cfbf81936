package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"wafra.app/internal/api"
	"wafra.app/internal/audit"
	"wafra.app/internal/obs"
)

// LoginWithGoogle runs the OAuth redirect flow through a loopback listener:
// openURL receives the provider authorize URL (typically handed to a
// browser), the listener captures the callback code, and the code is
// exchanged for a session. A freshly provisioned OAuth identity gets the
// server-side setup call plus a settling delay before enrichment.
func (m *Manager) LoginWithGoogle(ctx context.Context, openURL func(url string) error) (*ExtendedUser, error) {
	v, err, _ := m.group.Do("oauth:google", func() (any, error) {
		return m.doLoginWithGoogle(ctx, openURL)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ExtendedUser), nil
}

func (m *Manager) doLoginWithGoogle(ctx context.Context, openURL func(url string) error) (*ExtendedUser, error) {
	started := m.now()
	e := m.begin(StateAuthenticating)

	opCtx, cancel := api.WithDeadline(ctx, m.timeouts.OAuth)
	defer cancel()

	code, err := m.captureOAuthCode(opCtx, "google", openURL)
	if err != nil {
		return nil, m.failOp(e, "oauth_login", started, err)
	}

	sess, err := m.api.ExchangeCode(opCtx, code)
	if err != nil {
		return nil, m.failOp(e, "oauth_login", started, err)
	}

	if sess.User.FreshOAuthUser(m.now()) {
		m.api.SetSession(sess.AccessToken, sess.RefreshToken)
		if err := m.api.RPC(opCtx, api.RPCSetupGoogleUser, map[string]string{"user_id": sess.User.ID}, nil); err != nil {
			obs.Warn("google user setup call failed", map[string]any{
				"kind": string(api.KindOf(err)),
			})
		}
		// Server-side provisioning triggers need a moment; best effort, the
		// subsequent enrichment tolerates missing rows either way.
		if err := m.sleep(opCtx, m.timeouts.ProvisionDelay); err != nil {
			return nil, m.failOp(e, "oauth_login", started, err)
		}
	}

	user := m.installSession(opCtx, sess)
	m.commitUser(e, user)
	obs.ObserveOp("oauth_login", "ok", time.Since(started))
	_ = audit.LogEvent(audit.WithUserID(ctx, sess.User.ID), "session.login", map[string]any{
		"provider": "google",
	})
	return user, nil
}

// captureOAuthCode serves one loopback callback request and returns the
// authorization code it carries.
func (m *Manager) captureOAuthCode(ctx context.Context, provider string, openURL func(url string) error) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", &api.Error{Kind: api.KindNetwork, Message: err.Error()}
	}
	defer ln.Close()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}
		if msg := r.URL.Query().Get("error"); msg != "" {
			select {
			case errCh <- &api.Error{Kind: api.KindAuthInvalid, Message: msg}:
			default:
			}
			http.Error(w, "sign-in failed, you can close this window", http.StatusBadRequest)
			return
		}
		code := strings.TrimSpace(r.URL.Query().Get("code"))
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		select {
		case codeCh <- code:
		default:
		}
		fmt.Fprintln(w, "signed in, you can close this window")
	})}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	redirectTo := "http://" + ln.Addr().String() + "/callback"
	authorizeURL := m.api.AuthorizeURL(provider, redirectTo)
	if openURL == nil {
		return "", &api.Error{Kind: api.KindValidation, Message: "no browser opener provided"}
	}
	if err := openURL(authorizeURL); err != nil {
		return "", &api.Error{Kind: api.KindNetwork, Message: err.Error()}
	}

	select {
	case code := <-codeCh:
		return code, nil
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &api.Error{Kind: api.KindTimeout, Message: "oauth callback not received"}
		}
		return "", &api.Error{Kind: api.KindCanceled, Message: ctx.Err().Error()}
	}
}
