package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wafra.app/internal/api"
	"wafra.app/internal/bank"
	"wafra.app/internal/config"
	"wafra.app/internal/localstore"
	"wafra.app/internal/notify"
	"wafra.app/internal/obs"
	"wafra.app/internal/sandbox"
	"wafra.app/internal/session"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

// app wires the client stack for one command invocation.
type app struct {
	cfg     config.Config
	client  *api.Client
	store   *localstore.Store
	manager *session.Manager
	center  *notify.Center
	bank    *bank.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = localstore.DefaultPath()
	}
	store, err := localstore.Open(storePath)
	if err != nil {
		return nil, err
	}
	client, err := api.New(cfg.APIURL, cfg.AnonKey)
	if err != nil {
		return nil, err
	}
	manager, err := session.NewManager(client,
		session.WithTimeouts(cfg.Timeouts),
		session.WithTokenStore(store),
	)
	if err != nil {
		return nil, err
	}
	center := notify.NewCenter(0)
	return &app{
		cfg:     cfg,
		client:  client,
		store:   store,
		manager: manager,
		center:  center,
		bank:    bank.NewService(client, center),
	}, nil
}

// signedIn restores the persisted session and fails when nobody is signed in.
func (a *app) signedIn(ctx context.Context) (*session.ExtendedUser, error) {
	user, err := a.manager.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("not signed in; run `wafra login` first")
	}
	return user, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// parseAmount converts a decimal SAR string ("10" or "10.50") to minor units.
func parseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	var cents int64
	if hasFrac {
		if len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q: at most two decimal places", s)
		}
		for len(frac) < 2 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
	}
	return units*100 + cents, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	root := &cobra.Command{
		Use:           "wafra",
		Short:         "Wafra digital banking client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		loginCmd(),
		googleCmd(),
		registerCmd(),
		logoutCmd(),
		statusCmd(),
		verifyCmd(),
		resendCmd(),
		recoverCmd(),
		resetPasswordCmd(),
		otpCmd(),
		balanceCmd(),
		profileCmd(),
		transactionsCmd(),
		transferCmd(),
		rechargeCmd(),
		withdrawCmd(),
		investCmd(),
		savingsCmd(),
		referralCmd(),
		sandboxCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wafra %s (%s)\n", version, commit)
		},
	}
}

func sandboxCmd() *cobra.Command {
	var (
		addr           = envOr("WAFRA_SANDBOX_ADDR", ":8090")
		anonKey        = envOr("WAFRA_ANON_KEY", "wafra-dev-anon-key")
		requireConfirm bool
	)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the local sandbox backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := sandbox.New(sandbox.Config{
				AnonKey:             anonKey,
				RequireEmailConfirm: requireConfirm,
				RateBurst:           50,
				RatePerSecond:       25,
			})
			if err != nil {
				return err
			}

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadTimeout:       15 * time.Second,
				ReadHeaderTimeout: 15 * time.Second,
				WriteTimeout:      15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			obs.Info("sandbox listening", map[string]any{"addr": addr, "version": version})

			errCh := make(chan error, 1)
			go func() {
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			obs.Info("sandbox shutting down", nil)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(ctx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", addr, "listen address (env WAFRA_SANDBOX_ADDR)")
	serve.Flags().StringVar(&anonKey, "anon-key", anonKey, "project key clients must present (env WAFRA_ANON_KEY)")
	serve.Flags().BoolVar(&requireConfirm, "require-email-confirm", false, "gate password logins on email verification")

	cmd := &cobra.Command{Use: "sandbox", Short: "Local stand-in for the hosted backend"}
	cmd.AddCommand(serve)
	return cmd
}
