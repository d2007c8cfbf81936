package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wafra.app/internal/api"
	"wafra.app/internal/session"
)

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.manager.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return printJSON(user)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func googleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login-google",
		Short: "Sign in through Google",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.manager.LoginWithGoogle(cmd.Context(), func(url string) error {
				fmt.Fprintf(os.Stderr, "Open this URL in your browser to continue:\n\n  %s\n\n", url)
				return nil
			})
			if err != nil {
				return err
			}
			return printJSON(user)
		},
	}
}

func registerCmd() *cobra.Command {
	var email, password, fullName, phone, referral string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.manager.Register(cmd.Context(), email, password, session.RegisterDetails{
				FullName:     fullName,
				Phone:        phone,
				ReferralCode: referral,
			})
			if err != nil {
				return err
			}
			return printJSON(user)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (at least 6 characters)")
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&referral, "referral", "", "referral code of the inviting user")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if _, err := a.manager.Restore(cmd.Context()); err != nil {
				return err
			}
			if err := a.manager.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("signed out")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if _, err := a.manager.Restore(cmd.Context()); err != nil {
				return err
			}
			snap := a.manager.Snapshot()
			out := map[string]any{"state": snap.State.String()}
			if snap.User != nil {
				out["user"] = snap.User
			}
			return printJSON(out)
		},
	}
}

func verifyCmd() *cobra.Command {
	var token, typ string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Redeem an email verification or recovery token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.manager.VerifyEmail(cmd.Context(), token, typ)
			if err != nil {
				return err
			}
			return printJSON(user)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "verification token")
	cmd.Flags().StringVar(&typ, "type", "signup", "token type: signup|recovery")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func resendCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resend",
		Short: "Re-send the signup confirmation email",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.manager.ResendVerification(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "address to confirm (defaults to the signed-in user)")
	return cmd
}

func recoverCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Request a password reset email",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.manager.RequestPasswordReset(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func resetPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password (after `wafra verify --type recovery`)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if _, err := a.signedIn(cmd.Context()); err != nil {
				return err
			}
			if err := a.manager.ConfirmPasswordReset(cmd.Context(), password); err != nil {
				return err
			}
			fmt.Println("password updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password (at least 6 characters)")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func otpCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "otp", Short: "One-time code operations"}

	var sendEmail, sendPhone, sendType string
	send := &cobra.Command{
		Use:   "send",
		Short: "Deliver a one-time code",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			err = a.manager.SendOTP(cmd.Context(), api.OTPParams{Email: sendEmail, Phone: sendPhone, Type: sendType})
			if err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}
	send.Flags().StringVar(&sendEmail, "email", "", "email target")
	send.Flags().StringVar(&sendPhone, "phone", "", "phone target")
	send.Flags().StringVar(&sendType, "type", "email", "delivery type: email|sms")

	var vEmail, vPhone, vType, vCode string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Redeem a one-time code and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.manager.VerifyOTP(cmd.Context(), api.OTPParams{Email: vEmail, Phone: vPhone, Type: vType}, vCode)
			if err != nil {
				return err
			}
			return printJSON(user)
		},
	}
	verify.Flags().StringVar(&vEmail, "email", "", "email target")
	verify.Flags().StringVar(&vPhone, "phone", "", "phone target")
	verify.Flags().StringVar(&vType, "type", "email", "delivery type: email|sms")
	verify.Flags().StringVar(&vCode, "code", "", "received code")
	_ = verify.MarkFlagRequired("code")

	var target string
	status := &cobra.Command{
		Use:   "status",
		Short: "Check an outstanding code",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			st, err := a.manager.CheckOTPStatus(cmd.Context(), target)
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
	status.Flags().StringVar(&target, "target", "", "email or phone the code was sent to")
	_ = status.MarkFlagRequired("target")

	cmd.AddCommand(send, verify, status)
	return cmd
}
