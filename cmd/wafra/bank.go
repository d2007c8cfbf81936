package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wafra.app/internal/bank"
)

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the available balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if user.Balance == nil {
				return fmt.Errorf("balance not available yet, try again shortly")
			}
			return printJSON(user.Balance)
		},
	}
}

func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the full account profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(user)
		},
	}
}

func transactionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transactions",
		Short: "List transaction history",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			txs, err := a.bank.Transactions(cmd.Context(), user.Identity.ID)
			if err != nil {
				return err
			}
			return printJSON(txs)
		},
	}
}

func transferCmd() *cobra.Command {
	var to, amountStr string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send money to another account",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(amountStr)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}

			w := a.bank.NewTransferWizard(user.Identity.ID)
			if err := w.SetRecipient(cmd.Context(), to); err != nil {
				return err
			}
			if err := w.SetAmount(amount); err != nil {
				return err
			}
			fmt.Printf("transferring %s SAR to %s (%s)\n",
				amountStr, w.Recipient().Username, w.Recipient().AccountNumber)
			tx, err := w.Confirm(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(tx)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient username or account number")
	cmd.Flags().StringVar(&amountStr, "amount", "", "amount in SAR, e.g. 25.50")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func rechargeCmd() *cobra.Command {
	var method, amountStr string
	cmd := &cobra.Command{
		Use:   "recharge",
		Short: "Top up the balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(amountStr)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			tx, err := a.bank.Recharge(cmd.Context(), user.Identity.ID, method, amount)
			if err != nil {
				return err
			}
			return printJSON(tx)
		},
	}
	cmd.Flags().StringVar(&method, "method", "card", "funding method: card|bank|voucher")
	cmd.Flags().StringVar(&amountStr, "amount", "", "amount in SAR")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func withdrawCmd() *cobra.Command {
	var method, amountStr string
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw from the balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(amountStr)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			tx, err := a.bank.Withdraw(cmd.Context(), user.Identity.ID, method, amount)
			if err != nil {
				return err
			}
			return printJSON(tx)
		},
	}
	cmd.Flags().StringVar(&method, "method", "bank", "payout method: card|bank|voucher")
	cmd.Flags().StringVar(&amountStr, "amount", "", "amount in SAR")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func investCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "invest", Short: "Investment operations"}

	var typ, amountStr string
	open := &cobra.Command{
		Use:   "open",
		Short: "Open an investment position",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(amountStr)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			inv, err := a.bank.OpenInvestment(cmd.Context(), user.Identity.ID, typ, amount)
			if err != nil {
				return err
			}
			return printJSON(inv)
		},
	}
	open.Flags().StringVar(&typ, "type", "weekly", "plan: weekly|monthly")
	open.Flags().StringVar(&amountStr, "amount", "", "amount in SAR")
	_ = open.MarkFlagRequired("amount")

	list := &cobra.Command{
		Use:   "list",
		Short: "List investment positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			invs, err := a.bank.Investments(cmd.Context(), user.Identity.ID)
			if err != nil {
				return err
			}
			return printJSON(invs)
		},
	}

	var watchID string
	var interval time.Duration
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Follow one position until it completes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if _, err := a.signedIn(cmd.Context()); err != nil {
				return err
			}
			for inv := range a.bank.WatchInvestment(cmd.Context(), watchID, interval) {
				if err := printJSON(inv); err != nil {
					return err
				}
			}
			return nil
		},
	}
	watch.Flags().StringVar(&watchID, "id", "", "investment id")
	watch.Flags().DurationVar(&interval, "interval", 5*time.Second, "poll interval")
	_ = watch.MarkFlagRequired("id")

	cmd.AddCommand(open, list, watch)
	return cmd
}

func savingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "savings", Short: "Savings goal operations"}

	var name, targetStr string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a savings goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseAmount(targetStr)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			goal, err := a.bank.CreateGoal(cmd.Context(), user.Identity.ID, name, target)
			if err != nil {
				return err
			}
			return printJSON(goal)
		},
	}
	create.Flags().StringVar(&name, "name", "", "goal name")
	create.Flags().StringVar(&targetStr, "target", "", "target amount in SAR")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("target")

	list := &cobra.Command{
		Use:   "list",
		Short: "List savings goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			goals, err := a.bank.Goals(cmd.Context(), user.Identity.ID)
			if err != nil {
				return err
			}
			return printJSON(goals)
		},
	}

	var goalID, amountStr string
	contribute := &cobra.Command{
		Use:   "contribute",
		Short: "Move balance into a goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(amountStr)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.bank.Contribute(cmd.Context(), user.Identity.ID, goalID, amount); err != nil {
				return err
			}
			fmt.Println("contributed")
			return nil
		},
	}
	contribute.Flags().StringVar(&goalID, "goal", "", "goal id")
	contribute.Flags().StringVar(&amountStr, "amount", "", "amount in SAR")
	_ = contribute.MarkFlagRequired("goal")
	_ = contribute.MarkFlagRequired("amount")

	cmd.AddCommand(create, list, contribute)
	return cmd
}

func referralCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "referral", Short: "Referral program operations"}

	code := &cobra.Command{
		Use:   "code",
		Short: "Show (or generate) your referral code",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			code, err := a.bank.EnsureReferralCode(cmd.Context(), user.Identity.ID)
			if err != nil {
				return err
			}
			fmt.Println(code)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List referred users and rewards",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			user, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			refs, err := a.bank.Referrals(cmd.Context(), user.Identity.ID)
			if err != nil {
				return err
			}
			if err := printJSON(refs); err != nil {
				return err
			}
			paid, pending := bank.ReferralRewards(refs)
			fmt.Printf("rewards: paid=%d pending=%d\n", paid, pending)
			return nil
		},
	}

	cmd.AddCommand(code, list)
	return cmd
}
