package bank

import (
	"context"
	"strings"

	"wafra.app/internal/api"
	"wafra.app/internal/audit"
	"wafra.app/internal/ids"
	"wafra.app/internal/notify"
)

// CreateGoal adds a savings goal row.
func (s *Service) CreateGoal(ctx context.Context, userID, name string, target int64) (*api.SavingsGoal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if target < MinGoalTarget {
		return nil, ErrAmountOutOfRange
	}

	goal := api.SavingsGoal{
		ID:       ids.New(),
		UserID:   userID,
		Name:     name,
		Currency: Currency,
		Target:   target,
	}
	var stored api.SavingsGoal
	if err := s.api.Insert(ctx, "savings_goals", goal, &stored); err != nil {
		return nil, err
	}
	s.push(notify.Success, "هدف ادخار جديد", "تم إنشاء هدف الادخار")
	return &stored, nil
}

// Goals lists the user's savings goals.
func (s *Service) Goals(ctx context.Context, userID string) ([]api.SavingsGoal, error) {
	var out []api.SavingsGoal
	if err := s.api.Select(ctx, "savings_goals", api.Filters{"user_id": userID}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Contribute moves balance into a goal through the backend procedure, then
// patches the goal's saved total.
func (s *Service) Contribute(ctx context.Context, userID, goalID string, amount int64) error {
	if amount <= 0 {
		return ErrAmountOutOfRange
	}

	var tx api.Transaction
	err := s.api.RPC(ctx, api.RPCUpdateUserBalance, balanceMutation{
		UserID:    userID,
		Operation: "withdraw",
		Currency:  Currency,
		Amount:    amount,
		Method:    "savings",
		Reference: goalID,
	}, &tx)
	if err != nil {
		return err
	}

	if err := s.api.Update(ctx, "savings_goals", api.Filters{"id": goalID}, map[string]any{
		"saved_delta": amount,
	}); err != nil {
		return err
	}

	_ = audit.LogEvent(audit.WithUserID(ctx, userID), "bank.savings.contribute", map[string]any{
		"goal":   goalID,
		"amount": amount,
	})
	return nil
}

// EnsureReferralCode returns the user's referral code, asking the backend to
// generate one when missing.
func (s *Service) EnsureReferralCode(ctx context.Context, userID string) (string, error) {
	var profile api.Profile
	if err := s.api.SelectOne(ctx, "profiles", api.Filters{"user_id": userID}, &profile); err == nil {
		if profile.ReferralCode != "" {
			return profile.ReferralCode, nil
		}
	}

	var resp struct {
		Code string `json:"code"`
	}
	if err := s.api.RPC(ctx, api.RPCGenerateReferralCode, map[string]string{"user_id": userID}, &resp); err != nil {
		return "", err
	}
	return resp.Code, nil
}

// Referrals lists users referred by this user together with reward status.
func (s *Service) Referrals(ctx context.Context, userID string) ([]api.Referral, error) {
	var out []api.Referral
	if err := s.api.Select(ctx, "referrals", api.Filters{"referrer_id": userID}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReferralRewards sums paid rewards client-side for display only.
func ReferralRewards(refs []api.Referral) (paid, pending int64) {
	for _, r := range refs {
		switch r.RewardStatus {
		case "paid":
			paid += r.Reward
		default:
			pending += r.Reward
		}
	}
	return paid, pending
}
