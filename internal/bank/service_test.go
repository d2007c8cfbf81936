package bank

import (
	"context"
	"testing"

	"wafra.app/internal/api"
)

func TestRechargeValidation(t *testing.T) {
	f := &fakeBackend{}
	svc := newTestService(t, f)
	ctx := context.Background()

	if _, err := svc.Recharge(ctx, "me", "crypto", 50_000); err != ErrBadMethod {
		t.Fatalf("bad method: got %v", err)
	}
	if _, err := svc.Recharge(ctx, "me", "card", MinRechargeAmount-1); err != ErrAmountOutOfRange {
		t.Fatalf("below min: got %v", err)
	}
	if _, err := svc.Recharge(ctx, "me", "card", MaxRechargeAmount+1); err != ErrAmountOutOfRange {
		t.Fatalf("above max: got %v", err)
	}
	if len(f.rpcBodies) != 0 {
		t.Fatal("rejected recharge reached the network")
	}

	if _, err := svc.Recharge(ctx, "me", "card", 50_000); err != nil {
		t.Fatal(err)
	}
	if f.rpcBodies[0]["operation"] != "recharge" {
		t.Fatalf("rpc body = %v", f.rpcBodies[0])
	}
}

func TestWithdrawValidation(t *testing.T) {
	f := &fakeBackend{}
	svc := newTestService(t, f)
	ctx := context.Background()

	if _, err := svc.Withdraw(ctx, "me", "bank", MinWithdrawAmount-1); err != ErrAmountOutOfRange {
		t.Fatalf("got %v", err)
	}
	if _, err := svc.Withdraw(ctx, "me", "bank", MinWithdrawAmount); err != nil {
		t.Fatal(err)
	}
	if f.rpcBodies[0]["operation"] != "withdraw" {
		t.Fatalf("rpc body = %v", f.rpcBodies[0])
	}
}

func TestOpenInvestmentValidation(t *testing.T) {
	svc := newTestService(t, &fakeBackend{})
	ctx := context.Background()

	if _, err := svc.OpenInvestment(ctx, "me", "daily", MinInvestAmount); err != ErrBadInvestType {
		t.Fatalf("got %v", err)
	}
	if _, err := svc.OpenInvestment(ctx, "me", "weekly", MinInvestAmount-1); err != ErrAmountOutOfRange {
		t.Fatalf("got %v", err)
	}
}

func TestCreateGoalValidation(t *testing.T) {
	svc := newTestService(t, &fakeBackend{})
	ctx := context.Background()

	if _, err := svc.CreateGoal(ctx, "me", "  ", MinGoalTarget); err != ErrNameRequired {
		t.Fatalf("got %v", err)
	}
	if _, err := svc.CreateGoal(ctx, "me", "trip", MinGoalTarget-1); err != ErrAmountOutOfRange {
		t.Fatalf("got %v", err)
	}
}

func TestReferralRewards(t *testing.T) {
	refs := []api.Referral{
		{Reward: 2_500, RewardStatus: "paid"},
		{Reward: 2_500, RewardStatus: "pending"},
		{Reward: 1_000, RewardStatus: "paid"},
	}
	paid, pending := ReferralRewards(refs)
	if paid != 3_500 || pending != 2_500 {
		t.Fatalf("paid=%d pending=%d", paid, pending)
	}
}
