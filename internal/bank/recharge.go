package bank

import (
	"context"

	"github.com/google/uuid"

	"wafra.app/internal/api"
	"wafra.app/internal/audit"
	"wafra.app/internal/notify"
)

var rechargeMethods = map[string]bool{
	"card":    true,
	"bank":    true,
	"voucher": true,
}

// Recharge tops up the user's balance through the backend procedure.
func (s *Service) Recharge(ctx context.Context, userID, method string, amount int64) (*api.Transaction, error) {
	if !rechargeMethods[method] {
		return nil, ErrBadMethod
	}
	if amount < MinRechargeAmount || amount > MaxRechargeAmount {
		return nil, ErrAmountOutOfRange
	}

	var tx api.Transaction
	err := s.api.RPC(ctx, api.RPCUpdateUserBalance, balanceMutation{
		UserID:         userID,
		Operation:      "recharge",
		Currency:       Currency,
		Amount:         amount,
		Method:         method,
		IdempotencyKey: uuid.NewString(),
	}, &tx)
	if err != nil {
		return nil, err
	}

	_ = audit.LogEvent(audit.WithUserID(ctx, userID), "bank.recharge", map[string]any{
		"method": method,
		"amount": amount,
	})
	s.push(notify.Success, "تم الشحن", "تمت إضافة الرصيد إلى حسابك")
	return &tx, nil
}

// Withdraw moves balance out to the named method.
func (s *Service) Withdraw(ctx context.Context, userID, method string, amount int64) (*api.Transaction, error) {
	if !rechargeMethods[method] {
		return nil, ErrBadMethod
	}
	if amount < MinWithdrawAmount {
		return nil, ErrAmountOutOfRange
	}

	var tx api.Transaction
	err := s.api.RPC(ctx, api.RPCUpdateUserBalance, balanceMutation{
		UserID:         userID,
		Operation:      "withdraw",
		Currency:       Currency,
		Amount:         amount,
		Method:         method,
		IdempotencyKey: uuid.NewString(),
	}, &tx)
	if err != nil {
		return nil, err
	}

	_ = audit.LogEvent(audit.WithUserID(ctx, userID), "bank.withdraw", map[string]any{
		"method": method,
		"amount": amount,
	})
	s.push(notify.Info, "طلب سحب", "تم استلام طلب السحب وسيتم معالجته")
	return &tx, nil
}
