package bank

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"wafra.app/internal/api"
	"wafra.app/internal/audit"
	"wafra.app/internal/notify"
)

// Transfer wizard steps. Transitions are strictly sequential; each setter
// validates its own step before advancing.
const (
	StepRecipient = 1
	StepAmount    = 2
	StepConfirm   = 3
)

// TransferWizard drives the three-step transfer form: pick a recipient,
// enter an amount, confirm. One idempotency key covers the confirmation so a
// double-click cannot double-spend.
type TransferWizard struct {
	svc    *Service
	userID string

	step      int
	recipient *api.Credentials
	amount    int64
	idemKey   string
}

// NewTransferWizard starts a transfer for the given sender.
func (s *Service) NewTransferWizard(userID string) *TransferWizard {
	return &TransferWizard{
		svc:     s,
		userID:  userID,
		step:    StepRecipient,
		idemKey: uuid.NewString(),
	}
}

// Step returns the current wizard step.
func (w *TransferWizard) Step() int { return w.step }

// Recipient returns the resolved recipient, nil before step 1 completes.
func (w *TransferWizard) Recipient() *api.Credentials { return w.recipient }

// LookupRecipient resolves a recipient by username or account number. Calls
// are spaced by the service's search limiter, mirroring debounced
// search-as-you-type.
func (w *TransferWizard) LookupRecipient(ctx context.Context, query string) (*api.Credentials, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrRecipientUnknown
	}
	if err := w.svc.searchLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var creds api.Credentials
	err := w.svc.api.SelectOne(ctx, "credentials", api.Filters{"account_number": query}, &creds)
	if err != nil && api.KindOf(err) == api.KindNotFound {
		err = w.svc.api.SelectOne(ctx, "credentials", api.Filters{"username": strings.ToLower(query)}, &creds)
	}
	if err != nil {
		if api.KindOf(err) == api.KindNotFound {
			return nil, ErrRecipientUnknown
		}
		return nil, err
	}
	return &creds, nil
}

// SetRecipient completes step 1.
func (w *TransferWizard) SetRecipient(ctx context.Context, query string) error {
	if w.step != StepRecipient {
		return ErrWrongStep
	}
	creds, err := w.LookupRecipient(ctx, query)
	if err != nil {
		return err
	}
	if creds.UserID == w.userID {
		return ErrSelfTransfer
	}
	w.recipient = creds
	w.step = StepAmount
	return nil
}

// SetAmount completes step 2. Bounds are checked client-side for immediate
// feedback and re-checked server-side.
func (w *TransferWizard) SetAmount(amount int64) error {
	if w.step != StepAmount {
		return ErrWrongStep
	}
	if amount < MinTransferAmount || amount > MaxTransferAmount {
		return ErrAmountOutOfRange
	}
	w.amount = amount
	w.step = StepConfirm
	return nil
}

// Back returns to the previous step, keeping entered data.
func (w *TransferWizard) Back() {
	if w.step > StepRecipient {
		w.step--
	}
}

// Confirm executes the transfer through the backend procedure and reports
// the resulting transaction. Repeating a confirmation replays the same
// idempotency key.
func (w *TransferWizard) Confirm(ctx context.Context) (*api.Transaction, error) {
	if w.step != StepConfirm {
		return nil, ErrWrongStep
	}

	var tx api.Transaction
	err := w.svc.api.RPC(ctx, api.RPCUpdateUserBalance, balanceMutation{
		UserID:         w.userID,
		Counterparty:   w.recipient.UserID,
		Operation:      "transfer",
		Currency:       Currency,
		Amount:         w.amount,
		IdempotencyKey: w.idemKey,
	}, &tx)
	if err != nil {
		return nil, err
	}

	_ = audit.LogEvent(audit.WithUserID(ctx, w.userID), "bank.transfer", map[string]any{
		"to":     w.recipient.UserID,
		"amount": w.amount,
	})
	w.svc.push(notify.Success, "تم التحويل", "تم تحويل المبلغ بنجاح")
	return &tx, nil
}
