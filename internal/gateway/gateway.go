package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/events"
	"github.com/inodinwetrust10/fxsettle/internal/models"
	"github.com/inodinwetrust10/fxsettle/internal/wallet"
)

var (
	ErrInvalidCallback = errors.New("invalid gateway callback")
	ErrNotSuccessful   = errors.New("gateway reported an unsuccessful payment")
)

// Callback is a provider's notice that a deposit was paid. Reference is the
// provider's transaction reference and keys idempotency.
type Callback struct {
	Reference string          `json:"reference"`
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Provider  string          `json:"provider"`
	Status    string          `json:"status"`
}

type Result struct {
	Transaction *models.Transaction `json:"transaction"`
	Duplicate   bool                `json:"duplicate"`
}

type Service struct {
	store      db.Store
	wallets    *wallet.Service
	events     events.Publisher
	log        *zap.Logger
	maxRetries int
}

func New(store db.Store, wallets *wallet.Service, pub events.Publisher, log *zap.Logger, maxRetries int) *Service {
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &Service{store: store, wallets: wallets, events: pub, log: log, maxRetries: maxRetries}
}

func successful(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "successful", "completed", "paid":
		return true
	}
	return false
}

// replay answers a callback whose reference is already in the ledger. Only the
// same user's deposit counts; any other row is never echoed back.
func replay(t *models.Transaction, userID int64) (*Result, error) {
	if t.Type != models.TxDeposit || t.UserID != userID {
		return nil, fmt.Errorf("%w: reference already in use", ErrInvalidCallback)
	}
	return &Result{Transaction: t, Duplicate: true}, nil
}

// ApplyDeposit credits the wallet once per reference. Replays return the
// first ledger row with Duplicate set.
func (s *Service) ApplyDeposit(ctx context.Context, cb Callback) (*Result, error) {
	ref := strings.TrimSpace(cb.Reference)
	switch {
	case ref == "":
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidCallback)
	case !cb.Amount.IsPositive():
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidCallback)
	case !models.FitsScale(cb.Amount, models.AmountScale):
		return nil, fmt.Errorf("%w: amount allows at most 8 decimal places", ErrInvalidCallback)
	}
	cur, err := models.NormalizeCurrency(cb.Currency)
	if err != nil {
		return nil, err
	}

	if t, err := s.store.GetTransactionByReference(ctx, ref); err == nil {
		return replay(t, cb.UserID)
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if !successful(cb.Status) {
		s.log.Info("ignoring unsuccessful deposit",
			zap.String("reference", ref),
			zap.String("provider", cb.Provider),
			zap.String("status", cb.Status))
		return nil, ErrNotSuccessful
	}

	var out *models.Transaction
	err = db.RunInTx(ctx, s.store, s.maxRetries, func(tx db.Tx) error {
		if _, err := tx.GetUser(ctx, cb.UserID); err != nil {
			return fmt.Errorf("user %d: %w", cb.UserID, err)
		}
		t, err := s.wallets.Credit(ctx, tx, cb.UserID, cur, cb.Amount, wallet.Meta{
			Type:              models.TxDeposit,
			Reference:         ref,
			ProviderReference: ref,
			Description:       "Deposit via " + cb.Provider,
			Metadata:          map[string]any{"provider": cb.Provider},
		})
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if errors.Is(err, db.ErrDuplicateReference) {
		// Lost the race to a concurrent delivery of the same callback.
		t, gerr := s.store.GetTransactionByReference(ctx, ref)
		if gerr != nil {
			return nil, gerr
		}
		return replay(t, cb.UserID)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("deposit applied",
		zap.String("reference", ref),
		zap.Int64("user_id", cb.UserID),
		zap.String("amount", cb.Amount.String()),
		zap.String("currency", cur))
	if err := s.events.Publish(ctx, events.New(events.DepositApplied, ref, out)); err != nil {
		s.log.Warn("publish event", zap.String("type", events.DepositApplied), zap.String("reference", ref), zap.Error(err))
	}
	return &Result{Transaction: out}, nil
}
