package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/events"
	"github.com/inodinwetrust10/fxsettle/internal/models"
	"github.com/inodinwetrust10/fxsettle/internal/wallet"
)

var (
	ErrInvalidAmount       = errors.New("payout amount must be positive with at most 8 decimal places")
	ErrMethodNotOwned      = errors.New("payout method belongs to another user")
	ErrUnsupportedCurrency = errors.New("payout method does not support this currency")
	ErrNotPending          = errors.New("payout is not pending")
	ErrDisbursement        = errors.New("disbursement failed")
)

const scale = 8

var hundred = decimal.NewFromInt(100)

// InsufficientEarningsError is returned when a payout asks for more than the
// user's available earnings in that currency.
type InsufficientEarningsError struct {
	Currency  string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientEarningsError) Error() string {
	return fmt.Sprintf("insufficient %s earnings: requested %s, available %s", e.Currency, e.Requested, e.Available)
}

// Disburser moves a payout to the external account. It is called inside the
// transaction that completes the payout, so an error leaves the payout pending.
// Implementations must treat p.Reference as an idempotency key: a second call
// for the same reference returns the first provider reference and moves no
// money.
type Disburser interface {
	Disburse(ctx context.Context, p *models.Payout) (providerRef string, err error)
}

// LogDisburser only records the disbursement. It stands in until a rail is wired.
type LogDisburser struct {
	Log *zap.Logger
}

func (d LogDisburser) Disburse(ctx context.Context, p *models.Payout) (string, error) {
	ref := "RAIL-" + p.Reference
	d.Log.Info("disbursement sent",
		zap.Int64("payout_id", p.ID),
		zap.String("account", p.LinkedAccount),
		zap.String("amount", p.Amount.String()),
		zap.String("currency", p.Currency),
		zap.String("provider_reference", ref))
	return ref, nil
}

type Config struct {
	FeePct          decimal.Decimal
	DisburseTimeout time.Duration
	MaxRetries      int
}

type Service struct {
	store     db.Store
	wallets   *wallet.Service
	disburser Disburser
	events    events.Publisher
	log       *zap.Logger
	cfg       Config
}

func New(store db.Store, wallets *wallet.Service, disburser Disburser, pub events.Publisher, log *zap.Logger, cfg Config) *Service {
	if cfg.DisburseTimeout <= 0 {
		cfg.DisburseTimeout = 15 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	return &Service{
		store:     store,
		wallets:   wallets,
		disburser: disburser,
		events:    pub,
		log:       log,
		cfg:       cfg,
	}
}

// AvailableBalance sums the user's unclaimed earnings in currency. Earnings
// claimed by a pending payout are already in processing and not counted.
func (s *Service) AvailableBalance(ctx context.Context, userID int64, currency string) (decimal.Decimal, error) {
	cur, err := models.NormalizeCurrency(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return s.store.SumEarnings(ctx, userID, cur, models.EarningAvailable)
}

func (s *Service) ListEarnings(ctx context.Context, userID int64, currency string, status models.EarningStatus) ([]models.Earning, error) {
	f := db.EarningFilter{UserID: userID, Status: status}
	if currency != "" {
		cur, err := models.NormalizeCurrency(currency)
		if err != nil {
			return nil, err
		}
		f.Currency = cur
	}
	return s.store.ListEarnings(ctx, f)
}

type Request struct {
	UserID         int64           `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	PayoutMethodID int64           `json:"payout_method_id"`
}

// RequestPayout claims available earnings oldest first until they cover
// req.Amount exactly, splitting the last one if it overshoots, and records a
// pending payout for the amount net of the payout fee.
func (s *Service) RequestPayout(ctx context.Context, req Request) (*models.Payout, error) {
	if !req.Amount.IsPositive() || !models.FitsScale(req.Amount, models.AmountScale) {
		return nil, ErrInvalidAmount
	}
	cur, err := models.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	var out *models.Payout
	err = db.RunInTx(ctx, s.store, s.cfg.MaxRetries, func(tx db.Tx) error {
		m, err := tx.GetPayoutMethod(ctx, req.PayoutMethodID)
		if err != nil {
			return fmt.Errorf("payout method %d: %w", req.PayoutMethodID, err)
		}
		if m.UserID != req.UserID {
			return ErrMethodNotOwned
		}
		if m.Currency != cur {
			return ErrUnsupportedCurrency
		}

		available, err := tx.ListEarnings(ctx, db.EarningFilter{
			UserID:   req.UserID,
			Currency: cur,
			Status:   models.EarningAvailable,
			Lock:     true,
		})
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, e := range available {
			total = total.Add(e.NetAmount)
		}
		if total.LessThan(req.Amount) {
			return &InsufficientEarningsError{Currency: cur, Requested: req.Amount, Available: total}
		}

		fee := req.Amount.Mul(s.cfg.FeePct).Div(hundred).Round(scale)
		methodID := m.ID
		p := &models.Payout{
			UserID:         req.UserID,
			PayoutMethodID: &methodID,
			Amount:         req.Amount.Sub(fee),
			Currency:       cur,
			Status:         models.PayoutPending,
			PayoutFee:      fee,
			LinkedAccount:  m.Details.Descriptor(),
			Reference:      "PAY-" + uuid.NewString(),
		}
		if err := tx.InsertPayout(ctx, p); err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}
		if err := allocate(ctx, tx, available, req.Amount, p.ID); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payout requested",
		zap.Int64("payout_id", out.ID),
		zap.Int64("user_id", out.UserID),
		zap.String("amount", out.Amount.String()),
		zap.String("fee", out.PayoutFee.String()),
		zap.String("currency", out.Currency))
	s.publish(ctx, events.PayoutRequested, out)
	return out, nil
}

// allocate moves earnings, oldest first, into processing under payoutID until
// amount is covered. An earning that overshoots is split: the claimed part
// becomes a new processing earning and the rest stays available.
func allocate(ctx context.Context, tx db.Tx, earnings []models.Earning, amount decimal.Decimal, payoutID int64) error {
	remaining := amount
	for i := range earnings {
		if !remaining.IsPositive() {
			break
		}
		e := &earnings[i]
		if e.NetAmount.LessThanOrEqual(remaining) {
			remaining = remaining.Sub(e.NetAmount)
			e.Status = models.EarningProcessing
			e.PayoutID = &payoutID
			if err := tx.UpdateEarning(ctx, e); err != nil {
				return fmt.Errorf("claim earning %d: %w", e.ID, err)
			}
			continue
		}

		e.Amount = e.Amount.Sub(remaining)
		e.NetAmount = e.NetAmount.Sub(remaining)
		if err := tx.UpdateEarning(ctx, e); err != nil {
			return fmt.Errorf("split earning %d: %w", e.ID, err)
		}
		piece := &models.Earning{
			UserID:    e.UserID,
			OrderID:   e.OrderID,
			PayoutID:  &payoutID,
			Currency:  e.Currency,
			Amount:    remaining,
			Fee:       decimal.Zero,
			NetAmount: remaining,
			Type:      e.Type,
			Status:    models.EarningProcessing,
			Metadata:  map[string]any{"split_from": e.ID},
			CreatedAt: e.CreatedAt,
		}
		if err := tx.InsertEarning(ctx, piece); err != nil {
			return fmt.Errorf("insert split earning: %w", err)
		}
		remaining = decimal.Zero
	}
	return nil
}

// ProcessPayout disburses a pending payout and marks it and its earnings done.
// If the disbursement fails or times out nothing changes. The transaction is
// run once: a conflict after the rail call is returned, not retried, and the
// payout stays pending for a later call under the same reference.
func (s *Service) ProcessPayout(ctx context.Context, id int64) (*models.Payout, error) {
	var (
		out         *models.Payout
		providerRef string
	)
	err := s.store.WithTx(ctx, func(tx db.Tx) error {
		p, err := tx.GetPayout(ctx, id, true)
		if err != nil {
			return fmt.Errorf("payout %d: %w", id, err)
		}
		if p.Status != models.PayoutPending {
			return ErrNotPending
		}

		dctx, cancel := context.WithTimeout(ctx, s.cfg.DisburseTimeout)
		ref, err := s.disburser.Disburse(dctx, p)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDisbursement, err)
		}
		providerRef = ref

		now := time.Now().UTC()
		p.Status = models.PayoutCompleted
		p.ProcessedAt = &now
		if err := tx.UpdatePayout(ctx, p); err != nil {
			return fmt.Errorf("complete payout: %w", err)
		}
		if err := s.settleEarnings(ctx, tx, p.UserID, p.ID, models.EarningPaid); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDisbursement):
			s.log.Warn("payout left pending", zap.Int64("payout_id", id), zap.Error(err))
		case providerRef != "":
			s.log.Error("payout disbursed but not recorded",
				zap.Int64("payout_id", id),
				zap.String("provider_reference", providerRef),
				zap.Error(err))
		}
		return nil, err
	}

	s.log.Info("payout completed",
		zap.Int64("payout_id", out.ID),
		zap.String("provider_reference", providerRef))
	s.publish(ctx, events.PayoutCompleted, out)
	return out, nil
}

// FailPayout marks a pending payout failed and hands its earnings back. For an
// order payout the wallet debits taken up front are credited back.
func (s *Service) FailPayout(ctx context.Context, id int64, reason string) (*models.Payout, error) {
	if reason == "" {
		reason = "failed"
	}
	var out *models.Payout
	err := db.RunInTx(ctx, s.store, s.cfg.MaxRetries, func(tx db.Tx) error {
		p, err := tx.GetPayout(ctx, id, true)
		if err != nil {
			return fmt.Errorf("payout %d: %w", id, err)
		}
		if p.Status != models.PayoutPending {
			return ErrNotPending
		}
		now := time.Now().UTC()
		p.Status = models.PayoutFailed
		p.FailureReason = reason
		p.ProcessedAt = &now
		if err := tx.UpdatePayout(ctx, p); err != nil {
			return fmt.Errorf("fail payout: %w", err)
		}
		if err := s.settleEarnings(ctx, tx, p.UserID, p.ID, models.EarningAvailable); err != nil {
			return err
		}
		if p.OrderID != nil {
			if err := s.reverseDebits(ctx, tx, p); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payout failed", zap.Int64("payout_id", out.ID), zap.String("reason", reason))
	s.publish(ctx, events.PayoutFailed, out)
	return out, nil
}

// FeeReference and WithdrawalReference name the ledger rows written when an
// order payout is requested.
func FeeReference(payoutRef string) string        { return payoutRef + "-FEE" }
func WithdrawalReference(payoutRef string) string { return payoutRef + "-WD" }

func (s *Service) reverseDebits(ctx context.Context, tx db.Tx, p *models.Payout) error {
	for _, ref := range []string{FeeReference(p.Reference), WithdrawalReference(p.Reference)} {
		t, err := tx.GetTransactionByReference(ctx, ref)
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := s.wallets.Credit(ctx, tx, t.UserID, t.Currency, t.Amount, wallet.Meta{
			Type:        models.TxRefund,
			Reference:   ref + "-REFUND",
			Description: "Failed payout reversal",
			Metadata:    map[string]any{"payout_id": p.ID},
		}); err != nil {
			return err
		}
	}
	return nil
}

// settleEarnings moves every earning claimed by payoutID to status. Returning
// to available releases the claim.
func (s *Service) settleEarnings(ctx context.Context, tx db.Tx, userID, payoutID int64, status models.EarningStatus) error {
	claimed, err := tx.ListEarnings(ctx, db.EarningFilter{
		UserID:   userID,
		Status:   models.EarningProcessing,
		PayoutID: &payoutID,
		Lock:     true,
	})
	if err != nil {
		return err
	}
	for i := range claimed {
		e := &claimed[i]
		e.Status = status
		if status == models.EarningAvailable {
			e.PayoutID = nil
		}
		if err := tx.UpdateEarning(ctx, e); err != nil {
			return fmt.Errorf("update earning %d: %w", e.ID, err)
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Payout, error) {
	return s.store.GetPayout(ctx, id, false)
}

func (s *Service) publish(ctx context.Context, typ string, p *models.Payout) {
	if err := s.events.Publish(ctx, events.New(typ, p.Reference, p)); err != nil {
		s.log.Warn("publish event", zap.String("type", typ), zap.String("reference", p.Reference), zap.Error(err))
	}
}
