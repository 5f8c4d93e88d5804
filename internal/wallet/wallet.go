package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/models"
)

var ErrInvalidAmount = errors.New("amount must be positive")

// InsufficientBalanceError reports how far a wallet is from covering a debit.
type InsufficientBalanceError struct {
	Currency  string
	Required  decimal.Decimal
	Available decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: required %s, available %s, shortfall %s",
		e.Currency, e.Required, e.Available, e.Shortfall)
}

func insufficient(currency string, required, available decimal.Decimal) *InsufficientBalanceError {
	return &InsufficientBalanceError{
		Currency:  currency,
		Required:  required,
		Available: available,
		Shortfall: required.Sub(available),
	}
}

// Meta describes the ledger row written alongside a balance change.
type Meta struct {
	Type              models.TransactionType
	Reference         string
	CounterpartyID    *int64
	ListingID         *int64
	PlatformFee       decimal.Decimal
	PlatformFeePct    decimal.Decimal
	SellerFee         decimal.Decimal
	SellerFeePct      decimal.Decimal
	// FeeCurrency is the currency the fees are charged in; empty means the
	// wallet currency. Only same-currency fees on a debit reduce NetAmount.
	FeeCurrency       string
	ProviderReference string
	Description       string
	Metadata          map[string]any
}

type Service struct {
	store db.Store
	log   *zap.Logger
}

func New(store db.Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// CheckBalance returns the balance held in currency, zero when the user has no
// wallet for it yet.
func (s *Service) CheckBalance(ctx context.Context, userID int64, currency string) (decimal.Decimal, error) {
	w, err := s.store.GetWallet(ctx, userID, currency, false)
	if errors.Is(err, db.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("check balance: %w", err)
	}
	return w.Balance, nil
}

// SettlementCurrency is the currency a user may receive exchanged funds in.
func (s *Service) SettlementCurrency(ctx context.Context, userID int64) (string, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("settlement currency: %w", err)
	}
	return u.Currency, nil
}

// Debit locks the wallet row, re-checks the balance and writes the ledger row.
// It must run inside tx.
func (s *Service) Debit(ctx context.Context, tx db.Tx, userID int64, currency string, amount decimal.Decimal, meta Meta) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	w, err := tx.GetWallet(ctx, userID, currency, true)
	if errors.Is(err, db.ErrNotFound) {
		return nil, insufficient(currency, amount, decimal.Zero)
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if w.Balance.LessThan(amount) {
		return nil, insufficient(currency, amount, w.Balance)
	}
	if err := tx.UpdateWalletBalance(ctx, w.ID, w.Balance.Sub(amount)); err != nil {
		return nil, fmt.Errorf("debit wallet: %w", err)
	}
	return s.record(ctx, tx, w, amount, true, meta)
}

// Credit creates the wallet on first use.
func (s *Service) Credit(ctx context.Context, tx db.Tx, userID int64, currency string, amount decimal.Decimal, meta Meta) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	w, err := tx.EnsureWallet(ctx, userID, currency)
	if err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}
	if err := tx.UpdateWalletBalance(ctx, w.ID, w.Balance.Add(amount)); err != nil {
		return nil, fmt.Errorf("credit wallet: %w", err)
	}
	return s.record(ctx, tx, w, amount, false, meta)
}

func (s *Service) History(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListTransactions(ctx, userID, limit)
}

// record writes the ledger row. A credit arrives net of any fees withheld, so
// only a debit subtracts them.
func (s *Service) record(ctx context.Context, tx db.Tx, w *models.Wallet, amount decimal.Decimal, debit bool, meta Meta) (*models.Transaction, error) {
	ref := meta.Reference
	if ref == "" {
		ref = "TXN-" + uuid.NewString()
	}
	fees := meta.PlatformFee.Add(meta.SellerFee)
	net := amount
	if debit && (meta.FeeCurrency == "" || meta.FeeCurrency == w.Currency) {
		net = amount.Sub(fees)
	}
	t := &models.Transaction{
		UserID:                w.UserID,
		WalletID:              w.ID,
		CounterpartyID:        meta.CounterpartyID,
		ListingID:             meta.ListingID,
		Amount:                amount,
		NetAmount:             net,
		PlatformFee:           meta.PlatformFee,
		PlatformFeePercentage: meta.PlatformFeePct,
		SellerFee:             meta.SellerFee,
		SellerFeePercentage:   meta.SellerFeePct,
		TotalFees:             fees,
		Currency:              w.Currency,
		Type:                  meta.Type,
		Status:                models.TxCompleted,
		Reference:             ref,
		ProviderReference:     meta.ProviderReference,
		Description:           meta.Description,
		Metadata:              meta.Metadata,
	}
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}
	s.log.Debug("ledger entry",
		zap.Int64("user_id", w.UserID),
		zap.String("type", string(t.Type)),
		zap.String("reference", ref),
		zap.String("amount", amount.String()),
		zap.String("currency", w.Currency))
	return t, nil
}
