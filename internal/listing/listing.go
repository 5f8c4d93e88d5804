package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/models"
)

var (
	ErrInvalidListing    = errors.New("invalid listing")
	ErrCurrencyMismatch  = errors.New("currency pair does not match listing")
	ErrNotOwner          = errors.New("listing belongs to another seller")
	ErrInvalidTransition = errors.New("listing status does not allow this change")
)

var hundred = decimal.NewFromInt(100)

// InsufficientListingAmountError is returned by Reserve when the listing has
// less inventory than requested.
type InsufficientListingAmountError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientListingAmountError) Error() string {
	return fmt.Sprintf("insufficient listing amount: requested %s, available %s", e.Requested, e.Available)
}

type NewListing struct {
	SellerID  int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	FeePct    decimal.Decimal `json:"fee"`
	Rate      decimal.Decimal `json:"exchange_rate"`
	MinAmount decimal.Decimal `json:"min_amount"`
	MaxAmount decimal.Decimal `json:"max_amount"`
	From      string          `json:"from_currency,omitempty"`
	To        string          `json:"to_currency,omitempty"`
}

func (n NewListing) validate() error {
	switch {
	case n.SellerID == 0:
		return fmt.Errorf("%w: seller_id is required", ErrInvalidListing)
	case !n.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidListing)
	case !n.Rate.IsPositive():
		return fmt.Errorf("%w: exchange_rate must be positive", ErrInvalidListing)
	case n.FeePct.IsNegative() || n.FeePct.GreaterThanOrEqual(hundred):
		return fmt.Errorf("%w: fee must be in [0, 100)", ErrInvalidListing)
	case n.MinAmount.IsNegative() || n.MaxAmount.IsNegative():
		return fmt.Errorf("%w: bounds must not be negative", ErrInvalidListing)
	case n.MaxAmount.IsPositive() && n.MinAmount.GreaterThan(n.MaxAmount):
		return fmt.Errorf("%w: min_amount exceeds max_amount", ErrInvalidListing)
	case !models.FitsScale(n.Amount, models.AmountScale),
		!models.FitsScale(n.Rate, models.AmountScale),
		!models.FitsScale(n.MinAmount, models.AmountScale),
		!models.FitsScale(n.MaxAmount, models.AmountScale):
		return fmt.Errorf("%w: amounts and exchange_rate allow at most 8 decimal places", ErrInvalidListing)
	case !models.FitsScale(n.FeePct, models.PercentScale):
		return fmt.Errorf("%w: fee allows at most 2 decimal places", ErrInvalidListing)
	case (n.From == "") != (n.To == ""):
		return fmt.Errorf("%w: currency pair must be given in full or not at all", ErrInvalidListing)
	}
	return nil
}

type Registry struct {
	store db.Store
	log   *zap.Logger
}

func New(store db.Store, log *zap.Logger) *Registry {
	return &Registry{store: store, log: log}
}

func (r *Registry) Create(ctx context.Context, n NewListing) (*models.Listing, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	l := &models.Listing{
		SellerID:     n.SellerID,
		Amount:       n.Amount,
		MinAmount:    n.MinAmount,
		MaxAmount:    n.MaxAmount,
		ExchangeRate: n.Rate,
		Fee:          n.FeePct,
		Status:       models.ListingActive,
	}
	if n.From != "" {
		from, err := models.NormalizeCurrency(n.From)
		if err != nil {
			return nil, fmt.Errorf("%w: from_currency: %v", ErrInvalidListing, err)
		}
		to, err := models.NormalizeCurrency(n.To)
		if err != nil {
			return nil, fmt.Errorf("%w: to_currency: %v", ErrInvalidListing, err)
		}
		if from == to {
			return nil, fmt.Errorf("%w: currencies must differ", ErrInvalidListing)
		}
		l.FromCurrency, l.ToCurrency = from, to
	}
	if _, err := r.store.GetUser(ctx, n.SellerID); err != nil {
		return nil, fmt.Errorf("seller: %w", err)
	}
	if err := r.store.InsertListing(ctx, l); err != nil {
		return nil, err
	}
	r.log.Info("listing created",
		zap.Int64("listing_id", l.ID),
		zap.Int64("seller_id", l.SellerID),
		zap.String("amount", l.Amount.String()))
	return l, nil
}

func (r *Registry) Get(ctx context.Context, id int64) (*models.Listing, error) {
	return r.store.GetListing(ctx, id, false)
}

func (r *Registry) ListActive(ctx context.Context) ([]models.Listing, error) {
	return r.store.ListActiveListings(ctx)
}

// BindCurrencyPair fixes the listing's pair to (from, to) if it is still unset
// and returns the listing with its bound pair. Once bound, any other pair is
// rejected with ErrCurrencyMismatch.
func (r *Registry) BindCurrencyPair(ctx context.Context, id int64, from, to string) (*models.Listing, error) {
	l, err := r.store.GetListing(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !l.PairBound() {
		bound, err := r.store.BindListingPair(ctx, id, from, to)
		if err != nil {
			return nil, err
		}
		if bound {
			r.log.Info("listing pair bound",
				zap.Int64("listing_id", id),
				zap.String("from", from),
				zap.String("to", to))
		}
		// Another order may have bound it first.
		if l, err = r.store.GetListing(ctx, id, false); err != nil {
			return nil, err
		}
	}
	if l.FromCurrency != from || l.ToCurrency != to {
		return l, ErrCurrencyMismatch
	}
	return l, nil
}

// Reserve decrements the inventory of l, which must have been loaded with a
// row lock inside tx. The listing completes when its inventory reaches zero.
func (r *Registry) Reserve(ctx context.Context, tx db.Tx, l *models.Listing, amount decimal.Decimal) error {
	if amount.GreaterThan(l.Amount) {
		return &InsufficientListingAmountError{Requested: amount, Available: l.Amount}
	}
	l.Amount = l.Amount.Sub(amount)
	if !l.Amount.IsPositive() {
		l.Status = models.ListingCompleted
	}
	if err := tx.UpdateListing(ctx, l); err != nil {
		return fmt.Errorf("reserve listing: %w", err)
	}
	return nil
}

func (r *Registry) Pause(ctx context.Context, id, sellerID int64) (*models.Listing, error) {
	return r.transition(ctx, id, sellerID, func(l *models.Listing) error {
		if l.Status != models.ListingActive {
			return ErrInvalidTransition
		}
		l.Status = models.ListingPaused
		return nil
	})
}

func (r *Registry) Resume(ctx context.Context, id, sellerID int64) (*models.Listing, error) {
	return r.transition(ctx, id, sellerID, func(l *models.Listing) error {
		if l.Status != models.ListingPaused {
			return ErrInvalidTransition
		}
		l.Status = models.ListingActive
		return nil
	})
}

// Deactivate expires the listing. Listings are never deleted.
func (r *Registry) Deactivate(ctx context.Context, id, sellerID int64) (*models.Listing, error) {
	return r.transition(ctx, id, sellerID, func(l *models.Listing) error {
		if l.Status != models.ListingActive && l.Status != models.ListingPaused {
			return ErrInvalidTransition
		}
		l.Status = models.ListingExpired
		return nil
	})
}

func (r *Registry) transition(ctx context.Context, id, sellerID int64, apply func(l *models.Listing) error) (*models.Listing, error) {
	var out *models.Listing
	err := r.store.WithTx(ctx, func(tx db.Tx) error {
		l, err := tx.GetListing(ctx, id, true)
		if err != nil {
			return err
		}
		if l.SellerID != sellerID {
			return ErrNotOwner
		}
		from := l.Status
		if err := apply(l); err != nil {
			return err
		}
		if err := tx.UpdateListing(ctx, l); err != nil {
			return err
		}
		r.log.Info("listing status changed",
			zap.Int64("listing_id", l.ID),
			zap.String("from", string(from)),
			zap.String("to", string(l.Status)))
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
