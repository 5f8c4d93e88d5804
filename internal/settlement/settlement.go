package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/events"
	"github.com/inodinwetrust10/fxsettle/internal/listing"
	"github.com/inodinwetrust10/fxsettle/internal/models"
	"github.com/inodinwetrust10/fxsettle/internal/wallet"
)

var (
	ErrListingUnavailable = errors.New("listing is not available")
	// ErrSettlementFailed hides the cause, which is logged.
	ErrSettlementFailed = errors.New("settlement failed")
)

// Amounts are kept at the precision of the ledger columns.
const scale = 8

var hundred = decimal.NewFromInt(100)

type Kind string

const (
	KindInvalidRequest          Kind = "invalid_request"
	KindCurrencyMismatch        Kind = "currency_mismatch"
	KindAccountCurrencyMismatch Kind = "account_currency_mismatch"
	KindAmountOutOfRange        Kind = "amount_out_of_range"
)

type Bound string

const (
	BoundMin       Bound = "min"
	BoundMax       Bound = "max"
	BoundAvailable Bound = "available"
)

// ValidationError is returned before any state is touched. The caller may
// retry after correcting the request.
type ValidationError struct {
	Kind    Kind
	Bound   Bound
	Limit   decimal.Decimal
	Message string
}

func (e *ValidationError) Error() string {
	if e.Bound != "" {
		return fmt.Sprintf("%s: %s (%s %s)", e.Kind, e.Message, e.Bound, e.Limit)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

type Request struct {
	BuyerID      int64           `json:"user_id"`
	ListingID    int64           `json:"listing_id"`
	Amount       decimal.Decimal `json:"amount"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
}

func (r *Request) normalize() error {
	if r.BuyerID == 0 || r.ListingID == 0 {
		return &ValidationError{Kind: KindInvalidRequest, Message: "user_id and listing_id are required"}
	}
	if !r.Amount.IsPositive() {
		return &ValidationError{Kind: KindInvalidRequest, Message: "amount must be positive"}
	}
	if !models.FitsScale(r.Amount, models.AmountScale) {
		return &ValidationError{Kind: KindInvalidRequest, Message: "amount allows at most 8 decimal places"}
	}
	from, err := models.NormalizeCurrency(r.FromCurrency)
	if err != nil {
		return &ValidationError{Kind: KindInvalidRequest, Message: "from_currency is not a valid currency code"}
	}
	to, err := models.NormalizeCurrency(r.ToCurrency)
	if err != nil {
		return &ValidationError{Kind: KindInvalidRequest, Message: "to_currency is not a valid currency code"}
	}
	if from == to {
		return &ValidationError{Kind: KindInvalidRequest, Message: "currencies must differ"}
	}
	r.FromCurrency, r.ToCurrency = from, to
	return nil
}

type Engine struct {
	store      db.Store
	wallets    *wallet.Service
	listings   *listing.Registry
	events     events.Publisher
	log        *zap.Logger
	maxRetries int
}

func New(store db.Store, wallets *wallet.Service, listings *listing.Registry, pub events.Publisher, log *zap.Logger, maxRetries int) *Engine {
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &Engine{
		store:      store,
		wallets:    wallets,
		listings:   listings,
		events:     pub,
		log:        log,
		maxRetries: maxRetries,
	}
}

// Settle validates req against the listing and the buyer's wallet, then writes
// the order, the debit, both earnings and the listing decrement in a single
// transaction.
func (e *Engine) Settle(ctx context.Context, req Request) (*models.Order, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	l, err := e.listings.BindCurrencyPair(ctx, req.ListingID, req.FromCurrency, req.ToCurrency)
	switch {
	case errors.Is(err, listing.ErrCurrencyMismatch):
		return nil, &ValidationError{
			Kind:    KindCurrencyMismatch,
			Message: fmt.Sprintf("listing exchanges %s to %s", l.FromCurrency, l.ToCurrency),
		}
	case errors.Is(err, db.ErrNotFound):
		return nil, fmt.Errorf("listing %d: %w", req.ListingID, err)
	case err != nil:
		return nil, e.fail(req, err)
	}
	if l.SellerID == req.BuyerID {
		return nil, &ValidationError{Kind: KindInvalidRequest, Message: "cannot settle against own listing"}
	}

	cur, err := e.wallets.SettlementCurrency(ctx, req.BuyerID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("buyer %d: %w", req.BuyerID, err)
	}
	if err != nil {
		return nil, e.fail(req, err)
	}
	if cur != req.ToCurrency {
		return nil, &ValidationError{
			Kind:    KindAccountCurrencyMismatch,
			Message: fmt.Sprintf("account settles in %s", cur),
		}
	}

	if !l.IsActive() {
		return nil, ErrListingUnavailable
	}
	if err := checkRange(l, req.Amount); err != nil {
		return nil, err
	}

	bal, err := e.wallets.CheckBalance(ctx, req.BuyerID, req.FromCurrency)
	if err != nil {
		return nil, e.fail(req, err)
	}
	if bal.LessThan(req.Amount) {
		return nil, &wallet.InsufficientBalanceError{
			Currency:  req.FromCurrency,
			Required:  req.Amount,
			Available: bal,
			Shortfall: req.Amount.Sub(bal),
		}
	}

	var order *models.Order
	err = db.RunInTx(ctx, e.store, e.maxRetries, func(tx db.Tx) error {
		o, err := e.execute(ctx, tx, req)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, e.classify(req, err)
	}

	e.log.Info("order settled",
		zap.Int64("order_id", order.ID),
		zap.String("reference", order.Reference),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int64("listing_id", order.ListingID),
		zap.String("amount", order.Amount.String()),
		zap.String("net_amount", order.NetAmount.String()))
	if err := e.events.Publish(ctx, events.New(events.OrderSettled, order.Reference, order)); err != nil {
		e.log.Warn("publish order.settled", zap.String("reference", order.Reference), zap.Error(err))
	}
	return order, nil
}

func (e *Engine) execute(ctx context.Context, tx db.Tx, req Request) (*models.Order, error) {
	l, err := tx.GetListing(ctx, req.ListingID, true)
	if err != nil {
		return nil, fmt.Errorf("lock listing: %w", err)
	}
	// State may have moved since validation.
	if !l.IsActive() {
		return nil, ErrListingUnavailable
	}
	if err := checkRange(l, req.Amount); err != nil {
		return nil, err
	}

	exchanged := req.Amount.Mul(l.ExchangeRate).Round(scale)
	fee := exchanged.Mul(l.Fee).Div(hundred).Round(scale)
	net := exchanged.Sub(fee)

	o := &models.Order{
		BuyerID:      req.BuyerID,
		ListingID:    l.ID,
		Amount:       req.Amount,
		FromCurrency: req.FromCurrency,
		ToCurrency:   req.ToCurrency,
		ExchangeRate: l.ExchangeRate,
		FeeAmount:    fee,
		TotalAmount:  exchanged,
		NetAmount:    net,
		Status:       models.OrderCompleted,
		Reference:    "ORD-" + uuid.NewString(),
	}
	if err := tx.InsertOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	sellerID, listingID := l.SellerID, l.ID
	_, err = e.wallets.Debit(ctx, tx, req.BuyerID, req.FromCurrency, req.Amount, wallet.Meta{
		Type:           models.TxExchange,
		Reference:      o.Reference,
		CounterpartyID: &sellerID,
		ListingID:      &listingID,
		PlatformFee:    fee,
		PlatformFeePct: l.Fee,
		FeeCurrency:    req.ToCurrency,
		Description:    fmt.Sprintf("Exchange %s %s to %s", req.Amount, req.FromCurrency, req.ToCurrency),
		Metadata: map[string]any{
			"order_id":      o.ID,
			"exchange_rate": l.ExchangeRate.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	orderID := o.ID
	sale := &models.Earning{
		UserID:    l.SellerID,
		OrderID:   &orderID,
		Currency:  req.ToCurrency,
		Amount:    net,
		Fee:       fee,
		NetAmount: net,
		Type:      models.EarningExchangeSale,
		Status:    models.EarningAvailable,
		Metadata:  map[string]any{"order_reference": o.Reference, "gross": exchanged.String()},
	}
	if err := tx.InsertEarning(ctx, sale); err != nil {
		return nil, fmt.Errorf("insert seller earning: %w", err)
	}
	purchase := &models.Earning{
		UserID:    req.BuyerID,
		OrderID:   &orderID,
		Currency:  req.FromCurrency,
		Amount:    req.Amount,
		Fee:       decimal.Zero,
		NetAmount: req.Amount,
		Type:      models.EarningExchangePurchase,
		Status:    models.EarningAvailable,
		Metadata:  map[string]any{"order_reference": o.Reference},
	}
	if err := tx.InsertEarning(ctx, purchase); err != nil {
		return nil, fmt.Errorf("insert buyer earning: %w", err)
	}

	if err := e.listings.Reserve(ctx, tx, l, req.Amount); err != nil {
		return nil, err
	}
	return o, nil
}

func checkRange(l *models.Listing, amount decimal.Decimal) error {
	switch {
	case amount.LessThan(l.MinAmount):
		return &ValidationError{Kind: KindAmountOutOfRange, Bound: BoundMin, Limit: l.MinAmount, Message: "amount below listing minimum"}
	case l.MaxAmount.IsPositive() && amount.GreaterThan(l.MaxAmount):
		return &ValidationError{Kind: KindAmountOutOfRange, Bound: BoundMax, Limit: l.MaxAmount, Message: "amount above listing maximum"}
	case amount.GreaterThan(l.Amount):
		return &ValidationError{Kind: KindAmountOutOfRange, Bound: BoundAvailable, Limit: l.Amount, Message: "amount exceeds listing inventory"}
	}
	return nil
}

// classify passes typed business errors through and collapses everything
// else into ErrSettlementFailed.
func (e *Engine) classify(req Request, err error) error {
	var (
		ve *ValidationError
		ib *wallet.InsufficientBalanceError
		il *listing.InsufficientListingAmountError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ib), errors.Is(err, ErrListingUnavailable):
		return err
	case errors.As(err, &il):
		return &ValidationError{Kind: KindAmountOutOfRange, Bound: BoundAvailable, Limit: il.Available, Message: "amount exceeds listing inventory"}
	}
	return e.fail(req, err)
}

func (e *Engine) fail(req Request, err error) error {
	e.log.Error("settlement failed",
		zap.Int64("buyer_id", req.BuyerID),
		zap.Int64("listing_id", req.ListingID),
		zap.String("amount", req.Amount.String()),
		zap.Error(err))
	return ErrSettlementFailed
}

func (e *Engine) Order(ctx context.Context, id int64) (*models.Order, error) {
	return e.store.GetOrder(ctx, id)
}
