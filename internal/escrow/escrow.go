package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/events"
	"github.com/inodinwetrust10/fxsettle/internal/models"
	"github.com/inodinwetrust10/fxsettle/internal/payout"
	"github.com/inodinwetrust10/fxsettle/internal/wallet"
)

var (
	ErrInvalidListing     = errors.New("invalid goods listing")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrListingUnavailable = errors.New("goods listing is not available")
	ErrNotSeller          = errors.New("only the seller may do this")
	ErrOwnListing         = errors.New("cannot buy from own listing")
	ErrNotHeld            = errors.New("escrow is not held")
	ErrNotReleased        = errors.New("escrow has not been released")
	ErrPayoutExists       = errors.New("order already has a payout")
	ErrInvalidPayout      = errors.New("invalid payout request")
)

// InsufficientQuantityError reports a goods order larger than the stock.
type InsufficientQuantityError struct {
	Requested int
	Available int
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity: requested %d, available %d", e.Requested, e.Available)
}

const scale = 8

var hundred = decimal.NewFromInt(100)

// Fees are percentages of the order price.
type Fees struct {
	ListingPct          decimal.Decimal
	SellerCommissionPct decimal.Decimal
	BuyerPct            decimal.Decimal
	PayoutPct           decimal.Decimal
}

type Config struct {
	Fees            Fees
	CrossBorderRate decimal.Decimal
	MaxRetries      int
}

type Engine struct {
	store   db.Store
	wallets *wallet.Service
	events  events.Publisher
	log     *zap.Logger
	cfg     Config
}

func New(store db.Store, wallets *wallet.Service, pub events.Publisher, log *zap.Logger, cfg Config) *Engine {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if !cfg.CrossBorderRate.IsPositive() {
		cfg.CrossBorderRate = decimal.RequireFromString("1.1")
	}
	return &Engine{store: store, wallets: wallets, events: pub, log: log, cfg: cfg}
}

func pct(amount, p decimal.Decimal) decimal.Decimal {
	return amount.Mul(p).Div(hundred).Round(scale)
}

type NewListing struct {
	SellerID int64           `json:"user_id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Quantity int             `json:"quantity"`
}

func (e *Engine) CreateListing(ctx context.Context, n NewListing) (*models.GoodsListing, error) {
	title := strings.TrimSpace(n.Title)
	switch {
	case title == "" || len(title) > 255:
		return nil, fmt.Errorf("%w: title is required", ErrInvalidListing)
	case !n.Price.IsPositive():
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidListing)
	case !models.FitsScale(n.Price, models.AmountScale):
		return nil, fmt.Errorf("%w: price allows at most 8 decimal places", ErrInvalidListing)
	case n.Quantity <= 0:
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidListing)
	}
	cur, err := models.NormalizeCurrency(n.Currency)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.GetUser(ctx, n.SellerID); err != nil {
		return nil, fmt.Errorf("seller %d: %w", n.SellerID, err)
	}
	l := &models.GoodsListing{
		SellerID: n.SellerID,
		Title:    title,
		Price:    n.Price,
		Currency: cur,
		Quantity: n.Quantity,
		Status:   models.GoodsActive,
	}
	if err := e.store.InsertGoodsListing(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

type PlaceOrderRequest struct {
	BuyerID   int64 `json:"user_id"`
	ListingID int64 `json:"listing_id"`
	Quantity  int   `json:"quantity"`
}

// PlaceOrder debits the buyer for price plus buyer fee and holds the price in
// escrow until the seller completes or refunds the order.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.GoodsOrder, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	var out *models.GoodsOrder
	err := db.RunInTx(ctx, e.store, e.cfg.MaxRetries, func(tx db.Tx) error {
		l, err := tx.GetGoodsListing(ctx, req.ListingID, true)
		if err != nil {
			return fmt.Errorf("goods listing %d: %w", req.ListingID, err)
		}
		if l.Status != models.GoodsActive || l.Quantity <= 0 {
			return ErrListingUnavailable
		}
		if l.SellerID == req.BuyerID {
			return ErrOwnListing
		}
		if req.Quantity > l.Quantity {
			return &InsufficientQuantityError{Requested: req.Quantity, Available: l.Quantity}
		}

		price := l.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))
		buyerFee := pct(price, e.cfg.Fees.BuyerPct)
		o := &models.GoodsOrder{
			BuyerID:   req.BuyerID,
			SellerID:  l.SellerID,
			ListingID: l.ID,
			Quantity:  req.Quantity,
			Price:     price,
			BuyerFee:  buyerFee,
			Currency:  l.Currency,
			Status:    models.GoodsOrderPending,
			Reference: "GORD-" + uuid.NewString(),
		}
		if err := tx.InsertGoodsOrder(ctx, o); err != nil {
			return fmt.Errorf("insert goods order: %w", err)
		}

		sellerID, listingID := l.SellerID, l.ID
		if _, err := e.wallets.Debit(ctx, tx, req.BuyerID, l.Currency, price.Add(buyerFee), wallet.Meta{
			Type:           models.TxPurchase,
			Reference:      o.Reference,
			CounterpartyID: &sellerID,
			ListingID:      &listingID,
			PlatformFee:    buyerFee,
			PlatformFeePct: e.cfg.Fees.BuyerPct,
			Description:    "Purchase of " + l.Title,
			Metadata:       map[string]any{"goods_order_id": o.ID},
		}); err != nil {
			return err
		}

		if err := tx.InsertEscrow(ctx, &models.Escrow{
			OrderID: o.ID,
			Amount:  price,
			Status:  models.EscrowHeld,
			HeldAt:  time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("hold escrow: %w", err)
		}
		if err := tx.InsertFee(ctx, &models.Fee{
			OrderID:          o.ID,
			ListingFee:       pct(price, e.cfg.Fees.ListingPct),
			SellerCommission: pct(price, e.cfg.Fees.SellerCommissionPct),
			BuyerFee:         buyerFee,
			PayoutFee:        decimal.Zero,
		}); err != nil {
			return fmt.Errorf("record fees: %w", err)
		}

		l.Quantity -= req.Quantity
		if l.Quantity == 0 {
			l.Status = models.GoodsSold
		}
		if err := tx.UpdateGoodsListing(ctx, l); err != nil {
			return fmt.Errorf("update stock: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("goods order placed",
		zap.Int64("order_id", out.ID),
		zap.Int64("buyer_id", out.BuyerID),
		zap.String("price", out.Price.String()),
		zap.String("currency", out.Currency))
	e.publish(ctx, events.GoodsOrderPlaced, out.Reference, out)
	return out, nil
}

// CompleteOrder releases the escrow to the seller, less the seller commission.
func (e *Engine) CompleteOrder(ctx context.Context, orderID, sellerID int64) (*models.Escrow, error) {
	return e.resolve(ctx, orderID, sellerID, models.EscrowReleased)
}

// RefundOrder returns the price and the buyer fee to the buyer.
func (e *Engine) RefundOrder(ctx context.Context, orderID, sellerID int64) (*models.Escrow, error) {
	return e.resolve(ctx, orderID, sellerID, models.EscrowRefunded)
}

func (e *Engine) resolve(ctx context.Context, orderID, sellerID int64, to models.EscrowStatus) (*models.Escrow, error) {
	var (
		out *models.Escrow
		ref string
	)
	err := db.RunInTx(ctx, e.store, e.cfg.MaxRetries, func(tx db.Tx) error {
		o, err := tx.GetGoodsOrder(ctx, orderID, true)
		if err != nil {
			return fmt.Errorf("goods order %d: %w", orderID, err)
		}
		if o.SellerID != sellerID {
			return ErrNotSeller
		}
		esc, err := tx.GetEscrowByOrder(ctx, orderID, true)
		if err != nil {
			return fmt.Errorf("escrow for order %d: %w", orderID, err)
		}
		if esc.Status != models.EscrowHeld {
			return ErrNotHeld
		}
		fee, err := tx.GetFeeByOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("fees for order %d: %w", orderID, err)
		}

		now := time.Now().UTC()
		esc.Status = to
		esc.ReleasedAt = &now
		if err := tx.UpdateEscrow(ctx, esc); err != nil {
			return fmt.Errorf("update escrow: %w", err)
		}

		switch to {
		case models.EscrowReleased:
			o.Status = models.GoodsOrderCompleted
			proceeds := esc.Amount.Sub(fee.SellerCommission)
			if proceeds.IsPositive() {
				if _, err := e.wallets.Credit(ctx, tx, o.SellerID, o.Currency, proceeds, wallet.Meta{
					Type:           models.TxRelease,
					Reference:      o.Reference + "-REL",
					CounterpartyID: &o.BuyerID,
					SellerFee:      fee.SellerCommission,
					SellerFeePct:   e.cfg.Fees.SellerCommissionPct,
					Description:    "Escrow release",
					Metadata:       map[string]any{"goods_order_id": o.ID},
				}); err != nil {
					return err
				}
			}
		case models.EscrowRefunded:
			o.Status = models.GoodsOrderRefunded
			if _, err := e.wallets.Credit(ctx, tx, o.BuyerID, o.Currency, o.Price.Add(o.BuyerFee), wallet.Meta{
				Type:           models.TxRefund,
				Reference:      o.Reference + "-REF",
				CounterpartyID: &o.SellerID,
				Description:    "Escrow refund",
				Metadata:       map[string]any{"goods_order_id": o.ID},
			}); err != nil {
				return err
			}
			if err := restock(ctx, tx, o); err != nil {
				return err
			}
		}
		if err := tx.UpdateGoodsOrder(ctx, o); err != nil {
			return fmt.Errorf("update goods order: %w", err)
		}
		out, ref = esc, o.Reference
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("escrow resolved", zap.Int64("order_id", orderID), zap.String("status", string(to)))
	typ := events.EscrowReleased
	if to == models.EscrowRefunded {
		typ = events.EscrowRefunded
	}
	e.publish(ctx, typ, ref, out)
	return out, nil
}

func restock(ctx context.Context, tx db.Tx, o *models.GoodsOrder) error {
	l, err := tx.GetGoodsListing(ctx, o.ListingID, true)
	if err != nil {
		return fmt.Errorf("goods listing %d: %w", o.ListingID, err)
	}
	l.Quantity += o.Quantity
	if l.Status == models.GoodsSold {
		l.Status = models.GoodsActive
	}
	if err := tx.UpdateGoodsListing(ctx, l); err != nil {
		return fmt.Errorf("restock: %w", err)
	}
	return nil
}

type PayoutRequest struct {
	OrderID           int64  `json:"-"`
	UserID            int64  `json:"user_id"`
	LinkedAccount     string `json:"linked_account"`
	CrossBorder       bool   `json:"is_cross_border"`
	ConvertedCurrency string `json:"converted_currency,omitempty"`
}

// RequestPayout pays the seller's proceeds from a released order out to a
// linked account. The payout fee is a share of the escrow amount; fee and
// remainder are both debited from the seller's wallet now, and the remainder
// is converted when the payout crosses a border.
func (e *Engine) RequestPayout(ctx context.Context, req PayoutRequest) (*models.Payout, error) {
	account := strings.TrimSpace(req.LinkedAccount)
	if account == "" {
		return nil, fmt.Errorf("%w: linked_account is required", ErrInvalidPayout)
	}
	var target string
	if req.CrossBorder {
		cur, err := models.NormalizeCurrency(req.ConvertedCurrency)
		if err != nil {
			return nil, err
		}
		target = cur
	}

	var out *models.Payout
	err := db.RunInTx(ctx, e.store, e.cfg.MaxRetries, func(tx db.Tx) error {
		o, err := tx.GetGoodsOrder(ctx, req.OrderID, true)
		if err != nil {
			return fmt.Errorf("goods order %d: %w", req.OrderID, err)
		}
		if o.SellerID != req.UserID {
			return ErrNotSeller
		}
		esc, err := tx.GetEscrowByOrder(ctx, o.ID, true)
		if err != nil {
			return fmt.Errorf("escrow for order %d: %w", o.ID, err)
		}
		if esc.Status != models.EscrowReleased {
			return ErrNotReleased
		}
		if _, err := tx.GetPayoutByOrder(ctx, o.ID); err == nil {
			return ErrPayoutExists
		} else if !errors.Is(err, db.ErrNotFound) {
			return err
		}
		fee, err := tx.GetFeeByOrder(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("fees for order %d: %w", o.ID, err)
		}

		payoutFee := pct(esc.Amount, e.cfg.Fees.PayoutPct)
		remainder := esc.Amount.Sub(fee.SellerCommission).Sub(payoutFee)
		if !remainder.IsPositive() {
			return fmt.Errorf("%w: nothing left to pay out", ErrInvalidPayout)
		}

		orderID := o.ID
		p := &models.Payout{
			UserID:        o.SellerID,
			OrderID:       &orderID,
			Amount:        remainder,
			Currency:      o.Currency,
			Status:        models.PayoutPending,
			IsCrossBorder: req.CrossBorder,
			PayoutFee:     payoutFee,
			LinkedAccount: account,
			Reference:     "PAY-" + uuid.NewString(),
		}
		if req.CrossBorder {
			rate := e.cfg.CrossBorderRate
			p.ConversionRate = &rate
			p.ConvertedCurrency = target
			p.Amount = remainder.Mul(rate).Round(scale)
			p.Currency = target
		}
		if err := tx.InsertPayout(ctx, p); err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}

		meta := map[string]any{"payout_id": p.ID, "goods_order_id": o.ID}
		if payoutFee.IsPositive() {
			if _, err := e.wallets.Debit(ctx, tx, o.SellerID, o.Currency, payoutFee, wallet.Meta{
				Type:        models.TxPayoutFee,
				Reference:   payout.FeeReference(p.Reference),
				Description: "Payout processing fee",
				Metadata:    meta,
			}); err != nil {
				return err
			}
		}
		if _, err := e.wallets.Debit(ctx, tx, o.SellerID, o.Currency, remainder, wallet.Meta{
			Type:        models.TxWithdrawal,
			Reference:   payout.WithdrawalReference(p.Reference),
			Description: "Payout to " + account,
			Metadata:    meta,
		}); err != nil {
			return err
		}

		fee.PayoutFee = payoutFee
		if err := tx.UpdateFee(ctx, fee); err != nil {
			return fmt.Errorf("record payout fee: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("order payout requested",
		zap.Int64("payout_id", out.ID),
		zap.Int64("order_id", req.OrderID),
		zap.String("amount", out.Amount.String()),
		zap.String("currency", out.Currency),
		zap.Bool("cross_border", out.IsCrossBorder))
	e.publish(ctx, events.PayoutRequested, out.Reference, out)
	return out, nil
}

func (e *Engine) Order(ctx context.Context, id int64) (*models.GoodsOrder, error) {
	return e.store.GetGoodsOrder(ctx, id, false)
}

func (e *Engine) Fees(ctx context.Context, orderID int64) (*models.Fee, error) {
	return e.store.GetFeeByOrder(ctx, orderID)
}

func (e *Engine) publish(ctx context.Context, typ, key string, payload any) {
	if err := e.events.Publish(ctx, events.New(typ, key, payload)); err != nil {
		e.log.Warn("publish event", zap.String("type", typ), zap.String("key", key), zap.Error(err))
	}
}
