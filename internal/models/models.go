package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Decimal places of the money and percentage columns in schema.sql.
const (
	AmountScale  int32 = 8
	PercentScale int32 = 2
)

// FitsScale reports whether d has no significant digits past places.
func FitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingPaused    ListingStatus = "paused"
	ListingCompleted ListingStatus = "completed"
	ListingExpired   ListingStatus = "expired"
)

// Listing is a seller's standing offer to exchange FromCurrency for ToCurrency.
// The pair may be empty until the first order binds it.
type Listing struct {
	ID           int64           `json:"id"`
	SellerID     int64           `json:"seller_id"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Amount       decimal.Decimal `json:"amount"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Fee          decimal.Decimal `json:"fee"`
	Status       ListingStatus   `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (l *Listing) IsActive() bool {
	return l.Status == ListingActive && l.Amount.IsPositive()
}

func (l *Listing) PairBound() bool {
	return l.FromCurrency != "" && l.ToCurrency != ""
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
)

type Order struct {
	ID           int64           `json:"id"`
	BuyerID      int64           `json:"buyer_id"`
	ListingID    int64           `json:"listing_id"`
	Amount       decimal.Decimal `json:"amount"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	FeeAmount    decimal.Decimal `json:"fee_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	NetAmount    decimal.Decimal `json:"net_amount"`
	Status       OrderStatus     `json:"status"`
	Reference    string          `json:"reference"`
	CreatedAt    time.Time       `json:"created_at"`
}

type EarningType string

const (
	EarningExchangeSale     EarningType = "exchange_sale"
	EarningExchangePurchase EarningType = "exchange_purchase"
	EarningReferral         EarningType = "referral"
	EarningBonus            EarningType = "bonus"
)

type EarningStatus string

const (
	EarningAvailable  EarningStatus = "available"
	EarningProcessing EarningStatus = "processing"
	EarningPaid       EarningStatus = "paid"
)

type Earning struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	OrderID   *int64          `json:"order_id,omitempty"`
	PayoutID  *int64          `json:"payout_id,omitempty"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	NetAmount decimal.Decimal `json:"net_amount"`
	Type      EarningType     `json:"type"`
	Status    EarningStatus   `json:"status"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxExchange   TransactionType = "exchange"
	TxPurchase   TransactionType = "purchase"
	TxRelease    TransactionType = "escrow_release"
	TxRefund     TransactionType = "refund"
	TxPayoutFee  TransactionType = "payout_fee"
	TxWithdrawal TransactionType = "withdrawal"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

// Transaction is an append-only ledger row. Reference is unique and doubles as
// the idempotency key for gateway callbacks.
type Transaction struct {
	ID                    int64             `json:"id"`
	UserID                int64             `json:"user_id"`
	WalletID              int64             `json:"wallet_id"`
	CounterpartyID        *int64            `json:"counterparty_id,omitempty"`
	ListingID             *int64            `json:"listing_id,omitempty"`
	Amount                decimal.Decimal   `json:"amount"`
	NetAmount             decimal.Decimal   `json:"net_amount"`
	PlatformFee           decimal.Decimal   `json:"platform_fee"`
	PlatformFeePercentage decimal.Decimal   `json:"platform_fee_percentage"`
	SellerFee             decimal.Decimal   `json:"seller_fee"`
	SellerFeePercentage   decimal.Decimal   `json:"seller_fee_percentage"`
	TotalFees             decimal.Decimal   `json:"total_fees"`
	Currency              string            `json:"currency"`
	Type                  TransactionType   `json:"type"`
	Status                TransactionStatus `json:"status"`
	Reference             string            `json:"reference"`
	ProviderReference     string            `json:"provider_reference,omitempty"`
	Description           string            `json:"description,omitempty"`
	Metadata              map[string]any    `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
}

type Wallet struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

type Escrow struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     EscrowStatus    `json:"status"`
	HeldAt     time.Time       `json:"held_at"`
	ReleasedAt *time.Time      `json:"released_at,omitempty"`
}

type Fee struct {
	ID               int64           `json:"id"`
	OrderID          int64           `json:"order_id"`
	ListingFee       decimal.Decimal `json:"listing_fee"`
	SellerCommission decimal.Decimal `json:"seller_commission"`
	BuyerFee         decimal.Decimal `json:"buyer_fee"`
	PayoutFee        decimal.Decimal `json:"payout_fee"`
}

func (f Fee) TotalFees() decimal.Decimal {
	return f.ListingFee.Add(f.SellerCommission).Add(f.BuyerFee).Add(f.PayoutFee)
}

// MarshalJSON adds total_fees, which is derived and never stored on the struct.
func (f Fee) MarshalJSON() ([]byte, error) {
	type fee Fee
	return json.Marshal(struct {
		fee
		TotalFees decimal.Decimal `json:"total_fees"`
	}{fee(f), f.TotalFees()})
}

type GoodsListingStatus string

const (
	GoodsActive   GoodsListingStatus = "active"
	GoodsSold     GoodsListingStatus = "sold"
	GoodsInactive GoodsListingStatus = "inactive"
)

type GoodsListing struct {
	ID        int64              `json:"id"`
	SellerID  int64              `json:"seller_id"`
	Title     string             `json:"title"`
	Price     decimal.Decimal    `json:"price"`
	Currency  string             `json:"currency"`
	Quantity  int                `json:"quantity"`
	Status    GoodsListingStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}

type GoodsOrderStatus string

const (
	GoodsOrderPending   GoodsOrderStatus = "pending"
	GoodsOrderCompleted GoodsOrderStatus = "completed"
	GoodsOrderRefunded  GoodsOrderStatus = "refunded"
)

type GoodsOrder struct {
	ID        int64            `json:"id"`
	BuyerID   int64            `json:"buyer_id"`
	SellerID  int64            `json:"seller_id"`
	ListingID int64            `json:"listing_id"`
	Quantity  int              `json:"quantity"`
	Price     decimal.Decimal  `json:"price"`
	BuyerFee  decimal.Decimal  `json:"buyer_fee"`
	Currency  string           `json:"currency"`
	Status    GoodsOrderStatus `json:"status"`
	Reference string           `json:"reference"`
	CreatedAt time.Time        `json:"created_at"`
}

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

type Payout struct {
	ID                int64            `json:"id"`
	UserID            int64            `json:"user_id"`
	OrderID           *int64           `json:"order_id,omitempty"`
	PayoutMethodID    *int64           `json:"payout_method_id,omitempty"`
	Amount            decimal.Decimal  `json:"amount"`
	Currency          string           `json:"currency"`
	Status            PayoutStatus     `json:"status"`
	IsCrossBorder     bool             `json:"is_cross_border"`
	ConversionRate    *decimal.Decimal `json:"conversion_rate,omitempty"`
	ConvertedCurrency string           `json:"converted_currency,omitempty"`
	PayoutFee         decimal.Decimal  `json:"payout_fee"`
	LinkedAccount     string           `json:"linked_account"`
	Reference         string           `json:"reference"`
	FailureReason     string           `json:"failure_reason,omitempty"`
	ProcessedAt       *time.Time       `json:"processed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

type PayoutMethod struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	Type      PayoutType    `json:"type"`
	Details   PayoutDetails `json:"details"`
	IsDefault bool          `json:"is_default"`
	Currency  string        `json:"currency"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type ErrResp struct {
	Error string `json:"error"`
}
