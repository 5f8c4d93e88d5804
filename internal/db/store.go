package db

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/inodinwetrust10/fxsettle/internal/models"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateReference = errors.New("duplicate transaction reference")
	// ErrConflict marks serialization failures and deadlocks. The whole
	// transaction may be retried.
	ErrConflict = errors.New("transaction conflict")
)

// Tx is the set of reads and writes available to services. Methods taking a
// lock flag acquire a row lock that is held until the enclosing transaction ends;
// outside a transaction the flag is ignored.
type Tx interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error

	GetWallet(ctx context.Context, userID int64, currency string, lock bool) (*models.Wallet, error)
	EnsureWallet(ctx context.Context, userID int64, currency string) (*models.Wallet, error)
	UpdateWalletBalance(ctx context.Context, walletID int64, balance decimal.Decimal) error

	InsertTransaction(ctx context.Context, t *models.Transaction) error
	GetTransactionByReference(ctx context.Context, ref string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error)

	InsertListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, id int64, lock bool) (*models.Listing, error)
	UpdateListing(ctx context.Context, l *models.Listing) error
	// BindListingPair sets the pair only when it is still unset and reports
	// whether this call did the binding.
	BindListingPair(ctx context.Context, id int64, from, to string) (bool, error)
	ListActiveListings(ctx context.Context) ([]models.Listing, error)

	InsertOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)

	InsertEarning(ctx context.Context, e *models.Earning) error
	UpdateEarning(ctx context.Context, e *models.Earning) error
	ListEarnings(ctx context.Context, f EarningFilter) ([]models.Earning, error)
	SumEarnings(ctx context.Context, userID int64, currency string, status models.EarningStatus) (decimal.Decimal, error)

	InsertPayout(ctx context.Context, p *models.Payout) error
	GetPayout(ctx context.Context, id int64, lock bool) (*models.Payout, error)
	GetPayoutByOrder(ctx context.Context, orderID int64) (*models.Payout, error)
	UpdatePayout(ctx context.Context, p *models.Payout) error

	InsertPayoutMethod(ctx context.Context, m *models.PayoutMethod) error
	GetPayoutMethod(ctx context.Context, id int64) (*models.PayoutMethod, error)
	UpdatePayoutMethod(ctx context.Context, m *models.PayoutMethod) error
	ClearDefaultPayoutMethods(ctx context.Context, userID, exceptID int64) error
	ListPayoutMethods(ctx context.Context, userID int64, lock bool) ([]models.PayoutMethod, error)

	InsertGoodsListing(ctx context.Context, l *models.GoodsListing) error
	GetGoodsListing(ctx context.Context, id int64, lock bool) (*models.GoodsListing, error)
	UpdateGoodsListing(ctx context.Context, l *models.GoodsListing) error
	InsertGoodsOrder(ctx context.Context, o *models.GoodsOrder) error
	GetGoodsOrder(ctx context.Context, id int64, lock bool) (*models.GoodsOrder, error)
	UpdateGoodsOrder(ctx context.Context, o *models.GoodsOrder) error
	InsertEscrow(ctx context.Context, e *models.Escrow) error
	GetEscrowByOrder(ctx context.Context, orderID int64, lock bool) (*models.Escrow, error)
	UpdateEscrow(ctx context.Context, e *models.Escrow) error
	InsertFee(ctx context.Context, f *models.Fee) error
	UpdateFee(ctx context.Context, f *models.Fee) error
	GetFeeByOrder(ctx context.Context, orderID int64) (*models.Fee, error)
}

type EarningFilter struct {
	UserID   int64
	Currency string
	Status   models.EarningStatus
	PayoutID *int64
	Lock     bool
}

// Store is a Tx bound to the connection pool plus the ability to run a function
// inside a single database transaction. A non-nil error from fn rolls back.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// RunInTx runs fn in a transaction, retrying up to attempts times when the
// database reports a serialization failure or deadlock.
func RunInTx(ctx context.Context, s Store, attempts int, fn func(tx Tx) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = s.WithTx(ctx, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 10 * time.Millisecond):
		}
	}
	return err
}
