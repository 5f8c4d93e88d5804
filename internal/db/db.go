package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inodinwetrust10/fxsettle/internal/models"
)

//go:embed schema.sql
var schema string

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// queries implements Tx over either the pool or an open pgx.Tx.
type queries struct {
	q querier
}

// PGStore is the Postgres implementation of Store.
type PGStore struct {
	queries
	Pool *pgxpool.Pool
	log  *zap.Logger
}

func NewStore(p *pgxpool.Pool, log *zap.Logger) *PGStore {
	return &PGStore{queries: queries{q: p}, Pool: p, log: log}
}

// Connect builds a pool from dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PGStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrap("begin tx", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.log.Warn("rollback error", zap.Error(err))
		}
	}()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap("commit", err)
	}
	return nil
}

func wrap(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%s: %w: %s", op, ErrConflict, pgErr.Message)
		case "23505":
			switch pgErr.ConstraintName {
			case "transactions_reference_key":
				return ErrDuplicateReference
			case "payout_methods_one_default":
				return fmt.Errorf("%s: %w: %s", op, ErrConflict, pgErr.Message)
			}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func lockClause(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// users and wallets

func (s *queries) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.q.QueryRow(ctx, `SELECT id, name, currency, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Currency, &u.CreatedAt)
	if err != nil {
		return nil, wrap("get user", err)
	}
	return &u, nil
}

func (s *queries) CreateUser(ctx context.Context, u *models.User) error {
	err := s.q.QueryRow(ctx, `INSERT INTO users (name, currency) VALUES ($1, $2) RETURNING id, created_at`,
		u.Name, u.Currency).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return wrap("create user", err)
	}
	return nil
}

func (s *queries) GetWallet(ctx context.Context, userID int64, currency string, lock bool) (*models.Wallet, error) {
	var w models.Wallet
	err := s.q.QueryRow(ctx, `
		SELECT id, user_id, currency, balance, created_at
		FROM wallets WHERE user_id = $1 AND currency = $2`+lockClause(lock), userID, currency,
	).Scan(&w.ID, &w.UserID, &w.Currency, &w.Balance, &w.CreatedAt)
	if err != nil {
		return nil, wrap("get wallet", err)
	}
	return &w, nil
}

func (s *queries) EnsureWallet(ctx context.Context, userID int64, currency string) (*models.Wallet, error) {
	_, err := s.q.Exec(ctx, `
		INSERT INTO wallets (user_id, currency, balance) VALUES ($1, $2, 0)
		ON CONFLICT (user_id, currency) DO NOTHING`, userID, currency)
	if err != nil {
		return nil, wrap("ensure wallet", err)
	}
	return s.GetWallet(ctx, userID, currency, true)
}

func (s *queries) UpdateWalletBalance(ctx context.Context, walletID int64, balance decimal.Decimal) error {
	if _, err := s.q.Exec(ctx, `UPDATE wallets SET balance = $1 WHERE id = $2`, balance, walletID); err != nil {
		return wrap("update wallet", err)
	}
	return nil
}

// ledger

const txColumns = `id, user_id, wallet_id, counterparty_id, listing_id, amount, net_amount,
	platform_fee, platform_fee_percentage, seller_fee, seller_fee_percentage, total_fees,
	currency, type, status, reference, provider_reference, description, metadata, created_at`

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.WalletID, &t.CounterpartyID, &t.ListingID, &t.Amount, &t.NetAmount,
		&t.PlatformFee, &t.PlatformFeePercentage, &t.SellerFee, &t.SellerFeePercentage, &t.TotalFees,
		&t.Currency, &t.Type, &t.Status, &t.Reference, &t.ProviderReference, &t.Description, &t.Metadata, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *queries) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO transactions (user_id, wallet_id, counterparty_id, listing_id, amount, net_amount,
			platform_fee, platform_fee_percentage, seller_fee, seller_fee_percentage, total_fees,
			currency, type, status, reference, provider_reference, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at`,
		t.UserID, t.WalletID, t.CounterpartyID, t.ListingID, t.Amount, t.NetAmount,
		t.PlatformFee, t.PlatformFeePercentage, t.SellerFee, t.SellerFeePercentage, t.TotalFees,
		t.Currency, t.Type, t.Status, t.Reference, t.ProviderReference, t.Description, t.Metadata,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return wrap("insert transaction", err)
	}
	return nil
}

func (s *queries) GetTransactionByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE reference = $1`, ref))
	if err != nil {
		return nil, wrap("get transaction", err)
	}
	return t, nil
}

func (s *queries) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	rows, err := s.q.Query(ctx, `SELECT `+txColumns+` FROM transactions
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, wrap("list transactions", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, wrap("scan transaction", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// listings

const listingColumns = `id, seller_id, from_currency, to_currency, amount, min_amount, max_amount,
	exchange_rate, fee, status, created_at, updated_at`

func scanListing(row scanner) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.FromCurrency, &l.ToCurrency, &l.Amount, &l.MinAmount, &l.MaxAmount,
		&l.ExchangeRate, &l.Fee, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *queries) InsertListing(ctx context.Context, l *models.Listing) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO listings (seller_id, from_currency, to_currency, amount, min_amount, max_amount, exchange_rate, fee, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		l.SellerID, l.FromCurrency, l.ToCurrency, l.Amount, l.MinAmount, l.MaxAmount, l.ExchangeRate, l.Fee, l.Status,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return wrap("insert listing", err)
	}
	return nil
}

func (s *queries) GetListing(ctx context.Context, id int64, lock bool) (*models.Listing, error) {
	l, err := scanListing(s.q.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`+lockClause(lock), id))
	if err != nil {
		return nil, wrap("get listing", err)
	}
	return l, nil
}

func (s *queries) UpdateListing(ctx context.Context, l *models.Listing) error {
	err := s.q.QueryRow(ctx, `
		UPDATE listings SET amount = $1, status = $2, min_amount = $3, max_amount = $4, updated_at = NOW()
		WHERE id = $5 RETURNING updated_at`,
		l.Amount, l.Status, l.MinAmount, l.MaxAmount, l.ID,
	).Scan(&l.UpdatedAt)
	if err != nil {
		return wrap("update listing", err)
	}
	return nil
}

func (s *queries) BindListingPair(ctx context.Context, id int64, from, to string) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE listings SET from_currency = $1, to_currency = $2, updated_at = NOW()
		WHERE id = $3 AND from_currency = '' AND to_currency = ''`, from, to, id)
	if err != nil {
		return false, wrap("bind listing pair", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *queries) ListActiveListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := s.q.Query(ctx, `SELECT `+listingColumns+` FROM listings
		WHERE status = 'active' AND amount > 0 ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrap("list listings", err)
	}
	defer rows.Close()

	var out []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, wrap("scan listing", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// orders

func (s *queries) InsertOrder(ctx context.Context, o *models.Order) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO orders (buyer_id, listing_id, amount, from_currency, to_currency, exchange_rate,
			fee_amount, total_amount, net_amount, status, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		o.BuyerID, o.ListingID, o.Amount, o.FromCurrency, o.ToCurrency, o.ExchangeRate,
		o.FeeAmount, o.TotalAmount, o.NetAmount, o.Status, o.Reference,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return wrap("insert order", err)
	}
	return nil
}

func (s *queries) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	err := s.q.QueryRow(ctx, `
		SELECT id, buyer_id, listing_id, amount, from_currency, to_currency, exchange_rate,
			fee_amount, total_amount, net_amount, status, reference, created_at
		FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.BuyerID, &o.ListingID, &o.Amount, &o.FromCurrency, &o.ToCurrency, &o.ExchangeRate,
		&o.FeeAmount, &o.TotalAmount, &o.NetAmount, &o.Status, &o.Reference, &o.CreatedAt)
	if err != nil {
		return nil, wrap("get order", err)
	}
	return &o, nil
}

// earnings

const earningColumns = `id, user_id, order_id, payout_id, currency, amount, fee, net_amount,
	type, status, metadata, created_at, updated_at`

func scanEarning(row scanner) (*models.Earning, error) {
	var e models.Earning
	err := row.Scan(&e.ID, &e.UserID, &e.OrderID, &e.PayoutID, &e.Currency, &e.Amount, &e.Fee, &e.NetAmount,
		&e.Type, &e.Status, &e.Metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *queries) InsertEarning(ctx context.Context, e *models.Earning) error {
	// A split keeps the age of the earning it came from.
	var createdAt *time.Time
	if !e.CreatedAt.IsZero() {
		createdAt = &e.CreatedAt
	}
	err := s.q.QueryRow(ctx, `
		INSERT INTO earnings (user_id, order_id, payout_id, currency, amount, fee, net_amount, type, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))
		RETURNING id, created_at, updated_at`,
		e.UserID, e.OrderID, e.PayoutID, e.Currency, e.Amount, e.Fee, e.NetAmount, e.Type, e.Status, e.Metadata, createdAt,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return wrap("insert earning", err)
	}
	return nil
}

func (s *queries) UpdateEarning(ctx context.Context, e *models.Earning) error {
	err := s.q.QueryRow(ctx, `
		UPDATE earnings SET amount = $1, fee = $2, net_amount = $3, status = $4, payout_id = $5, updated_at = NOW()
		WHERE id = $6 RETURNING updated_at`,
		e.Amount, e.Fee, e.NetAmount, e.Status, e.PayoutID, e.ID,
	).Scan(&e.UpdatedAt)
	if err != nil {
		return wrap("update earning", err)
	}
	return nil
}

func (s *queries) ListEarnings(ctx context.Context, f EarningFilter) ([]models.Earning, error) {
	sql := `SELECT ` + earningColumns + ` FROM earnings WHERE user_id = $1`
	args := []any{f.UserID}
	if f.Currency != "" {
		args = append(args, f.Currency)
		sql += fmt.Sprintf(" AND currency = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		sql += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.PayoutID != nil {
		args = append(args, *f.PayoutID)
		sql += fmt.Sprintf(" AND payout_id = $%d", len(args))
	}
	sql += " ORDER BY created_at ASC, id ASC" + lockClause(f.Lock)

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrap("list earnings", err)
	}
	defer rows.Close()

	var out []models.Earning
	for rows.Next() {
		e, err := scanEarning(rows)
		if err != nil {
			return nil, wrap("scan earning", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *queries) SumEarnings(ctx context.Context, userID int64, currency string, status models.EarningStatus) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(net_amount), 0) FROM earnings
		WHERE user_id = $1 AND currency = $2 AND status = $3`, userID, currency, status,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, wrap("sum earnings", err)
	}
	return sum, nil
}

// payouts

const payoutColumns = `id, user_id, order_id, payout_method_id, amount, currency, status, is_cross_border,
	conversion_rate, converted_currency, payout_fee, linked_account, reference, failure_reason,
	processed_at, created_at`

func scanPayout(row scanner) (*models.Payout, error) {
	var p models.Payout
	var rate decimal.NullDecimal
	err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.PayoutMethodID, &p.Amount, &p.Currency, &p.Status, &p.IsCrossBorder,
		&rate, &p.ConvertedCurrency, &p.PayoutFee, &p.LinkedAccount, &p.Reference, &p.FailureReason,
		&p.ProcessedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rate.Valid {
		p.ConversionRate = &rate.Decimal
	}
	return &p, nil
}

func (s *queries) InsertPayout(ctx context.Context, p *models.Payout) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO payouts (user_id, order_id, payout_method_id, amount, currency, status, is_cross_border,
			conversion_rate, converted_currency, payout_fee, linked_account, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`,
		p.UserID, p.OrderID, p.PayoutMethodID, p.Amount, p.Currency, p.Status, p.IsCrossBorder,
		nullDecimal(p.ConversionRate), p.ConvertedCurrency, p.PayoutFee, p.LinkedAccount, p.Reference,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return wrap("insert payout", err)
	}
	return nil
}

func (s *queries) GetPayout(ctx context.Context, id int64, lock bool) (*models.Payout, error) {
	p, err := scanPayout(s.q.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`+lockClause(lock), id))
	if err != nil {
		return nil, wrap("get payout", err)
	}
	return p, nil
}

func (s *queries) GetPayoutByOrder(ctx context.Context, orderID int64) (*models.Payout, error) {
	p, err := scanPayout(s.q.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE order_id = $1`, orderID))
	if err != nil {
		return nil, wrap("get payout by order", err)
	}
	return p, nil
}

func (s *queries) UpdatePayout(ctx context.Context, p *models.Payout) error {
	_, err := s.q.Exec(ctx, `
		UPDATE payouts SET status = $1, failure_reason = $2, processed_at = $3 WHERE id = $4`,
		p.Status, p.FailureReason, p.ProcessedAt, p.ID)
	if err != nil {
		return wrap("update payout", err)
	}
	return nil
}

// payout methods

const methodColumns = `id, user_id, type, details, is_default, currency, created_at, updated_at`

func scanMethod(row scanner) (*models.PayoutMethod, error) {
	var m models.PayoutMethod
	var raw []byte
	if err := row.Scan(&m.ID, &m.UserID, &m.Type, &raw, &m.IsDefault, &m.Currency, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := models.ParsePayoutDetails(m.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("payout method %d: %w", m.ID, err)
	}
	m.Details = d
	return &m, nil
}

func (s *queries) InsertPayoutMethod(ctx context.Context, m *models.PayoutMethod) error {
	raw, err := json.Marshal(m.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	err = s.q.QueryRow(ctx, `
		INSERT INTO payout_methods (user_id, type, details, is_default, currency)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		m.UserID, m.Type, raw, m.IsDefault, m.Currency,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return wrap("insert payout method", err)
	}
	return nil
}

func (s *queries) GetPayoutMethod(ctx context.Context, id int64) (*models.PayoutMethod, error) {
	m, err := scanMethod(s.q.QueryRow(ctx, `SELECT `+methodColumns+` FROM payout_methods WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get payout method", err)
	}
	return m, nil
}

func (s *queries) UpdatePayoutMethod(ctx context.Context, m *models.PayoutMethod) error {
	raw, err := json.Marshal(m.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	err = s.q.QueryRow(ctx, `
		UPDATE payout_methods SET details = $1, is_default = $2, currency = $3, updated_at = NOW()
		WHERE id = $4 RETURNING updated_at`,
		raw, m.IsDefault, m.Currency, m.ID,
	).Scan(&m.UpdatedAt)
	if err != nil {
		return wrap("update payout method", err)
	}
	return nil
}

func (s *queries) ClearDefaultPayoutMethods(ctx context.Context, userID, exceptID int64) error {
	_, err := s.q.Exec(ctx, `
		UPDATE payout_methods SET is_default = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND id <> $2 AND is_default`, userID, exceptID)
	if err != nil {
		return wrap("clear default payout methods", err)
	}
	return nil
}

func (s *queries) ListPayoutMethods(ctx context.Context, userID int64, lock bool) ([]models.PayoutMethod, error) {
	rows, err := s.q.Query(ctx, `SELECT `+methodColumns+` FROM payout_methods
		WHERE user_id = $1 ORDER BY id`+lockClause(lock), userID)
	if err != nil {
		return nil, wrap("list payout methods", err)
	}
	defer rows.Close()

	var out []models.PayoutMethod
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, wrap("scan payout method", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// goods variant

func (s *queries) InsertGoodsListing(ctx context.Context, l *models.GoodsListing) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO goods_listings (seller_id, title, price, currency, quantity, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		l.SellerID, l.Title, l.Price, l.Currency, l.Quantity, l.Status,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return wrap("insert goods listing", err)
	}
	return nil
}

func (s *queries) GetGoodsListing(ctx context.Context, id int64, lock bool) (*models.GoodsListing, error) {
	var l models.GoodsListing
	err := s.q.QueryRow(ctx, `
		SELECT id, seller_id, title, price, currency, quantity, status, created_at
		FROM goods_listings WHERE id = $1`+lockClause(lock), id,
	).Scan(&l.ID, &l.SellerID, &l.Title, &l.Price, &l.Currency, &l.Quantity, &l.Status, &l.CreatedAt)
	if err != nil {
		return nil, wrap("get goods listing", err)
	}
	return &l, nil
}

func (s *queries) UpdateGoodsListing(ctx context.Context, l *models.GoodsListing) error {
	if _, err := s.q.Exec(ctx, `UPDATE goods_listings SET quantity = $1, status = $2 WHERE id = $3`,
		l.Quantity, l.Status, l.ID); err != nil {
		return wrap("update goods listing", err)
	}
	return nil
}

func (s *queries) InsertGoodsOrder(ctx context.Context, o *models.GoodsOrder) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO goods_orders (buyer_id, seller_id, listing_id, quantity, price, buyer_fee, currency, status, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`,
		o.BuyerID, o.SellerID, o.ListingID, o.Quantity, o.Price, o.BuyerFee, o.Currency, o.Status, o.Reference,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return wrap("insert goods order", err)
	}
	return nil
}

func (s *queries) GetGoodsOrder(ctx context.Context, id int64, lock bool) (*models.GoodsOrder, error) {
	var o models.GoodsOrder
	err := s.q.QueryRow(ctx, `
		SELECT id, buyer_id, seller_id, listing_id, quantity, price, buyer_fee, currency, status, reference, created_at
		FROM goods_orders WHERE id = $1`+lockClause(lock), id,
	).Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.ListingID, &o.Quantity, &o.Price, &o.BuyerFee, &o.Currency,
		&o.Status, &o.Reference, &o.CreatedAt)
	if err != nil {
		return nil, wrap("get goods order", err)
	}
	return &o, nil
}

func (s *queries) UpdateGoodsOrder(ctx context.Context, o *models.GoodsOrder) error {
	if _, err := s.q.Exec(ctx, `UPDATE goods_orders SET status = $1 WHERE id = $2`, o.Status, o.ID); err != nil {
		return wrap("update goods order", err)
	}
	return nil
}

func (s *queries) InsertEscrow(ctx context.Context, e *models.Escrow) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO escrow (order_id, amount, status, held_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		e.OrderID, e.Amount, e.Status, e.HeldAt,
	).Scan(&e.ID)
	if err != nil {
		return wrap("insert escrow", err)
	}
	return nil
}

func (s *queries) GetEscrowByOrder(ctx context.Context, orderID int64, lock bool) (*models.Escrow, error) {
	var e models.Escrow
	err := s.q.QueryRow(ctx, `
		SELECT id, order_id, amount, status, held_at, released_at
		FROM escrow WHERE order_id = $1`+lockClause(lock), orderID,
	).Scan(&e.ID, &e.OrderID, &e.Amount, &e.Status, &e.HeldAt, &e.ReleasedAt)
	if err != nil {
		return nil, wrap("get escrow", err)
	}
	return &e, nil
}

func (s *queries) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	if _, err := s.q.Exec(ctx, `UPDATE escrow SET status = $1, released_at = $2 WHERE id = $3`,
		e.Status, e.ReleasedAt, e.ID); err != nil {
		return wrap("update escrow", err)
	}
	return nil
}

func (s *queries) InsertFee(ctx context.Context, f *models.Fee) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO fees (order_id, listing_fee, seller_commission, buyer_fee, payout_fee)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		f.OrderID, f.ListingFee, f.SellerCommission, f.BuyerFee, f.PayoutFee,
	).Scan(&f.ID)
	if err != nil {
		return wrap("insert fee", err)
	}
	return nil
}

func (s *queries) UpdateFee(ctx context.Context, f *models.Fee) error {
	_, err := s.q.Exec(ctx, `
		UPDATE fees SET listing_fee = $1, seller_commission = $2, buyer_fee = $3, payout_fee = $4
		WHERE id = $5`,
		f.ListingFee, f.SellerCommission, f.BuyerFee, f.PayoutFee, f.ID)
	if err != nil {
		return wrap("update fee", err)
	}
	return nil
}

func (s *queries) GetFeeByOrder(ctx context.Context, orderID int64) (*models.Fee, error) {
	var f models.Fee
	err := s.q.QueryRow(ctx, `
		SELECT id, order_id, listing_fee, seller_commission, buyer_fee, payout_fee
		FROM fees WHERE order_id = $1`, orderID,
	).Scan(&f.ID, &f.OrderID, &f.ListingFee, &f.SellerCommission, &f.BuyerFee, &f.PayoutFee)
	if err != nil {
		return nil, wrap("get fee", err)
	}
	return &f, nil
}
