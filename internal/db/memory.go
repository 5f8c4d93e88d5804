package db

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/inodinwetrust10/fxsettle/internal/models"
)

// MemoryStore is an in-memory Store used by tests. Transactions are fully
// serialized and work on a private copy that replaces the shared state on
// commit, so a failed transaction leaves nothing behind.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *memData

	hookMu    sync.Mutex
	conflicts int
	failOps   map[string]error
}

type memData struct {
	seq         int64
	users       map[int64]models.User
	wallets     map[int64]models.Wallet
	txs         []models.Transaction
	listings    map[int64]models.Listing
	orders      map[int64]models.Order
	earnings    map[int64]models.Earning
	payouts     map[int64]models.Payout
	methods     map[int64]models.PayoutMethod
	goods       map[int64]models.GoodsListing
	goodsOrders map[int64]models.GoodsOrder
	escrows     map[int64]models.Escrow
	fees        map[int64]models.Fee
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memData{
			users:       map[int64]models.User{},
			wallets:     map[int64]models.Wallet{},
			listings:    map[int64]models.Listing{},
			orders:      map[int64]models.Order{},
			earnings:    map[int64]models.Earning{},
			payouts:     map[int64]models.Payout{},
			methods:     map[int64]models.PayoutMethod{},
			goods:       map[int64]models.GoodsListing{},
			goodsOrders: map[int64]models.GoodsOrder{},
			escrows:     map[int64]models.Escrow{},
			fees:        map[int64]models.Fee{},
		},
		failOps: map[string]error{},
	}
}

func (d *memData) clone() *memData {
	return &memData{
		seq:         d.seq,
		users:       maps.Clone(d.users),
		wallets:     maps.Clone(d.wallets),
		txs:         slices.Clone(d.txs),
		listings:    maps.Clone(d.listings),
		orders:      maps.Clone(d.orders),
		earnings:    maps.Clone(d.earnings),
		payouts:     maps.Clone(d.payouts),
		methods:     maps.Clone(d.methods),
		goods:       maps.Clone(d.goods),
		goodsOrders: maps.Clone(d.goodsOrders),
		escrows:     maps.Clone(d.escrows),
		fees:        maps.Clone(d.fees),
	}
}

func (d *memData) next() int64 {
	d.seq++
	return d.seq
}

// InjectConflicts makes the next n transactions fail with ErrConflict after
// running, discarding their writes.
func (m *MemoryStore) InjectConflicts(n int) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.conflicts = n
}

// FailOn makes every call of the named Tx method return err until cleared with
// a nil err.
func (m *MemoryStore) FailOn(op string, err error) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	if err == nil {
		delete(m.failOps, op)
		return
	}
	m.failOps[op] = err
}

func (m *MemoryStore) failure(op string) error {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	return m.failOps[op]
}

func (m *MemoryStore) takeConflict() bool {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return true
	}
	return false
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	work := m.data.clone()
	m.mu.RUnlock()

	if err := fn(&memTx{s: m, d: work}); err != nil {
		return err
	}
	if m.takeConflict() {
		return ErrConflict
	}
	m.mu.Lock()
	m.data = work
	m.mu.Unlock()
	return nil
}

// auto runs a single call as its own transaction. Injected conflicts only
// apply to WithTx.
func (m *MemoryStore) auto(ctx context.Context, fn func(t *memTx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.data.clone()
	m.mu.RUnlock()

	if err := fn(&memTx{s: m, d: work}); err != nil {
		return err
	}
	m.mu.Lock()
	m.data = work
	m.mu.Unlock()
	return nil
}

type memTx struct {
	s *MemoryStore
	d *memData
}

func (t *memTx) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if err := t.s.failure("GetUser"); err != nil {
		return nil, err
	}
	u, ok := t.d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memTx) CreateUser(ctx context.Context, u *models.User) error {
	u.ID = t.d.next()
	u.CreatedAt = time.Now().UTC()
	t.d.users[u.ID] = *u
	return nil
}

func (t *memTx) GetWallet(ctx context.Context, userID int64, currency string, lock bool) (*models.Wallet, error) {
	if err := t.s.failure("GetWallet"); err != nil {
		return nil, err
	}
	for _, w := range t.d.wallets {
		if w.UserID == userID && w.Currency == currency {
			return &w, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) EnsureWallet(ctx context.Context, userID int64, currency string) (*models.Wallet, error) {
	if w, err := t.GetWallet(ctx, userID, currency, true); err == nil {
		return w, nil
	}
	w := models.Wallet{ID: t.d.next(), UserID: userID, Currency: currency, Balance: decimal.Zero, CreatedAt: time.Now().UTC()}
	t.d.wallets[w.ID] = w
	return &w, nil
}

func (t *memTx) UpdateWalletBalance(ctx context.Context, walletID int64, balance decimal.Decimal) error {
	if err := t.s.failure("UpdateWalletBalance"); err != nil {
		return err
	}
	w, ok := t.d.wallets[walletID]
	if !ok {
		return ErrNotFound
	}
	w.Balance = balance
	t.d.wallets[walletID] = w
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, tr *models.Transaction) error {
	if err := t.s.failure("InsertTransaction"); err != nil {
		return err
	}
	for _, existing := range t.d.txs {
		if existing.Reference == tr.Reference {
			return ErrDuplicateReference
		}
	}
	tr.ID = t.d.next()
	tr.CreatedAt = time.Now().UTC()
	t.d.txs = append(t.d.txs, *tr)
	return nil
}

func (t *memTx) GetTransactionByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	for _, tr := range t.d.txs {
		if tr.Reference == ref {
			return &tr, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	for i := len(t.d.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if t.d.txs[i].UserID == userID {
			out = append(out, t.d.txs[i])
		}
	}
	return out, nil
}

func (t *memTx) InsertListing(ctx context.Context, l *models.Listing) error {
	now := time.Now().UTC()
	l.ID = t.d.next()
	l.CreatedAt, l.UpdatedAt = now, now
	t.d.listings[l.ID] = *l
	return nil
}

func (t *memTx) GetListing(ctx context.Context, id int64, lock bool) (*models.Listing, error) {
	l, ok := t.d.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (t *memTx) UpdateListing(ctx context.Context, l *models.Listing) error {
	if err := t.s.failure("UpdateListing"); err != nil {
		return err
	}
	cur, ok := t.d.listings[l.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Amount, cur.Status, cur.MinAmount, cur.MaxAmount = l.Amount, l.Status, l.MinAmount, l.MaxAmount
	cur.UpdatedAt = time.Now().UTC()
	l.UpdatedAt = cur.UpdatedAt
	t.d.listings[l.ID] = cur
	return nil
}

func (t *memTx) BindListingPair(ctx context.Context, id int64, from, to string) (bool, error) {
	l, ok := t.d.listings[id]
	if !ok {
		return false, ErrNotFound
	}
	if l.FromCurrency != "" || l.ToCurrency != "" {
		return false, nil
	}
	l.FromCurrency, l.ToCurrency = from, to
	t.d.listings[id] = l
	return true, nil
}

func (t *memTx) ListActiveListings(ctx context.Context) ([]models.Listing, error) {
	var out []models.Listing
	for _, l := range t.d.listings {
		if l.IsActive() {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b models.Listing) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *models.Order) error {
	if err := t.s.failure("InsertOrder"); err != nil {
		return err
	}
	o.ID = t.d.next()
	o.CreatedAt = time.Now().UTC()
	t.d.orders[o.ID] = *o
	return nil
}

func (t *memTx) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := t.d.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (t *memTx) InsertEarning(ctx context.Context, e *models.Earning) error {
	if err := t.s.failure("InsertEarning"); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.ID = t.d.next()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	t.d.earnings[e.ID] = *e
	return nil
}

func (t *memTx) UpdateEarning(ctx context.Context, e *models.Earning) error {
	cur, ok := t.d.earnings[e.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Amount, cur.Fee, cur.NetAmount, cur.Status, cur.PayoutID = e.Amount, e.Fee, e.NetAmount, e.Status, e.PayoutID
	cur.UpdatedAt = time.Now().UTC()
	t.d.earnings[e.ID] = cur
	return nil
}

func (t *memTx) ListEarnings(ctx context.Context, f EarningFilter) ([]models.Earning, error) {
	var out []models.Earning
	for _, e := range t.d.earnings {
		if e.UserID != f.UserID {
			continue
		}
		if f.Currency != "" && e.Currency != f.Currency {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.PayoutID != nil && (e.PayoutID == nil || *e.PayoutID != *f.PayoutID) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b models.Earning) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *memTx) SumEarnings(ctx context.Context, userID int64, currency string, status models.EarningStatus) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range t.d.earnings {
		if e.UserID == userID && e.Currency == currency && e.Status == status {
			sum = sum.Add(e.NetAmount)
		}
	}
	return sum, nil
}

func (t *memTx) InsertPayout(ctx context.Context, p *models.Payout) error {
	if err := t.s.failure("InsertPayout"); err != nil {
		return err
	}
	p.ID = t.d.next()
	p.CreatedAt = time.Now().UTC()
	t.d.payouts[p.ID] = *p
	return nil
}

func (t *memTx) GetPayout(ctx context.Context, id int64, lock bool) (*models.Payout, error) {
	p, ok := t.d.payouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) GetPayoutByOrder(ctx context.Context, orderID int64) (*models.Payout, error) {
	for _, p := range t.d.payouts {
		if p.OrderID != nil && *p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) UpdatePayout(ctx context.Context, p *models.Payout) error {
	if err := t.s.failure("UpdatePayout"); err != nil {
		return err
	}
	cur, ok := t.d.payouts[p.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status, cur.FailureReason, cur.ProcessedAt = p.Status, p.FailureReason, p.ProcessedAt
	t.d.payouts[p.ID] = cur
	return nil
}

func (t *memTx) InsertPayoutMethod(ctx context.Context, m *models.PayoutMethod) error {
	if m.IsDefault {
		for _, other := range t.d.methods {
			if other.UserID == m.UserID && other.IsDefault {
				return ErrConflict
			}
		}
	}
	now := time.Now().UTC()
	m.ID = t.d.next()
	m.CreatedAt, m.UpdatedAt = now, now
	t.d.methods[m.ID] = *m
	return nil
}

func (t *memTx) GetPayoutMethod(ctx context.Context, id int64) (*models.PayoutMethod, error) {
	m, ok := t.d.methods[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (t *memTx) UpdatePayoutMethod(ctx context.Context, m *models.PayoutMethod) error {
	if err := t.s.failure("UpdatePayoutMethod"); err != nil {
		return err
	}
	cur, ok := t.d.methods[m.ID]
	if !ok {
		return ErrNotFound
	}
	if m.IsDefault {
		for id, other := range t.d.methods {
			if id != m.ID && other.UserID == m.UserID && other.IsDefault {
				return ErrConflict
			}
		}
	}
	cur.Details, cur.IsDefault, cur.Currency = m.Details, m.IsDefault, m.Currency
	cur.UpdatedAt = time.Now().UTC()
	m.UpdatedAt = cur.UpdatedAt
	t.d.methods[m.ID] = cur
	return nil
}

func (t *memTx) ClearDefaultPayoutMethods(ctx context.Context, userID, exceptID int64) error {
	for id, m := range t.d.methods {
		if m.UserID == userID && id != exceptID && m.IsDefault {
			m.IsDefault = false
			t.d.methods[id] = m
		}
	}
	return nil
}

func (t *memTx) ListPayoutMethods(ctx context.Context, userID int64, lock bool) ([]models.PayoutMethod, error) {
	var out []models.PayoutMethod
	for _, m := range t.d.methods {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b models.PayoutMethod) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *memTx) InsertGoodsListing(ctx context.Context, l *models.GoodsListing) error {
	l.ID = t.d.next()
	l.CreatedAt = time.Now().UTC()
	t.d.goods[l.ID] = *l
	return nil
}

func (t *memTx) GetGoodsListing(ctx context.Context, id int64, lock bool) (*models.GoodsListing, error) {
	l, ok := t.d.goods[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (t *memTx) UpdateGoodsListing(ctx context.Context, l *models.GoodsListing) error {
	cur, ok := t.d.goods[l.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Quantity, cur.Status = l.Quantity, l.Status
	t.d.goods[l.ID] = cur
	return nil
}

func (t *memTx) InsertGoodsOrder(ctx context.Context, o *models.GoodsOrder) error {
	o.ID = t.d.next()
	o.CreatedAt = time.Now().UTC()
	t.d.goodsOrders[o.ID] = *o
	return nil
}

func (t *memTx) GetGoodsOrder(ctx context.Context, id int64, lock bool) (*models.GoodsOrder, error) {
	o, ok := t.d.goodsOrders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (t *memTx) UpdateGoodsOrder(ctx context.Context, o *models.GoodsOrder) error {
	cur, ok := t.d.goodsOrders[o.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = o.Status
	t.d.goodsOrders[o.ID] = cur
	return nil
}

func (t *memTx) InsertEscrow(ctx context.Context, e *models.Escrow) error {
	if err := t.s.failure("InsertEscrow"); err != nil {
		return err
	}
	for _, existing := range t.d.escrows {
		if existing.OrderID == e.OrderID {
			return ErrConflict
		}
	}
	e.ID = t.d.next()
	t.d.escrows[e.ID] = *e
	return nil
}

func (t *memTx) GetEscrowByOrder(ctx context.Context, orderID int64, lock bool) (*models.Escrow, error) {
	for _, e := range t.d.escrows {
		if e.OrderID == orderID {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	cur, ok := t.d.escrows[e.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status, cur.ReleasedAt = e.Status, e.ReleasedAt
	t.d.escrows[e.ID] = cur
	return nil
}

func (t *memTx) InsertFee(ctx context.Context, f *models.Fee) error {
	f.ID = t.d.next()
	t.d.fees[f.ID] = *f
	return nil
}

func (t *memTx) UpdateFee(ctx context.Context, f *models.Fee) error {
	if _, ok := t.d.fees[f.ID]; !ok {
		return ErrNotFound
	}
	t.d.fees[f.ID] = *f
	return nil
}

func (t *memTx) GetFeeByOrder(ctx context.Context, orderID int64) (*models.Fee, error) {
	for _, f := range t.d.fees {
		if f.OrderID == orderID {
			return &f, nil
		}
	}
	return nil, ErrNotFound
}

// The methods below run each call as its own transaction.
func (m *MemoryStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var out *models.User
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetUser(ctx, id)
		return err
	})
	return out, err
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	return m.auto(ctx, func(t *memTx) error { return t.CreateUser(ctx, u) })
}

func (m *MemoryStore) GetWallet(ctx context.Context, userID int64, currency string, lock bool) (*models.Wallet, error) {
	var out *models.Wallet
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetWallet(ctx, userID, currency, lock)
		return err
	})
	return out, err
}

func (m *MemoryStore) EnsureWallet(ctx context.Context, userID int64, currency string) (*models.Wallet, error) {
	var out *models.Wallet
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.EnsureWallet(ctx, userID, currency)
		return err
	})
	return out, err
}

func (m *MemoryStore) UpdateWalletBalance(ctx context.Context, walletID int64, balance decimal.Decimal) error {
	return m.auto(ctx, func(t *memTx) error { return t.UpdateWalletBalance(ctx, walletID, balance) })
}

func (m *MemoryStore) InsertTransaction(ctx context.Context, tr *models.Transaction) error {
	return m.auto(ctx, func(t *memTx) error { return t.InsertTransaction(ctx, tr) })
}

func (m *MemoryStore) GetTransactionByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	var out *models.Transaction
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetTransactionByReference(ctx, ref)
		return err
	})
	return out, err
}

func (m *MemoryStore) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.ListTransactions(ctx, userID, limit)
		return err
	})
	return out, err
}

func (m *MemoryStore) InsertListing(ctx context.Context, l *models.Listing) error {
	return m.auto(ctx, func(t *memTx) error { return t.InsertListing(ctx, l) })
}

func (m *MemoryStore) GetListing(ctx context.Context, id int64, lock bool) (*models.Listing, error) {
	var out *models.Listing
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetListing(ctx, id, lock)
		return err
	})
	return out, err
}

func (m *MemoryStore) UpdateListing(ctx context.Context, l *models.Listing) error {
	return m.auto(ctx, func(t *memTx) error { return t.UpdateListing(ctx, l) })
}

func (m *MemoryStore) BindListingPair(ctx context.Context, id int64, from, to string) (bool, error) {
	var out bool
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.BindListingPair(ctx, id, from, to)
		return err
	})
	return out, err
}

func (m *MemoryStore) ListActiveListings(ctx context.Context) ([]models.Listing, error) {
	var out []models.Listing
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.ListActiveListings(ctx)
		return err
	})
	return out, err
}

func (m *MemoryStore) InsertOrder(ctx context.Context, o *models.Order) error {
	return m.auto(ctx, func(t *memTx) error { return t.InsertOrder(ctx, o) })
}

func (m *MemoryStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var out *models.Order
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetOrder(ctx, id)
		return err
	})
	return out, err
}

func (m *MemoryStore) InsertEarning(ctx context.Context, e *models.Earning) error {
	return m.auto(ctx, func(t *memTx) error { return t.InsertEarning(ctx, e) })
}

func (m *MemoryStore) UpdateEarning(ctx context.Context, e *models.Earning) error {
	return m.auto(ctx, func(t *memTx) error { return t.UpdateEarning(ctx, e) })
}

func (m *MemoryStore) ListEarnings(ctx context.Context, f EarningFilter) ([]models.Earning, error) {
	var out []models.Earning
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.ListEarnings(ctx, f)
		return err
	})
	return out, err
}

func (m *MemoryStore) SumEarnings(ctx context.Context, userID int64, currency string, status models.EarningStatus) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.SumEarnings(ctx, userID, currency, status)
		return err
	})
	return out, err
}

func (m *MemoryStore) InsertPayout(ctx context.Context, p *models.Payout) error {
	return m.auto(ctx, func(t *memTx) error { return t.InsertPayout(ctx, p) })
}

func (m *MemoryStore) GetPayout(ctx context.Context, id int64, lock bool) (*models.Payout, error) {
	var out *models.Payout
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetPayout(ctx, id, lock)
		return err
	})
	return out, err
}

func (m *MemoryStore) GetPayoutByOrder(ctx context.Context, orderID int64) (*models.Payout, error) {
	var out *models.Payout
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetPayoutByOrder(ctx, orderID)
		return err
	})
	return out, err
}

func (m *MemoryStore) UpdatePayout(ctx context.Context, p *models.Payout) error {
	return m.auto(ctx, func(t *memTx) error { return t.UpdatePayout(ctx, p) })
}

func (m *MemoryStore) InsertPayoutMethod(ctx context.Context, pm *models.PayoutMethod) error {
	return m.auto(ctx, func(t *memTx) error { return t.InsertPayoutMethod(ctx, pm) })
}

func (m *MemoryStore) GetPayoutMethod(ctx context.Context, id int64) (*models.PayoutMethod, error) {
	var out *models.PayoutMethod
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetPayoutMethod(ctx, id)
		return err
	})
	return out, err
}

func (m *MemoryStore) UpdatePayoutMethod(ctx context.Context, pm *models.PayoutMethod) error {
	return m.auto(ctx, func(t *memTx) error { return t.UpdatePayoutMethod(ctx, pm) })
}

func (m *MemoryStore) ClearDefaultPayoutMethods(ctx context.Context, userID, exceptID int64) error {
	return m.auto(ctx, func(t *memTx) error { return t.ClearDefaultPayoutMethods(ctx, userID, exceptID) })
}

func (m *MemoryStore) ListPayoutMethods(ctx context.Context, userID int64, lock bool) ([]models.PayoutMethod, error) {
	var out []models.PayoutMethod
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.ListPayoutMethods(ctx, userID, lock)
		return err
	})
	return out, err
}

func (m *MemoryStore) InsertGoodsListing(ctx context.Context, l *models.GoodsListing) error {
	return m.auto(ctx, func(t *memTx) error { return t.InsertGoodsListing(ctx, l) })
}

func (m *MemoryStore) GetGoodsListing(ctx context.Context, id int64, lock bool) (*models.GoodsListing, error) {
	var out *models.GoodsListing
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetGoodsListing(ctx, id, lock)
		return err
	})
	return out, err
}

func (m *MemoryStore) UpdateGoodsListing(ctx context.Context, l *models.GoodsListing) error {
	return m.auto(ctx, func(t *memTx) error { return t.UpdateGoodsListing(ctx, l) })
}

func (m *MemoryStore) InsertGoodsOrder(ctx context.Context, o *models.GoodsOrder) error {
	return m.auto(ctx, func(t *memTx) error { return t.InsertGoodsOrder(ctx, o) })
}

func (m *MemoryStore) GetGoodsOrder(ctx context.Context, id int64, lock bool) (*models.GoodsOrder, error) {
	var out *models.GoodsOrder
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetGoodsOrder(ctx, id, lock)
		return err
	})
	return out, err
}

func (m *MemoryStore) UpdateGoodsOrder(ctx context.Context, o *models.GoodsOrder) error {
	return m.auto(ctx, func(t *memTx) error { return t.UpdateGoodsOrder(ctx, o) })
}

func (m *MemoryStore) InsertEscrow(ctx context.Context, e *models.Escrow) error {
	return m.auto(ctx, func(t *memTx) error { return t.InsertEscrow(ctx, e) })
}

func (m *MemoryStore) GetEscrowByOrder(ctx context.Context, orderID int64, lock bool) (*models.Escrow, error) {
	var out *models.Escrow
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetEscrowByOrder(ctx, orderID, lock)
		return err
	})
	return out, err
}

func (m *MemoryStore) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	return m.auto(ctx, func(t *memTx) error { return t.UpdateEscrow(ctx, e) })
}

func (m *MemoryStore) InsertFee(ctx context.Context, f *models.Fee) error {
	return m.auto(ctx, func(t *memTx) error { return t.InsertFee(ctx, f) })
}

func (m *MemoryStore) UpdateFee(ctx context.Context, f *models.Fee) error {
	return m.auto(ctx, func(t *memTx) error { return t.UpdateFee(ctx, f) })
}

func (m *MemoryStore) GetFeeByOrder(ctx context.Context, orderID int64) (*models.Fee, error) {
	var out *models.Fee
	err := m.auto(ctx, func(t *memTx) error {
		var err error
		out, err = t.GetFeeByOrder(ctx, orderID)
		return err
	})
	return out, err
}
