package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/events"
	"github.com/inodinwetrust10/fxsettle/internal/listing"
	"github.com/inodinwetrust10/fxsettle/internal/models"
	"github.com/inodinwetrust10/fxsettle/internal/wallet"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store    *db.MemoryStore
	wallets  *wallet.Service
	listings *listing.Registry
	rec      *events.Recorder
	engine   *Engine
	seller   int64
	buyer    int64
}

func newFixture(t *testing.T, buyerFunds string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemoryStore()
	log := zap.NewNop()
	f := &fixture{
		store:    store,
		wallets:  wallet.New(store, log),
		listings: listing.New(store, log),
		rec:      &events.Recorder{},
	}
	f.engine = New(store, f.wallets, f.listings, f.rec, log, 3)

	seller := &models.User{Name: "seller", Currency: "USD"}
	buyer := &models.User{Name: "buyer", Currency: "EUR"}
	for _, u := range []*models.User{seller, buyer} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	f.seller, f.buyer = seller.ID, buyer.ID

	if buyerFunds != "" {
		err := store.WithTx(ctx, func(tx db.Tx) error {
			_, err := f.wallets.Credit(ctx, tx, f.buyer, "USD", d(buyerFunds), wallet.Meta{Type: models.TxDeposit})
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func (f *fixture) listing(t *testing.T, n listing.NewListing) *models.Listing {
	t.Helper()
	n.SellerID = f.seller
	l, err := f.listings.Create(context.Background(), n)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func (f *fixture) usdEur(t *testing.T, amount string) *models.Listing {
	return f.listing(t, listing.NewListing{
		Amount: d(amount), FeePct: d("2"), Rate: d("0.9"), MinAmount: d("10"), From: "USD", To: "EUR",
	})
}

func (f *fixture) balance(t *testing.T, user int64, currency string) decimal.Decimal {
	t.Helper()
	b, err := f.wallets.CheckBalance(context.Background(), user, currency)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func (f *fixture) earnings(t *testing.T, user int64) []models.Earning {
	t.Helper()
	es, err := f.store.ListEarnings(context.Background(), db.EarningFilter{UserID: user})
	if err != nil {
		t.Fatal(err)
	}
	return es
}

func TestSettleConvertsAndCharges(t *testing.T) {
	f := newFixture(t, "500")
	l := f.usdEur(t, "1000")

	o, err := f.engine.Settle(context.Background(), Request{
		BuyerID: f.buyer, ListingID: l.ID, Amount: d("100"), FromCurrency: "USD", ToCurrency: "EUR",
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if !o.TotalAmount.Equal(d("90")) || !o.FeeAmount.Equal(d("1.8")) || !o.NetAmount.Equal(d("88.2")) {
		t.Fatalf("unexpected amounts total=%s fee=%s net=%s", o.TotalAmount, o.FeeAmount, o.NetAmount)
	}
	if !o.TotalAmount.Equal(o.Amount.Mul(l.ExchangeRate)) {
		t.Fatal("total must equal amount times rate")
	}
	if !o.FeeAmount.Add(o.NetAmount).Equal(o.TotalAmount) {
		t.Fatal("fee plus net must equal total")
	}
	if o.Status != models.OrderCompleted || o.Reference == "" {
		t.Fatalf("unexpected order %+v", o)
	}

	sale := f.earnings(t, f.seller)
	if len(sale) != 1 {
		t.Fatalf("expected one seller earning, got %d", len(sale))
	}
	if sale[0].Type != models.EarningExchangeSale || sale[0].Currency != "EUR" || sale[0].Status != models.EarningAvailable {
		t.Fatalf("unexpected seller earning %+v", sale[0])
	}
	if !sale[0].NetAmount.Add(sale[0].Fee).Equal(o.TotalAmount) {
		t.Fatal("seller net plus fee must equal order total")
	}

	purchase := f.earnings(t, f.buyer)
	if len(purchase) != 1 || purchase[0].Type != models.EarningExchangePurchase ||
		purchase[0].Currency != "USD" || !purchase[0].Amount.Equal(d("100")) || !purchase[0].Fee.IsZero() {
		t.Fatalf("unexpected buyer earning %+v", purchase)
	}

	after, _ := f.listings.Get(context.Background(), l.ID)
	if !after.Amount.Equal(d("900")) || after.Status != models.ListingActive {
		t.Fatalf("expected listing at 900, got %s/%s", after.Amount, after.Status)
	}
	if got := f.balance(t, f.buyer, "USD"); !got.Equal(d("400")) {
		t.Fatalf("expected buyer balance 400, got %s", got)
	}

	tr, err := f.store.GetTransactionByReference(context.Background(), o.Reference)
	if err != nil {
		t.Fatalf("ledger row: %v", err)
	}
	if tr.Type != models.TxExchange || !tr.PlatformFee.Equal(d("1.8")) || *tr.CounterpartyID != f.seller {
		t.Fatalf("unexpected ledger row %+v", tr)
	}

	if types := f.rec.Types(); len(types) != 1 || types[0] != events.OrderSettled {
		t.Fatalf("expected order.settled event, got %v", types)
	}
}

func TestSettleBindsUnboundPair(t *testing.T) {
	f := newFixture(t, "500")
	l := f.listing(t, listing.NewListing{Amount: d("1000"), Rate: d("0.9")})

	if _, err := f.engine.Settle(context.Background(), Request{
		BuyerID: f.buyer, ListingID: l.ID, Amount: d("50"), FromCurrency: "usd", ToCurrency: "eur",
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	got, _ := f.listings.Get(context.Background(), l.ID)
	if got.FromCurrency != "USD" || got.ToCurrency != "EUR" {
		t.Fatalf("expected USD/EUR, got %s/%s", got.FromCurrency, got.ToCurrency)
	}

	_, err := f.engine.Settle(context.Background(), Request{
		BuyerID: f.buyer, ListingID: l.ID, Amount: d("50"), FromCurrency: "ZAR", ToCurrency: "EUR",
	})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Kind != KindCurrencyMismatch {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}

func TestSettleRejectsWithoutSideEffects(t *testing.T) {
	tests := []struct {
		name      string
		funds     string
		listing   listing.NewListing
		pause     bool
		req       func(f *fixture, l *models.Listing) Request
		wantKind  Kind
		wantBound Bound
		wantErr   error
		wantShort string
	}{
		{
			name:    "currency mismatch",
			funds:   "500",
			listing: listing.NewListing{Amount: d("1000"), Rate: d("0.9"), From: "USD", To: "EUR"},
			req: func(f *fixture, l *models.Listing) Request {
				return Request{BuyerID: f.buyer, ListingID: l.ID, Amount: d("100"), FromCurrency: "ZAR", ToCurrency: "EUR"}
			},
			wantKind: KindCurrencyMismatch,
		},
		{
			name:    "account currency mismatch",
			funds:   "500",
			listing: listing.NewListing{Amount: d("1000"), Rate: d("18"), From: "USD", To: "ZAR"},
			req: func(f *fixture, l *models.Listing) Request {
				return Request{BuyerID: f.buyer, ListingID: l.ID, Amount: d("100"), FromCurrency: "USD", ToCurrency: "ZAR"}
			},
			wantKind: KindAccountCurrencyMismatch,
		},
		{
			name:    "paused listing",
			funds:   "500",
			listing: listing.NewListing{Amount: d("1000"), Rate: d("0.9"), From: "USD", To: "EUR"},
			pause:   true,
			req: func(f *fixture, l *models.Listing) Request {
				return Request{BuyerID: f.buyer, ListingID: l.ID, Amount: d("100"), FromCurrency: "USD", ToCurrency: "EUR"}
			},
			wantErr: ErrListingUnavailable,
		},
		{
			name:    "amount too precise",
			funds:   "500",
			listing: listing.NewListing{Amount: d("1000"), Rate: d("0.9"), From: "USD", To: "EUR"},
			req: func(f *fixture, l *models.Listing) Request {
				return Request{BuyerID: f.buyer, ListingID: l.ID, Amount: d("100.000000001"), FromCurrency: "USD", ToCurrency: "EUR"}
			},
			wantKind: KindInvalidRequest,
		},
		{
			name:    "below minimum",
			funds:   "500",
			listing: listing.NewListing{Amount: d("1000"), Rate: d("0.9"), MinAmount: d("10"), From: "USD", To: "EUR"},
			req: func(f *fixture, l *models.Listing) Request {
				return Request{BuyerID: f.buyer, ListingID: l.ID, Amount: d("5"), FromCurrency: "USD", ToCurrency: "EUR"}
			},
			wantKind:  KindAmountOutOfRange,
			wantBound: BoundMin,
		},
		{
			name:    "above maximum",
			funds:   "500",
			listing: listing.NewListing{Amount: d("1000"), Rate: d("0.9"), MaxAmount: d("200"), From: "USD", To: "EUR"},
			req: func(f *fixture, l *models.Listing) Request {
				return Request{BuyerID: f.buyer, ListingID: l.ID, Amount: d("300"), FromCurrency: "USD", ToCurrency: "EUR"}
			},
			wantKind:  KindAmountOutOfRange,
			wantBound: BoundMax,
		},
		{
			name:    "above inventory",
			funds:   "500",
			listing: listing.NewListing{Amount: d("50"), Rate: d("0.9"), From: "USD", To: "EUR"},
			req: func(f *fixture, l *models.Listing) Request {
				return Request{BuyerID: f.buyer, ListingID: l.ID, Amount: d("60"), FromCurrency: "USD", ToCurrency: "EUR"}
			},
			wantKind:  KindAmountOutOfRange,
			wantBound: BoundAvailable,
		},
		{
			name:    "insufficient balance",
			funds:   "50",
			listing: listing.NewListing{Amount: d("1000"), Rate: d("0.9"), From: "USD", To: "EUR"},
			req: func(f *fixture, l *models.Listing) Request {
				return Request{BuyerID: f.buyer, ListingID: l.ID, Amount: d("100"), FromCurrency: "USD", ToCurrency: "EUR"}
			},
			wantShort: "50",
		},
		{
			name:    "own listing",
			funds:   "500",
			listing: listing.NewListing{Amount: d("1000"), Rate: d("0.9"), From: "USD", To: "EUR"},
			req: func(f *fixture, l *models.Listing) Request {
				return Request{BuyerID: f.seller, ListingID: l.ID, Amount: d("100"), FromCurrency: "USD", ToCurrency: "EUR"}
			},
			wantKind: KindInvalidRequest,
		},
		{
			name:    "zero amount",
			funds:   "500",
			listing: listing.NewListing{Amount: d("1000"), Rate: d("0.9"), From: "USD", To: "EUR"},
			req: func(f *fixture, l *models.Listing) Request {
				return Request{BuyerID: f.buyer, ListingID: l.ID, Amount: decimal.Zero, FromCurrency: "USD", ToCurrency: "EUR"}
			},
			wantKind: KindInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, tt.funds)
			l := f.listing(t, tt.listing)
			if tt.pause {
				if _, err := f.listings.Pause(ctx, l.ID, f.seller); err != nil {
					t.Fatal(err)
				}
			}
			before := f.balance(t, f.buyer, "USD")

			_, err := f.engine.Settle(ctx, tt.req(f, l))

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.wantShort != "":
				var ib *wallet.InsufficientBalanceError
				if !errors.As(err, &ib) || !ib.Shortfall.Equal(d(tt.wantShort)) {
					t.Fatalf("expected shortfall %s, got %v", tt.wantShort, err)
				}
			default:
				var ve *ValidationError
				if !errors.As(err, &ve) || ve.Kind != tt.wantKind || ve.Bound != tt.wantBound {
					t.Fatalf("expected %s/%s, got %v", tt.wantKind, tt.wantBound, err)
				}
			}

			if after := f.balance(t, f.buyer, "USD"); !after.Equal(before) {
				t.Fatalf("balance changed from %s to %s", before, after)
			}
			got, _ := f.listings.Get(ctx, l.ID)
			if !got.Amount.Equal(tt.listing.Amount) {
				t.Fatalf("listing amount changed to %s", got.Amount)
			}
			if n := len(f.earnings(t, f.seller)) + len(f.earnings(t, f.buyer)); n != 0 {
				t.Fatalf("expected no earnings, got %d", n)
			}
			if len(f.rec.Events()) != 0 {
				t.Fatal("no event may be published for a rejected settlement")
			}
		})
	}
}

func TestSettleUnknownListing(t *testing.T) {
	f := newFixture(t, "500")
	_, err := f.engine.Settle(context.Background(), Request{
		BuyerID: f.buyer, ListingID: 999, Amount: d("10"), FromCurrency: "USD", ToCurrency: "EUR",
	})
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSettleExhaustsListing(t *testing.T) {
	f := newFixture(t, "500")
	l := f.usdEur(t, "100")

	if _, err := f.engine.Settle(context.Background(), Request{
		BuyerID: f.buyer, ListingID: l.ID, Amount: d("100"), FromCurrency: "USD", ToCurrency: "EUR",
	}); err != nil {
		t.Fatal(err)
	}
	got, _ := f.listings.Get(context.Background(), l.ID)
	if !got.Amount.IsZero() || got.Status != models.ListingCompleted {
		t.Fatalf("expected completed listing, got %s/%s", got.Amount, got.Status)
	}

	_, err := f.engine.Settle(context.Background(), Request{
		BuyerID: f.buyer, ListingID: l.ID, Amount: d("10"), FromCurrency: "USD", ToCurrency: "EUR",
	})
	if !errors.Is(err, ErrListingUnavailable) {
		t.Fatalf("expected ErrListingUnavailable, got %v", err)
	}
}

func TestSettleConcurrentRequestsConsumeInventoryOnce(t *testing.T) {
	f := newFixture(t, "500")
	l := f.usdEur(t, "100")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Settle(context.Background(), Request{
				BuyerID: f.buyer, ListingID: l.ID, Amount: d("60"), FromCurrency: "USD", ToCurrency: "EUR",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var ve *ValidationError
		okRange := errors.As(err, &ve) && ve.Kind == KindAmountOutOfRange
		if !okRange && !errors.Is(err, ErrListingUnavailable) {
			t.Fatalf("unexpected failure: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one success, got %d", succeeded)
	}

	got, _ := f.listings.Get(context.Background(), l.ID)
	if !got.Amount.Equal(d("40")) {
		t.Fatalf("expected listing at 40, got %s", got.Amount)
	}
	if bal := f.balance(t, f.buyer, "USD"); !bal.Equal(d("440")) {
		t.Fatalf("expected balance 440, got %s", bal)
	}
	if n := len(f.earnings(t, f.seller)); n != 1 {
		t.Fatalf("expected one seller earning, got %d", n)
	}
}

func TestSettleRetriesConflicts(t *testing.T) {
	f := newFixture(t, "500")
	l := f.usdEur(t, "1000")
	f.store.InjectConflicts(2)

	if _, err := f.engine.Settle(context.Background(), Request{
		BuyerID: f.buyer, ListingID: l.ID, Amount: d("100"), FromCurrency: "USD", ToCurrency: "EUR",
	}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if n := len(f.earnings(t, f.seller)); n != 1 {
		t.Fatalf("expected a single committed attempt, got %d seller earnings", n)
	}
	if bal := f.balance(t, f.buyer, "USD"); !bal.Equal(d("400")) {
		t.Fatalf("expected balance 400, got %s", bal)
	}
}

func TestSettleFailsOpaquely(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *db.MemoryStore)
	}{
		{name: "conflicts exhausted", setup: func(s *db.MemoryStore) { s.InjectConflicts(10) }},
		{name: "earning insert fails", setup: func(s *db.MemoryStore) { s.FailOn("InsertEarning", errors.New("disk full")) }},
		{name: "listing update fails", setup: func(s *db.MemoryStore) { s.FailOn("UpdateListing", errors.New("disk full")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "500")
			l := f.usdEur(t, "1000")
			tt.setup(f.store)

			_, err := f.engine.Settle(context.Background(), Request{
				BuyerID: f.buyer, ListingID: l.ID, Amount: d("100"), FromCurrency: "USD", ToCurrency: "EUR",
			})
			if !errors.Is(err, ErrSettlementFailed) {
				t.Fatalf("expected ErrSettlementFailed, got %v", err)
			}
			if err.Error() != ErrSettlementFailed.Error() {
				t.Fatalf("cause leaked: %v", err)
			}

			got, _ := f.listings.Get(context.Background(), l.ID)
			if !got.Amount.Equal(d("1000")) {
				t.Fatalf("listing changed to %s", got.Amount)
			}
			if bal := f.balance(t, f.buyer, "USD"); !bal.Equal(d("500")) {
				t.Fatalf("balance changed to %s", bal)
			}
			if n := len(f.earnings(t, f.seller)); n != 0 {
				t.Fatalf("expected no earnings, got %d", n)
			}
		})
	}
}
