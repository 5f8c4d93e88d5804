package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/inodinwetrust10/fxsettle/internal/models"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := &models.User{Name: "bo", Currency: "USD"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx Tx) error {
		w, err := tx.EnsureWallet(ctx, u.ID, "USD")
		if err != nil {
			return err
		}
		if err := tx.UpdateWalletBalance(ctx, w.ID, decimal.NewFromInt(10)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetWallet(ctx, u.ID, "USD", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wallet to be rolled back, got %v", err)
	}
}

func TestInsertTransactionDuplicateReference(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	tr := &models.Transaction{UserID: 1, Reference: "ref-1", Type: models.TxDeposit}
	if err := s.InsertTransaction(ctx, tr); err != nil {
		t.Fatal(err)
	}
	dup := &models.Transaction{UserID: 1, Reference: "ref-1", Type: models.TxDeposit}
	if err := s.InsertTransaction(ctx, dup); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
}

func TestRunInTxRetriesConflicts(t *testing.T) {
	tests := []struct {
		name      string
		conflicts int
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{name: "no conflict", conflicts: 0, attempts: 3, wantCalls: 1},
		{name: "recovers", conflicts: 2, attempts: 3, wantCalls: 3},
		{name: "exhausted", conflicts: 5, attempts: 3, wantCalls: 3, wantErr: ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			s.InjectConflicts(tt.conflicts)
			calls := 0
			err := RunInTx(context.Background(), s, tt.attempts, func(tx Tx) error {
				calls++
				return nil
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if calls != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, calls)
			}
		})
	}
}

func TestRunInTxDoesNotRetryOtherErrors(t *testing.T) {
	s := NewMemoryStore()
	calls := 0
	boom := errors.New("boom")
	err := RunInTx(context.Background(), s, 3, func(tx Tx) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("expected a single failing call, got %d (%v)", calls, err)
	}
}

func TestBindListingPairFirstWriterWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	l := &models.Listing{SellerID: 1, Amount: decimal.NewFromInt(100), Status: models.ListingActive}
	if err := s.InsertListing(ctx, l); err != nil {
		t.Fatal(err)
	}

	bound, err := s.BindListingPair(ctx, l.ID, "USD", "EUR")
	if err != nil || !bound {
		t.Fatalf("expected first bind to win, got %v (%v)", bound, err)
	}
	bound, err = s.BindListingPair(ctx, l.ID, "EUR", "USD")
	if err != nil || bound {
		t.Fatalf("expected second bind to be ignored, got %v (%v)", bound, err)
	}
	got, _ := s.GetListing(ctx, l.ID, false)
	if got.FromCurrency != "USD" || got.ToCurrency != "EUR" {
		t.Fatalf("unexpected pair %s/%s", got.FromCurrency, got.ToCurrency)
	}
}

func TestListEarningsOldestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, amt := range []int64{30, 10, 20} {
		e := &models.Earning{
			UserID:    7,
			Currency:  "EUR",
			Amount:    decimal.NewFromInt(amt),
			NetAmount: decimal.NewFromInt(amt),
			Type:      models.EarningExchangeSale,
			Status:    models.EarningAvailable,
			CreatedAt: base.Add(time.Duration(2-i) * time.Hour),
		}
		if err := s.InsertEarning(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListEarnings(ctx, EarningFilter{UserID: 7, Currency: "EUR", Status: models.EarningAvailable})
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{20, 10, 30}
	for i, e := range got {
		if !e.Amount.Equal(decimal.NewFromInt(want[i])) {
			t.Fatalf("position %d: expected %d, got %s", i, want[i], e.Amount)
		}
	}

	sum, _ := s.SumEarnings(ctx, 7, "EUR", models.EarningAvailable)
	if !sum.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected sum 60, got %s", sum)
	}
}

func TestFailOn(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("boom")
	s.FailOn("InsertOrder", boom)
	if err := s.InsertOrder(context.Background(), &models.Order{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	s.FailOn("InsertOrder", nil)
	if err := s.InsertOrder(context.Background(), &models.Order{Reference: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPayoutMethodsKeepOneDefault(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	first := &models.PayoutMethod{UserID: 3, Type: models.PayoutPayPal, Details: models.PayPal{Email: "a@example.com", AccountName: "A"}, IsDefault: true, Currency: "USD"}
	if err := s.InsertPayoutMethod(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &models.PayoutMethod{UserID: 3, Type: models.PayoutPayPal, Details: models.PayPal{Email: "b@example.com", AccountName: "B"}, IsDefault: true, Currency: "USD"}
	if err := s.InsertPayoutMethod(ctx, second); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for a second default, got %v", err)
	}

	second.IsDefault = false
	if err := s.InsertPayoutMethod(ctx, second); err != nil {
		t.Fatal(err)
	}
	second.Currency = "EUR"
	if err := s.UpdatePayoutMethod(ctx, second); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetPayoutMethod(ctx, second.ID)
	if err != nil || got.Currency != "EUR" || got.IsDefault {
		t.Fatalf("unexpected method %+v (%v)", got, err)
	}
}
