package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/models"
)

func newService(t *testing.T) (*Service, *db.MemoryStore, int64) {
	t.Helper()
	store := db.NewMemoryStore()
	u := &models.User{Name: "ana", Currency: "EUR"}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return New(store, zap.NewNop()), store, u.ID
}

func fund(t *testing.T, s *Service, store db.Store, userID int64, currency, amount string) {
	t.Helper()
	err := store.WithTx(context.Background(), func(tx db.Tx) error {
		_, err := s.Credit(context.Background(), tx, userID, currency, decimal.RequireFromString(amount), Meta{Type: models.TxDeposit})
		return err
	})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func TestCheckBalanceWithoutWallet(t *testing.T) {
	s, _, uid := newService(t)
	bal, err := s.CheckBalance(context.Background(), uid, "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bal.IsZero() {
		t.Fatalf("expected zero balance, got %s", bal)
	}
}

func TestDebit(t *testing.T) {
	tests := []struct {
		name      string
		funded    string
		debit     string
		wantErr   bool
		shortfall string
		remaining string
	}{
		{name: "covered", funded: "100", debit: "40", remaining: "60"},
		{name: "exact", funded: "100", debit: "100", remaining: "0"},
		{name: "short", funded: "50", debit: "100", wantErr: true, shortfall: "50", remaining: "50"},
		{name: "no wallet", debit: "10", wantErr: true, shortfall: "10", remaining: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store, uid := newService(t)
			if tt.funded != "" {
				fund(t, s, store, uid, "USD", tt.funded)
			}

			err := store.WithTx(context.Background(), func(tx db.Tx) error {
				_, err := s.Debit(context.Background(), tx, uid, "USD", decimal.RequireFromString(tt.debit), Meta{Type: models.TxExchange})
				return err
			})

			if tt.wantErr {
				var ib *InsufficientBalanceError
				if !errors.As(err, &ib) {
					t.Fatalf("expected InsufficientBalanceError, got %v", err)
				}
				if !ib.Shortfall.Equal(decimal.RequireFromString(tt.shortfall)) {
					t.Fatalf("expected shortfall %s, got %s", tt.shortfall, ib.Shortfall)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			bal, _ := s.CheckBalance(context.Background(), uid, "USD")
			if !bal.Equal(decimal.RequireFromString(tt.remaining)) {
				t.Fatalf("expected balance %s, got %s", tt.remaining, bal)
			}
		})
	}
}

func TestDebitRejectsNonPositive(t *testing.T) {
	s, store, uid := newService(t)
	err := store.WithTx(context.Background(), func(tx db.Tx) error {
		_, err := s.Debit(context.Background(), tx, uid, "USD", decimal.Zero, Meta{})
		return err
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCreditWritesLedgerRow(t *testing.T) {
	s, store, uid := newService(t)
	err := store.WithTx(context.Background(), func(tx db.Tx) error {
		_, err := s.Credit(context.Background(), tx, uid, "EUR", decimal.RequireFromString("25.5"), Meta{
			Type:      models.TxDeposit,
			Reference: "dep-1",
		})
		return err
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}

	got, err := store.GetTransactionByReference(context.Background(), "dep-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Type != models.TxDeposit || !got.Amount.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("unexpected ledger row: %+v", got)
	}

	hist, err := s.History(context.Background(), uid, 0)
	if err != nil || len(hist) != 1 {
		t.Fatalf("expected one history row, got %d (%v)", len(hist), err)
	}
}

func TestSettlementCurrency(t *testing.T) {
	s, _, uid := newService(t)
	cur, err := s.SettlementCurrency(context.Background(), uid)
	if err != nil || cur != "EUR" {
		t.Fatalf("expected EUR, got %q (%v)", cur, err)
	}
	if _, err := s.SettlementCurrency(context.Background(), uid+100); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
