package payout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/models"
)

func defaults(t *testing.T, f *fixture, user int64) []int64 {
	t.Helper()
	ms, err := f.svc.ListMethods(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for _, m := range ms {
		if m.IsDefault {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func TestFirstMethodBecomesDefault(t *testing.T) {
	f := newFixture(t)
	first := f.method(t, f.user, "EUR")
	if !first.IsDefault {
		t.Fatal("first method must be the default")
	}
	second := f.method(t, f.user, "USD")
	if second.IsDefault {
		t.Fatal("second method must not take the default implicitly")
	}
	if got := defaults(t, f, f.user); len(got) != 1 || got[0] != first.ID {
		t.Fatalf("expected %d as only default, got %v", first.ID, got)
	}
}

func TestSetDefaultFlipsPrevious(t *testing.T) {
	f := newFixture(t)
	old := f.method(t, f.user, "EUR")
	next := f.method(t, f.user, "EUR")

	if got := defaults(t, f, f.user); len(got) != 1 || got[0] != old.ID {
		t.Fatalf("before: expected %d as only default, got %v", old.ID, got)
	}

	m, err := f.svc.SetDefault(context.Background(), next.ID, f.user)
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsDefault {
		t.Fatal("expected returned method to be default")
	}
	if got := defaults(t, f, f.user); len(got) != 1 || got[0] != next.ID {
		t.Fatalf("after: expected %d as only default, got %v", next.ID, got)
	}

	// Setting it again is a no-op.
	if _, err := f.svc.SetDefault(context.Background(), next.ID, f.user); err != nil {
		t.Fatal(err)
	}
	if got := defaults(t, f, f.user); len(got) != 1 {
		t.Fatalf("expected one default, got %v", got)
	}
}

func TestCreateDefaultMethodFlipsPrevious(t *testing.T) {
	f := newFixture(t)
	old := f.method(t, f.user, "EUR")
	m, err := f.svc.CreateMethod(context.Background(), NewMethod{
		UserID:    f.user,
		Type:      models.PayoutMobileMoney,
		Details:   json.RawMessage(`{"provider":"Unitel","phone_number":"+244923000000","account_name":"Ana"}`),
		Currency:  "AOA",
		IsDefault: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := defaults(t, f, f.user); len(got) != 1 || got[0] != m.ID || got[0] == old.ID {
		t.Fatalf("expected %d as only default, got %v", m.ID, got)
	}
}

func TestUpdateMethod(t *testing.T) {
	f := newFixture(t)
	m := f.method(t, f.user, "EUR")
	no := false

	tests := []struct {
		name string
		id   int64
		upd  MethodUpdate
		want error
	}{
		{name: "unset only default", id: m.ID, upd: MethodUpdate{UserID: f.user, IsDefault: &no}, want: ErrDefaultRequired},
		{name: "bad details", id: m.ID, upd: MethodUpdate{UserID: f.user, Details: json.RawMessage(`{"email":"nope","account_name":"A"}`)}, want: models.ErrInvalidPayoutDetails},
		{name: "bad currency", id: m.ID, upd: MethodUpdate{UserID: f.user, Currency: "ZZZZ"}, want: models.ErrInvalidCurrency},
		{name: "other user", id: m.ID, upd: MethodUpdate{UserID: f.other, Currency: "USD"}, want: ErrMethodNotOwned},
		{name: "missing", id: 999, upd: MethodUpdate{UserID: f.user}, want: db.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.UpdateMethod(context.Background(), tt.id, tt.upd); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	got, err := f.svc.UpdateMethod(context.Background(), m.ID, MethodUpdate{
		UserID:   f.user,
		Details:  json.RawMessage(`{"email":"new@example.com","account_name":"Ana"}`),
		Currency: "usd",
	})
	if err != nil {
		t.Fatal(err)
	}
	pp, ok := got.Details.(models.PayPal)
	if !ok || pp.Email != "new@example.com" || got.Currency != "USD" {
		t.Fatalf("unexpected method %+v", got)
	}
}

func TestCreateMethodValidatesDetails(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		typ     models.PayoutType
		details string
	}{
		{name: "unknown type", typ: "cheque", details: `{}`},
		{name: "iban", typ: models.PayoutBankTransfer, details: `{"account_holder_name":"A","account_number":"1","bank_name":"B","iban":"nope"}`},
		{name: "missing", typ: models.PayoutPayPal, details: ``},
		{name: "not object", typ: models.PayoutPayPal, details: `[1]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateMethod(context.Background(), NewMethod{
				UserID: f.user, Type: tt.typ, Details: json.RawMessage(tt.details), Currency: "EUR",
			})
			if !errors.Is(err, models.ErrInvalidPayoutDetails) {
				t.Fatalf("expected ErrInvalidPayoutDetails, got %v", err)
			}
		})
	}
	if ms, _ := f.svc.ListMethods(context.Background(), f.user); len(ms) != 0 {
		t.Fatalf("expected no methods, got %d", len(ms))
	}
}
