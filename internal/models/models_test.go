package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFeeJSONIncludesTotal(t *testing.T) {
	f := Fee{
		ID:               4,
		OrderID:          9,
		ListingFee:       decimal.NewFromInt(1),
		SellerCommission: decimal.NewFromInt(5),
		BuyerFee:         decimal.NewFromInt(2),
		PayoutFee:        decimal.RequireFromString("3.5"),
	}
	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["total_fees"] != "11.5" || got["payout_fee"] != "3.5" || got["order_id"] != float64(9) {
		t.Fatalf("unexpected fee JSON %s", raw)
	}
}

func TestFitsScale(t *testing.T) {
	tests := []struct {
		in     string
		places int32
		want   bool
	}{
		{in: "12.34567891", places: AmountScale, want: true},
		{in: "12.345678912", places: AmountScale, want: false},
		{in: "5.100000000000", places: AmountScale, want: true},
		{in: "2.25", places: PercentScale, want: true},
		{in: "2.255", places: PercentScale, want: false},
		{in: "-0.001", places: PercentScale, want: false},
	}
	for _, tt := range tests {
		if got := FitsScale(decimal.RequireFromString(tt.in), tt.places); got != tt.want {
			t.Errorf("FitsScale(%s, %d) = %v, want %v", tt.in, tt.places, got, tt.want)
		}
	}
}
