package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTP.Addr != ":8080" || c.Settlement.MaxRetries != 3 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.Fees.PayoutPct.String() != "3" || c.Payout.CrossBorderRate.String() != "1.1" {
		t.Fatalf("unexpected fee defaults %+v", c.Fees)
	}
	if c.Payout.DisburseTimeout != 15*time.Second || c.Market.TTL != time.Hour {
		t.Fatalf("unexpected durations %v %v", c.Payout.DisburseTimeout, c.Market.TTL)
	}
	if len(c.Kafka.Brokers) != 0 {
		t.Fatalf("expected no brokers, got %v", c.Kafka.Brokers)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x@db/fx")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("FEES_BUYER_PCT", "1.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SETTLEMENT_MAX_RETRIES", "5")

	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if c.DB.DSN != "postgres://x@db/fx" || c.HTTP.Addr != ":9090" {
		t.Fatalf("aliases not applied: %+v", c)
	}
	if c.Fees.BuyerPct.String() != "1.5" || c.Settlement.MaxRetries != 5 {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", c.Kafka.Brokers)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "fees:\n  seller_commission_pct: \"5\"\nmarket:\n  ttl: 10m\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Fees.SellerCommissionPct.String() != "5" || c.Market.TTL != 10*time.Minute {
		t.Fatalf("file values not applied: %+v", c)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "bad decimal", key: "FEES_PAYOUT_PCT", val: "three"},
		{name: "negative", key: "PAYOUT_CROSS_BORDER_RATE", val: "-1"},
		{name: "no retries", key: "SETTLEMENT_MAX_RETRIES", val: "0"},
		{name: "rate too precise", key: "PAYOUT_CROSS_BORDER_RATE", val: "1.1234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(t.TempDir()); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
