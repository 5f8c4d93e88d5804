// Package market serves display-only exchange rate statistics. Nothing in
// settlement depends on it.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/inodinwetrust10/fxsettle/internal/models"
)

const DefaultBaseURL = "https://open.er-api.com/v6/latest"

var (
	errUnavailable = errors.New("rates unavailable")
	band           = decimal.RequireFromString("0.01")
)

type Stats struct {
	Base        string          `json:"base"`
	Target      string          `json:"target"`
	CurrentRate decimal.Decimal `json:"current_rate"`
	High24h     decimal.Decimal `json:"high24h"`
	Low24h      decimal.Decimal `json:"low24h"`
	Change24h   decimal.Decimal `json:"change24h"`
	IsFallback  bool            `json:"is_fallback,omitempty"`
}

type Currency struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

type entry struct {
	rates   map[string]decimal.Decimal
	fetched time.Time
}

type Client struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration
	log     *zap.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]entry
}

func New(baseURL string, ttl time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		ttl:     ttl,
		log:     log,
		cache:   make(map[string]entry),
	}
}

// Stats24h reports the current rate with a band around it. When the feed
// cannot answer, fallbackRate is reported instead and IsFallback is set.
func (c *Client) Stats24h(ctx context.Context, base, target string, fallbackRate decimal.Decimal) Stats {
	base, target = strings.ToUpper(base), strings.ToUpper(target)
	rates, err := c.rates(ctx, base)
	if err == nil {
		if rate, ok := rates[target]; ok && rate.IsPositive() {
			return around(base, target, rate, false)
		}
		err = fmt.Errorf("%w: no %s rate for %s", errUnavailable, target, base)
	}

	c.log.Warn("using fallback rate",
		zap.String("base", base),
		zap.String("target", target),
		zap.Error(err))
	if !fallbackRate.IsPositive() {
		fallbackRate = decimal.NewFromInt(1)
	}
	return around(base, target, fallbackRate, true)
}

func around(base, target string, rate decimal.Decimal, fallback bool) Stats {
	one := decimal.NewFromInt(1)
	return Stats{
		Base:        base,
		Target:      target,
		CurrentRate: rate,
		High24h:     rate.Mul(one.Add(band)).Round(6),
		Low24h:      rate.Mul(one.Sub(band)).Round(6),
		Change24h:   decimal.Zero,
		IsFallback:  fallback,
	}
}

func (c *Client) rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	if rates, ok := c.cached(base); ok {
		return rates, nil
	}

	// The shared fetch outlives any one caller; the http client timeout bounds it.
	ch := c.group.DoChan(base, func() (any, error) {
		if rates, ok := c.cached(base); ok {
			return rates, nil
		}
		rates, err := c.fetch(context.WithoutCancel(ctx), base)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[base] = entry{rates: rates, fetched: time.Now()}
		c.mu.Unlock()
		return rates, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]decimal.Decimal), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) cached(base string) (map[string]decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hit, ok := c.cache[base]
	if !ok || time.Since(hit.fetched) >= c.ttl {
		return nil, false
	}
	return hit.rates, true
}

type latestResponse struct {
	Result string                     `json:"result"`
	Base   string                     `json:"base_code"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

func (c *Client) fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+base, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", errUnavailable, resp.StatusCode)
	}
	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", errUnavailable, err)
	}
	if body.Result != "" && body.Result != "success" {
		return nil, fmt.Errorf("%w: result %q", errUnavailable, body.Result)
	}
	return body.Rates, nil
}

// Currencies lists the codes the marketplace displays, with names and flags.
func Currencies() []Currency {
	codes := models.SupportedCurrencies()
	out := make([]Currency, 0, len(codes))
	for _, code := range codes {
		out = append(out, Currency{Code: code, Name: models.CurrencyName(code), Flag: models.CurrencyFlag(code)})
	}
	return out
}
