package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logx "marketbot/pkg/logx"
)

// DefaultBaseURL is the CoinGecko markets endpoint.
const DefaultBaseURL = "https://api.coingecko.com/api/v3/coins/markets"

// DefaultTimeout bounds each provider request.
const DefaultTimeout = 20 * time.Second

var negInf = math.Inf(-1)

// ErrProvider wraps any transport error, timeout or non-2xx status from the
// market-data provider. Callers decide whether to surface it or substitute a
// retry notice; this package never retries on its own.
var ErrProvider = errors.New("market data provider unavailable")

type Config struct {
	BaseURL       string
	QuoteCurrency string
	Timeout       time.Duration
}

type Client struct {
	baseURL string
	quote   string
	http    *http.Client
	log     logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.QuoteCurrency) == "" {
		cfg.QuoteCurrency = "usd"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		quote:   strings.ToLower(cfg.QuoteCurrency),
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

func (c *Client) QuoteCurrency() string { return c.quote }

// Fetch pulls the top-10 page and the 250-coin gainer universe.
// Both queries must succeed; the gainer itself may still be absent
// (empty universe is data, not an error).
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	top10, err := c.markets(ctx, 10)
	if err != nil {
		return Snapshot{}, err
	}
	universe, err := c.markets(ctx, 250)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Top10: top10, TopGainer: TopGainer(universe)}, nil
}

func (c *Client) markets(ctx context.Context, perPage int) ([]Coin, error) {
	q := url.Values{}
	q.Set("vs_currency", c.quote)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", "1")
	q.Set("price_change_percentage", "24h")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: http %d", ErrProvider, resp.StatusCode)
	}

	var coins []Coin
	if err := json.NewDecoder(resp.Body).Decode(&coins); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrProvider, err)
	}

	c.log.Debug("markets fetched",
		logx.Int("per_page", perPage),
		logx.Int("count", len(coins)),
		logx.Duration("took", time.Since(start)),
	)
	return coins, nil
}
