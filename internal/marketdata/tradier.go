package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/retry"
)

// StrikeMatchEpsilon is the tolerance for matching chain strikes.
const StrikeMatchEpsilon = 1e-3

// VolatilityIndexSymbol is the quote symbol used for market conditions.
const VolatilityIndexSymbol = "VIX"

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

// TradierProvider reads quotes and option chains from the Tradier market
// data API.
type TradierProvider struct {
	client  *http.Client
	retry   *retry.Client
	logger  logrus.FieldLogger
	apiKey  string
	baseURL string
	sandbox bool
}

// NewTradierProvider creates a provider. An empty baseURL picks the
// production or sandbox endpoint.
func NewTradierProvider(apiKey string, sandbox bool, baseURL string, timeout time.Duration,
	logger logrus.FieldLogger) *TradierProvider {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &TradierProvider{
		client:  &http.Client{Timeout: timeout},
		retry:   retry.NewClient(logger),
		logger:  logger,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		sandbox: sandbox,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierProvider) WithHTTPClient(c *http.Client) *TradierProvider {
	if c != nil {
		t.client = c
	}
	return t
}

// WithRetry replaces the retry policy.
func (t *TradierProvider) WithRetry(c *retry.Client) *TradierProvider {
	if c != nil {
		t.retry = c
	}
	return t
}

// Ensure TradierProvider implements Provider at compile time.
var _ Provider = (*TradierProvider)(nil)

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type optionChainResponse struct {
	Options struct {
		Option singleOrArray[chainOption] `json:"option"`
	} `json:"options"`
}

type chainOption struct {
	Greeks     *greeks `json:"greeks,omitempty"`
	Symbol     string  `json:"symbol"`
	OptionType string  `json:"option_type"`
	Underlying string  `json:"underlying"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Last       float64 `json:"last"`
	Strike     float64 `json:"strike"`
}

type greeks struct {
	Delta float64 `json:"delta"`
	MidIV float64 `json:"mid_iv"`
	SmvIV float64 `json:"smv_vol"`
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[quoteItem] `json:"quote"`
	} `json:"quotes"`
}

type quoteItem struct {
	Symbol           string  `json:"symbol"`
	Last             float64 `json:"last"`
	Bid              float64 `json:"bid"`
	Ask              float64 `json:"ask"`
	ChangePercentage float64 `json:"change_percentage"`
}

func (q quoteItem) price() float64 {
	if q.Last > 0 {
		return q.Last
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return 0
}

// GetOptionMetrics prices one contract from the quote and the chain.
func (t *TradierProvider) GetOptionMetrics(ctx context.Context, underlying string, expiration time.Time,
	strike float64, side models.OptionSide) (*models.OptionMetrics, error) {
	quotes, err := t.getQuotes(ctx, underlying)
	if err != nil {
		return nil, err
	}
	spot := 0.0
	for _, q := range quotes {
		if strings.EqualFold(q.Symbol, underlying) {
			spot = q.price()
		}
	}
	if spot <= 0 {
		return nil, fmt.Errorf("%w: no quote for %s", ErrNoData, underlying)
	}

	chain, err := t.getOptionChain(ctx, underlying, expiration.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	for _, opt := range chain {
		if opt.OptionType != string(side) || math.Abs(opt.Strike-strike) > StrikeMatchEpsilon {
			continue
		}
		return buildMetrics(opt, spot, side), nil
	}
	return nil, fmt.Errorf("%w: %s %s %.2f %s not in chain", ErrNoData,
		underlying, expiration.Format("2006-01-02"), strike, side)
}

func buildMetrics(opt chainOption, spot float64, side models.OptionSide) *models.OptionMetrics {
	price := opt.Last
	if opt.Bid > 0 && opt.Ask > 0 {
		price = (opt.Bid + opt.Ask) / 2
	}

	intrinsic := math.Max(0, spot-opt.Strike)
	if side == models.OptionSidePut {
		intrinsic = math.Max(0, opt.Strike-spot)
	}

	iv := 0.0
	if opt.Greeks != nil {
		iv = opt.Greeks.MidIV
		if iv == 0 {
			iv = opt.Greeks.SmvIV
		}
		iv *= 100
	}

	return &models.OptionMetrics{
		Price:             price,
		UnderlyingPrice:   spot,
		ImpliedVolatility: iv,
		IntrinsicValue:    intrinsic,
		TimeValue:         math.Max(0, price-intrinsic),
	}
}

// GetMarketConditions classifies the VIX print and the underlying's daily move.
func (t *TradierProvider) GetMarketConditions(ctx context.Context, underlying string) (*models.MarketConditions, error) {
	quotes, err := t.getQuotes(ctx, VolatilityIndexSymbol, underlying)
	if err != nil {
		return nil, err
	}
	mc := &models.MarketConditions{Trend: models.TrendSideways}
	found := false
	for _, q := range quotes {
		switch {
		case strings.EqualFold(q.Symbol, VolatilityIndexSymbol):
			mc.VIX = q.price()
			found = true
		case strings.EqualFold(q.Symbol, underlying):
			mc.Trend = models.ClassifyTrend(q.ChangePercentage)
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: no %s quote", ErrNoData, VolatilityIndexSymbol)
	}
	mc.VixLevel = models.ClassifyVIX(mc.VIX)
	return mc, nil
}

func (t *TradierProvider) getQuotes(ctx context.Context, symbols ...string) ([]quoteItem, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	resp, err := retry.Do(ctx, t.retry, "quotes "+params.Get("symbols"),
		func(ctx context.Context) (*quotesResponse, error) {
			var r quotesResponse
			if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &r); err != nil {
				return nil, err
			}
			return &r, nil
		})
	if err != nil {
		return nil, err
	}
	return []quoteItem(resp.Quotes.Quote), nil
}

func (t *TradierProvider) getOptionChain(ctx context.Context, symbol, expiration string) ([]chainOption, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration)
	params.Set("greeks", "true")
	endpoint := t.baseURL + "/markets/options/chains?" + params.Encode()

	resp, err := retry.Do(ctx, t.retry, "chain "+symbol+" "+expiration,
		func(ctx context.Context) (*optionChainResponse, error) {
			var r optionChainResponse
			if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &r); err != nil {
				return nil, err
			}
			return &r, nil
		})
	if err != nil {
		return nil, err
	}
	return []chainOption(resp.Options.Option), nil
}

// makeRequestCtx makes an HTTP request with context support for timeout/cancellation
func (t *TradierProvider) makeRequestCtx(ctx context.Context, method, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "options-advisor/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.WithError(err).Debug("Failed to close response body")
		}
	}()

	if remaining := resp.Header.Get("X-Ratelimit-Available"); remaining != "" && t.sandbox {
		t.logger.Debugf("Rate limit remaining: %s", remaining)
	}

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s (retry-after: %s)", method, endpoint, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
