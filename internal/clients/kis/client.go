// Package kis provides a client for the Korea Investment & Securities
// open API, covering domestic (KR) and overseas (US) market data.
package kis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/signum/internal/common"
	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
)

const (
	// DefaultBaseURL is the production API endpoint
	DefaultBaseURL = "https://openapi.koreainvestment.com:9443"

	// DefaultMockBaseURL is the paper-trading API endpoint
	DefaultMockBaseURL = "https://openapivts.koreainvestment.com:29443"

	// DefaultTimeout for API requests
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is requests per second
	DefaultRateLimit = 10
)

// Transaction IDs identifying each API operation
const (
	trDailyChartKR = "FHKST03010100"
	trDailyChartUS = "HHDFS76240000"
	trQuoteKR      = "FHKST01010100"
	trQuoteUS      = "HHDFS00000300"
)

// Endpoint paths
const (
	pathDailyChartKR = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	pathDailyChartUS = "/uapi/overseas-price/v1/quotations/dailyprice"
	pathQuoteKR      = "/uapi/domestic-stock/v1/quotations/inquire-price"
	pathQuoteUS      = "/uapi/overseas-price/v1/quotations/price"
)

// US exchange codes used by the overseas endpoints
const (
	ExchangeCodeNASDAQ = "NAS"
	ExchangeCodeNYSE   = "NYS"
	ExchangeCodeAMEX   = "AMS"
)

const wireDateLayout = "20060102"

// ExchangeCode maps an exchange name to its overseas venue code.
// Unknown exchanges default to NASDAQ.
func ExchangeCode(exchange string) string {
	switch strings.ToUpper(exchange) {
	case "NASDAQ":
		return ExchangeCodeNASDAQ
	case "NYSE":
		return ExchangeCodeNYSE
	case "AMEX":
		return ExchangeCodeAMEX
	default:
		return ExchangeCodeNASDAQ
	}
}

// APIError represents a transport-level API failure
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kis api error (status %d) on %s: %s", e.StatusCode, e.Endpoint, e.Message)
}

// Transient reports whether the failure is worth retrying later
func (e *APIError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// BrokerError represents a business-level rejection: the HTTP exchange
// succeeded but the broker returned a non-zero result code.
type BrokerError struct {
	Code     string
	Message  string
	Endpoint string
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("kis broker error (rt_cd %s) on %s: %s", e.Code, e.Endpoint, e.Message)
}

// Client implements access to the KIS open API
type Client struct {
	baseURL    string
	appKey     string
	appSecret  string
	isMock     bool
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *common.Logger
	tokens     interfaces.TokenStore

	mu    sync.Mutex
	token *models.TokenCache
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithMock selects the paper-trading environment
func WithMock(mock bool) ClientOption {
	return func(c *Client) {
		c.isMock = mock
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimit sets the request rate limit per second
func WithRateLimit(rps int) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTokenStore enables token persistence across restarts
func WithTokenStore(store interfaces.TokenStore) ClientOption {
	return func(c *Client) {
		c.tokens = store
	}
}

// NewClient creates a new KIS API client
func NewClient(appKey, appSecret string, opts ...ClientOption) *Client {
	c := &Client{
		appKey:     appKey,
		appSecret:  appSecret,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     common.NewDefaultLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == "" {
		if c.isMock {
			c.baseURL = DefaultMockBaseURL
		} else {
			c.baseURL = DefaultBaseURL
		}
	}

	return c
}

// GetDailyOHLCV retrieves daily bars for a symbol in ascending date order
func (c *Client) GetDailyOHLCV(ctx context.Context, symbol, market, exchange string, opts ...interfaces.OHLCVOption) ([]models.DailyBar, error) {
	params := interfaces.OHLCVParams{Period: "D"}
	for _, opt := range opts {
		opt(&params)
	}
	if params.To.IsZero() {
		params.To = time.Now()
	}
	if params.From.IsZero() {
		params.From = params.To.AddDate(0, 0, -100)
	}

	if market == models.MarketUS {
		return c.getOverseasDaily(ctx, symbol, exchange, params)
	}
	return c.getDomesticDaily(ctx, symbol, params)
}

func (c *Client) getDomesticDaily(ctx context.Context, symbol string, params interfaces.OHLCVParams) ([]models.DailyBar, error) {
	values := url.Values{}
	values.Set("FID_COND_MRKT_DIV_CODE", "J")
	values.Set("FID_INPUT_ISCD", symbol)
	values.Set("FID_INPUT_DATE_1", params.From.Format(wireDateLayout))
	values.Set("FID_INPUT_DATE_2", params.To.Format(wireDateLayout))
	values.Set("FID_PERIOD_DIV_CODE", params.Period)
	values.Set("FID_ORG_ADJ_PRC", "0")

	var resp dailyChartKRResponse
	if err := c.get(ctx, pathDailyChartKR, trDailyChartKR, values, &resp); err != nil {
		return nil, err
	}
	if resp.RtCd != "0" {
		return nil, &BrokerError{Code: resp.RtCd, Message: resp.Msg1, Endpoint: pathDailyChartKR}
	}

	bars := make([]models.DailyBar, 0, len(resp.Output2))
	for _, row := range resp.Output2 {
		bar, err := row.toBar()
		if err != nil {
			c.logger.Debug().Str("symbol", symbol).Str("date", row.Date).Err(err).Msg("Skipping unparseable KR bar")
			continue
		}
		bars = append(bars, bar)
	}

	sortBarsAscending(bars)
	return bars, nil
}

func (c *Client) getOverseasDaily(ctx context.Context, symbol, exchange string, params interfaces.OHLCVParams) ([]models.DailyBar, error) {
	values := url.Values{}
	values.Set("AUTH", "")
	values.Set("EXCD", ExchangeCode(exchange))
	values.Set("SYMB", symbol)
	values.Set("GUBN", params.Period)
	values.Set("BYMD", "")
	values.Set("MODP", "0")

	var resp dailyChartUSResponse
	if err := c.get(ctx, pathDailyChartUS, trDailyChartUS, values, &resp); err != nil {
		return nil, err
	}
	if resp.RtCd != "0" {
		return nil, &BrokerError{Code: resp.RtCd, Message: resp.Msg1, Endpoint: pathDailyChartUS}
	}

	// The overseas endpoint has no date-range inputs; it returns the
	// most recent bars, so the requested window is applied here.
	from := models.DateOnly(params.From)
	to := models.DateOnly(params.To)

	bars := make([]models.DailyBar, 0, len(resp.Output2))
	for _, row := range resp.Output2 {
		bar, err := row.toBar()
		if err != nil {
			c.logger.Debug().Str("symbol", symbol).Str("date", row.Date).Err(err).Msg("Skipping unparseable US bar")
			continue
		}
		if bar.Date.Before(from) || bar.Date.After(to) {
			continue
		}
		bars = append(bars, bar)
	}

	sortBarsAscending(bars)
	return bars, nil
}

// GetQuote retrieves the current price snapshot for a symbol
func (c *Client) GetQuote(ctx context.Context, symbol, market, exchange string) (*models.Quote, error) {
	if market == models.MarketUS {
		return c.getOverseasQuote(ctx, symbol, exchange)
	}
	return c.getDomesticQuote(ctx, symbol)
}

func (c *Client) getDomesticQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	values := url.Values{}
	values.Set("FID_COND_MRKT_DIV_CODE", "J")
	values.Set("FID_INPUT_ISCD", symbol)

	var resp quoteKRResponse
	if err := c.get(ctx, pathQuoteKR, trQuoteKR, values, &resp); err != nil {
		return nil, err
	}
	if resp.RtCd != "0" {
		return nil, &BrokerError{Code: resp.RtCd, Message: resp.Msg1, Endpoint: pathQuoteKR}
	}

	current, err := parsePrice(resp.Output.Price)
	if err != nil {
		return nil, fmt.Errorf("parse KR quote price: %w", err)
	}
	change, err := parsePrice(resp.Output.Change)
	if err != nil {
		return nil, fmt.Errorf("parse KR quote change: %w", err)
	}
	changePct, err := parsePrice(resp.Output.ChangeRate)
	if err != nil {
		return nil, fmt.Errorf("parse KR quote change rate: %w", err)
	}

	return &models.Quote{
		Symbol:        symbol,
		Current:       current,
		PreviousClose: current - change,
		Change:        change,
		ChangePct:     changePct,
		Timestamp:     time.Now().UTC(),
	}, nil
}

func (c *Client) getOverseasQuote(ctx context.Context, symbol, exchange string) (*models.Quote, error) {
	values := url.Values{}
	values.Set("AUTH", "")
	values.Set("EXCD", ExchangeCode(exchange))
	values.Set("SYMB", symbol)

	var resp quoteUSResponse
	if err := c.get(ctx, pathQuoteUS, trQuoteUS, values, &resp); err != nil {
		return nil, err
	}
	if resp.RtCd != "0" {
		return nil, &BrokerError{Code: resp.RtCd, Message: resp.Msg1, Endpoint: pathQuoteUS}
	}

	current, err := parsePrice(resp.Output.Last)
	if err != nil {
		return nil, fmt.Errorf("parse US quote last: %w", err)
	}
	prev, err := parsePrice(resp.Output.Base)
	if err != nil {
		return nil, fmt.Errorf("parse US quote base: %w", err)
	}
	change, err := parsePrice(resp.Output.Diff)
	if err != nil {
		return nil, fmt.Errorf("parse US quote diff: %w", err)
	}
	changePct, err := parsePrice(resp.Output.Rate)
	if err != nil {
		return nil, fmt.Errorf("parse US quote rate: %w", err)
	}

	return &models.Quote{
		Symbol:        symbol,
		Current:       current,
		PreviousClose: prev,
		Change:        change,
		ChangePct:     changePct,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// get performs an authenticated GET request against the API
func (c *Client) get(ctx context.Context, path, trID string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("content-type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	req.Header.Set("tr_id", trID)

	c.logger.Debug().Str("path", path).Str("tr_id", trID).Msg("KIS API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sortBarsAscending(bars []models.DailyBar) {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
}

func parsePrice(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Compile-time interface check
var _ interfaces.BrokerClient = (*Client)(nil)

// dailyChartKRResponse is the domestic daily chart payload
type dailyChartKRResponse struct {
	RtCd    string       `json:"rt_cd"`
	Msg1    string       `json:"msg1"`
	Output2 []dailyRowKR `json:"output2"`
}

type dailyRowKR struct {
	Date   string `json:"stck_bsop_date"`
	Open   string `json:"stck_oprc"`
	High   string `json:"stck_hgpr"`
	Low    string `json:"stck_lwpr"`
	Close  string `json:"stck_clpr"`
	Volume string `json:"acml_vol"`
}

func (r dailyRowKR) toBar() (models.DailyBar, error) {
	date, err := time.Parse(wireDateLayout, r.Date)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad date %q: %w", r.Date, err)
	}
	open, err := parsePrice(r.Open)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad open: %w", err)
	}
	high, err := parsePrice(r.High)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad high: %w", err)
	}
	low, err := parsePrice(r.Low)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad low: %w", err)
	}
	closePrice, err := parsePrice(r.Close)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad close: %w", err)
	}
	volume, err := strconv.ParseInt(strings.TrimSpace(r.Volume), 10, 64)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad volume: %w", err)
	}

	return models.DailyBar{
		Date:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

// dailyChartUSResponse is the overseas daily chart payload
type dailyChartUSResponse struct {
	RtCd    string       `json:"rt_cd"`
	Msg1    string       `json:"msg1"`
	Output2 []dailyRowUS `json:"output2"`
}

type dailyRowUS struct {
	Date   string `json:"xymd"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"clos"`
	Volume string `json:"tvol"`
}

func (r dailyRowUS) toBar() (models.DailyBar, error) {
	date, err := time.Parse(wireDateLayout, r.Date)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad date %q: %w", r.Date, err)
	}
	open, err := parsePrice(r.Open)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad open: %w", err)
	}
	high, err := parsePrice(r.High)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad high: %w", err)
	}
	low, err := parsePrice(r.Low)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad low: %w", err)
	}
	closePrice, err := parsePrice(r.Close)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad close: %w", err)
	}
	volume, err := strconv.ParseInt(strings.TrimSpace(r.Volume), 10, 64)
	if err != nil {
		return models.DailyBar{}, fmt.Errorf("bad volume: %w", err)
	}

	return models.DailyBar{
		Date:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

// quoteKRResponse is the domestic quote payload
type quoteKRResponse struct {
	RtCd   string      `json:"rt_cd"`
	Msg1   string      `json:"msg1"`
	Output quoteDataKR `json:"output"`
}

type quoteDataKR struct {
	Price      string `json:"stck_prpr"`
	Change     string `json:"prdy_vrss"`
	ChangeRate string `json:"prdy_ctrt"`
}

// quoteUSResponse is the overseas quote payload
type quoteUSResponse struct {
	RtCd   string      `json:"rt_cd"`
	Msg1   string      `json:"msg1"`
	Output quoteDataUS `json:"output"`
}

type quoteDataUS struct {
	Last string `json:"last"`
	Base string `json:"base"`
	Diff string `json:"diff"`
	Rate string `json:"rate"`
}
