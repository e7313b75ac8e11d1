package futures_usdt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/pkg/exchanges/common"
)

// Config holds Binance USDT-M futures credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64  // ms
	BaseURL    string // overrides the venue URL, used by tests
	// TakerFee estimates commission when the fills of an order cannot be read back.
	TakerFee float64
}

// Client handles Binance USDT-M futures.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	clock      *common.ServerClock
	weight     *common.WeightBudget
	log        zerolog.Logger

	rulesMu      sync.RWMutex
	rules        map[string]common.SymbolRules
	rulesFetched time.Time
	rulesTTL     time.Duration
}

// NewClient creates a new USDT-M futures client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	base := "https://fapi.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binancefuture.com"
	}
	if cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.TakerFee <= 0 {
		cfg.TakerFee = defaultTakerFee
	}
	log = log.With().Str("component", "binance-usdt").Logger()
	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
		rulesTTL:   time.Hour,
	}
	c.clock = common.NewServerClock(c.GetServerTime, 30*time.Minute, log)
	c.weight = common.NewWeightBudget(2400, time.Minute, 20, 10, log)
	return c
}

// StartTimeSync keeps request timestamps aligned with the server until ctx is done.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.clock.Run(ctx)
}

func (c *Client) now() int64 {
	return c.clock.Now()
}

func (c *Client) requireKeys() error {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return errors.New("binance usdt futures: API key/secret required")
	}
	return nil
}

func (c *Client) signedParams() url.Values {
	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	return params
}

// SubmitOrder places an order.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if err := c.requireKeys(); err != nil {
		return common.OrderResult{}, err
	}
	params := c.signedParams()
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", strings.ToUpper(string(req.Type)))
	params.Set("quantity", req.Quantity)
	params.Set("newOrderRespType", "RESULT")

	if req.Type == common.OrderTypeLimit {
		params.Set("price", req.Price)
		params.Set("timeInForce", string(toBinanceTIF(req.TimeInForce)))
	}
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return common.OrderResult{}, err
	}
	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order: %w", err)
	}
	if resp.OrderID == 0 {
		return common.OrderResult{}, fmt.Errorf("submit order %s: %w", req.Symbol, common.ErrEmptyResponse)
	}
	res := common.OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		ClientID:        resp.ClientOrderID,
		Status:          mapStatus(resp.Status),
		ExecutedQty:     parseFloat(resp.ExecutedQty),
		AvgPrice:        parseFloat(resp.AvgPrice),
		UpdateTime:      time.UnixMilli(resp.UpdateTime),
	}
	if res.ExecutedQty > 0 {
		res.Commission = c.FillCommission(ctx, req.Symbol, res.ExchangeOrderID, res.ExecutedQty, res.AvgPrice)
	}
	return res, nil
}

// GetUserTrades returns the account's fills for symbol, narrowed to one order when orderID is set.
func (c *Client) GetUserTrades(ctx context.Context, symbol, orderID string) ([]UserTrade, error) {
	if err := c.requireKeys(); err != nil {
		return nil, err
	}
	params := c.signedParams()
	params.Set("symbol", symbol)
	if orderID != "" {
		params.Set("orderId", orderID)
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/userTrades", params)
	if err != nil {
		return nil, err
	}
	var trades []UserTrade
	if err := json.Unmarshal(body, &trades); err != nil {
		return nil, fmt.Errorf("decode user trades: %w", err)
	}
	return trades, nil
}

// FillCommission sums the commission charged on an order's fills. When the
// fills cannot be read it estimates executedQty*avgPrice at the taker rate.
func (c *Client) FillCommission(ctx context.Context, symbol, orderID string, executedQty, avgPrice float64) float64 {
	trades, err := c.GetUserTrades(ctx, symbol, orderID)
	if err == nil && len(trades) > 0 {
		return sumCommission(trades)
	}
	est := estimateCommission(executedQty, avgPrice, c.cfg.TakerFee)
	ev := c.log.Warn().Str("symbol", symbol).Str("order_id", orderID).Float64("estimate", est)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("fills unavailable, commission estimated")
	return est
}

// CancelOrder cancels an order by symbol and ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	if err := c.requireKeys(); err != nil {
		return err
	}
	params := c.signedParams()
	params.Set("symbol", symbol)
	if exchangeOrderID != "" {
		params.Set("orderId", exchangeOrderID)
	}
	_, err := c.doSigned(ctx, http.MethodDelete, "/fapi/v1/order", params)
	return err
}

// GetAccountInfo returns futures account balances.
func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	if err := c.requireKeys(); err != nil {
		return nil, err
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/account", c.signedParams())
	if err != nil {
		return nil, err
	}
	var info AccountInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode account info: %w", err)
	}
	return &info, nil
}

// GetPositions returns position risk view.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]PositionRisk, error) {
	if err := c.requireKeys(); err != nil {
		return nil, err
	}
	params := c.signedParams()
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, err
	}
	var pos []PositionRisk
	if err := json.Unmarshal(body, &pos); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return pos, nil
}

// GetOpenOrders returns open orders; symbol optional.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	if err := c.requireKeys(); err != nil {
		return nil, err
	}
	params := c.signedParams()
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/openOrders", params)
	if err != nil {
		return nil, err
	}
	var orders []OpenOrder
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	return orders, nil
}

// SetLeverage sets leverage for a symbol. "No need to change" answers are success.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := c.requireKeys(); err != nil {
		return err
	}
	params := c.signedParams()
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	_, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/leverage", params)
	if err != nil && isNoChange(err) {
		c.log.Debug().Str("symbol", symbol).Int("leverage", leverage).Msg("leverage already set")
		return nil
	}
	return err
}

// ExchangeInfo returns the published filters for every contract.
func (c *Client) ExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	var info ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}
	return &info, nil
}

// GetTickerPrice returns the last traded price.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doPublic(ctx, "/fapi/v1/ticker/price", params)
	if err != nil {
		return 0, err
	}
	var res tickerResp
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	price := parseFloat(res.Price)
	if price <= 0 {
		return 0, fmt.Errorf("ticker %s: %w", symbol, common.ErrEmptyResponse)
	}
	return price, nil
}

// GetServerTime fetches futures server time.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/time", nil)
	if err != nil {
		return 0, err
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, err
	}
	return res.ServerTime, nil
}

func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req)
}

// doSigned handles signing and sending requests.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	sig := sign(params.Encode(), c.cfg.APISecret)
	params.Set("signature", sig)

	var (
		req *http.Request
		err error
	)
	endpoint := c.baseURL + path
	encoded := params.Encode()
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, req *http.Request) ([]byte, error) {
	if c.weight != nil {
		if err := c.weight.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if c.weight != nil {
		c.weight.Observe(res.Header.Get("X-MBX-USED-WEIGHT-1M"))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if res.StatusCode >= 300 {
		apiErr := &APIError{Status: res.StatusCode, Msg: string(body)}
		_ = json.Unmarshal(body, apiErr)
		return nil, fmt.Errorf("binance usdt futures %s %s: %w", req.Method, req.URL.Path, apiErr)
	}
	return body, nil
}
