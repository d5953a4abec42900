package spot

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"consensus-trader/pkg/exchanges/common"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

// Config holds Binance credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64  // ms
	BaseURL    string // overrides the venue endpoint, mainly for tests
}

// Client is a Binance spot client. Signed trading calls go through a small
// HMAC client; public market data goes through go-binance.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	timeSync   *common.TimeSync
	usage      *common.ServerUsage
	public     *binance.Client
	log        *zap.Logger
}

var _ common.Venue = (*Client)(nil)

// New builds a spot client.
func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	base := "https://api.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binance.vision"
	}
	if cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}

	public := binance.NewClient(cfg.APIKey, cfg.APISecret)
	public.BaseURL = base
	public.HTTPClient = httpClient

	client := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: httpClient,
		usage:      common.NewServerUsage(6000, log),
		public:     public,
		log:        log.Named("binance"),
	}
	client.timeSync = common.NewTimeSync(client.GetServerTime, client.log)
	return client
}

// TimeSync exposes the clock synchronizer so callers can start it.
func (c *Client) TimeSync() *common.TimeSync { return c.timeSync }

// Usage exposes the venue-reported request weight.
func (c *Client) Usage() *common.ServerUsage { return c.usage }

// SubmitOrder places a new LIMIT or MARKET order.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.Order, error) {
	if err := c.requireKeys(); err != nil {
		return common.Order{}, err
	}
	params := orderParams(req)
	params.Set("newOrderRespType", "RESULT")

	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return common.Order{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.Order{}, fmt.Errorf("decode order response: %w", err)
	}
	return resp.toOrder(), nil
}

// CancelOrder cancels one order by venue id.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (common.Order, error) {
	if err := c.requireKeys(); err != nil {
		return common.Order{}, err
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.doSigned(ctx, http.MethodDelete, "/api/v3/order", params)
	if err != nil {
		return common.Order{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.Order{}, fmt.Errorf("decode cancel response: %w", err)
	}
	return resp.toOrder(), nil
}

// CancelReplace cancels an order and places its replacement in one request.
func (c *Client) CancelReplace(ctx context.Context, req common.CancelReplaceRequest) (common.CancelReplaceResult, error) {
	if err := c.requireKeys(); err != nil {
		return common.CancelReplaceResult{}, err
	}
	params := orderParams(req.OrderRequest)
	params.Set("cancelReplaceMode", "STOP_ON_FAILURE")
	params.Set("cancelOrderId", strconv.FormatInt(req.CancelOrderID, 10))
	params.Set("newOrderRespType", "RESULT")

	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order/cancelReplace", params)
	if err != nil {
		return common.CancelReplaceResult{}, err
	}
	var resp struct {
		CancelResult     string        `json:"cancelResult"`
		NewOrderResult   string        `json:"newOrderResult"`
		CancelResponse   orderResponse `json:"cancelResponse"`
		NewOrderResponse orderResponse `json:"newOrderResponse"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.CancelReplaceResult{}, fmt.Errorf("decode cancel-replace response: %w", err)
	}
	if resp.NewOrderResult != "SUCCESS" {
		return common.CancelReplaceResult{}, &common.ExchangeRejection{Status: http.StatusOK, Message: "cancel-replace new order " + resp.NewOrderResult}
	}
	out := common.CancelReplaceResult{
		Canceled: resp.CancelResponse.toOrder(),
		New:      resp.NewOrderResponse.toOrder(),
	}
	// cancel responses may carry no timestamp
	if out.Canceled.UpdateTime == 0 {
		out.Canceled.UpdateTime = out.New.UpdateTime
	}
	return out, nil
}

// AllOrders returns the most recent orders of a symbol, oldest first.
func (c *Client) AllOrders(ctx context.Context, symbol string, limit int) ([]common.Order, error) {
	if err := c.requireKeys(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/allOrders", params)
	if err != nil {
		return nil, err
	}
	var rows []orderResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode all orders: %w", err)
	}
	out := make([]common.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toOrder())
	}
	return out, nil
}

// Balance returns the free and locked amount of one asset.
func (c *Client) Balance(ctx context.Context, asset string) (common.Balance, error) {
	if err := c.requireKeys(); err != nil {
		return common.Balance{}, err
	}
	params := url.Values{}
	params.Set("omitZeroBalances", "true")
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", params)
	if err != nil {
		return common.Balance{}, err
	}
	var info struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return common.Balance{}, fmt.Errorf("decode account info: %w", err)
	}
	for _, b := range info.Balances {
		if b.Asset == asset {
			return common.Balance{Asset: asset, Free: parseFloat(b.Free), Locked: parseFloat(b.Locked)}, nil
		}
	}
	return common.Balance{Asset: asset}, nil
}

// GetServerTime fetches server time (ms).
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	t, err := c.public.NewServerTimeService().Do(ctx)
	if err != nil {
		return 0, classifyLibError("server time", err)
	}
	return t, nil
}

func (c *Client) requireKeys() error {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return errors.New("binance: API key/secret required")
	}
	return nil
}

// doSigned adds timestamp and signature, performs the request and classifies failures.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(c.timestamp(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	params.Set("signature", sign(params.Encode(), c.cfg.APISecret))

	endpoint := c.baseURL + path
	encoded := params.Encode()

	var (
		req *http.Request
		err error
	)
	switch method {
	case http.MethodGet, http.MethodDelete:
		// For GET/DELETE Binance expects signed params in query string.
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
	return c.do(req, method+" "+path)
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, &common.TransientNetworkError{Op: op, Err: err}
	}
	defer res.Body.Close()

	c.usage.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &common.TransientNetworkError{Op: op, Err: err}
	}
	if res.StatusCode >= 300 {
		return nil, classifyStatus(op, res.StatusCode, body)
	}
	return body, nil
}

func (c *Client) timestamp() int64 {
	if c.timeSync != nil && c.timeSync.Synced() {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

func orderParams(req common.OrderRequest) url.Values {
	ordType := req.Type
	if ordType == "" {
		ordType = common.OrderTypeLimit
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(ordType))
	params.Set("quantity", formatFloat(req.Qty))
	if ordType == common.OrderTypeLimit {
		tif := req.TimeInForce
		if tif == "" {
			tif = common.TIFGTC
		}
		params.Set("price", formatFloat(req.Price))
		params.Set("timeInForce", string(tif))
	}
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}
	return params
}

type orderResponse struct {
	Symbol            string `json:"symbol"`
	OrderID           int64  `json:"orderId"`
	ClientOrderID     string `json:"clientOrderId"`
	OrigClientOrderID string `json:"origClientOrderId"`
	Price             string `json:"price"`
	OrigQty           string `json:"origQty"`
	ExecutedQty       string `json:"executedQty"`
	CumQuote          string `json:"cummulativeQuoteQty"`
	Status            string `json:"status"`
	Type              string `json:"type"`
	Side              string `json:"side"`
	TransactTime      int64  `json:"transactTime"`
	UpdateTime        int64  `json:"updateTime"`
}

func (r orderResponse) toOrder() common.Order {
	updated := r.UpdateTime
	if updated == 0 {
		updated = r.TransactTime
	}
	// on cancels clientOrderId names the cancel request itself
	clientID := r.ClientOrderID
	if r.OrigClientOrderID != "" {
		clientID = r.OrigClientOrderID
	}
	return common.Order{
		OrderID:       r.OrderID,
		ClientOrderID: clientID,
		Symbol:        r.Symbol,
		Side:          common.Side(r.Side),
		Type:          common.OrderType(r.Type),
		Status:        common.ParseOrderStatus(r.Status),
		Price:         parseFloat(r.Price),
		OrigQty:       parseFloat(r.OrigQty),
		ExecutedQty:   parseFloat(r.ExecutedQty),
		CumQuote:      parseFloat(r.CumQuote),
		UpdateTime:    updated,
	}
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
