package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.gateway.example/v1"
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

var errCredentialsRequired = errors.New("gateway key id and secret are required")

// Client talks to the payment gateway's order, payment and refund APIs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	keyID      string
	keySecret  string
	currency   string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithCurrency sets the currency sent on order creation.
func WithCurrency(currency string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(currency); trimmed != "" {
			c.currency = strings.ToUpper(trimmed)
		}
	}
}

// WithTimeout sets the HTTP timeout on the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a gateway client authenticated with basic auth.
func NewClient(keyID, keySecret string, opts ...Option) (*Client, error) {
	keyID = strings.TrimSpace(keyID)
	keySecret = strings.TrimSpace(keySecret)
	if keyID == "" || keySecret == "" {
		return nil, errCredentialsRequired
	}
	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		currency:   "INR",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Order is the gateway's view of a checkout.
type Order struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
}

// FullyPaid reports whether the gateway considers the order settled.
func (o Order) FullyPaid() bool {
	if o.Status == "paid" {
		return true
	}
	return o.Amount > 0 && o.AmountPaid >= o.Amount
}

// Payment is a single payment attempt against an order.
type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
	Captured bool   `json:"captured"`
}

// Refund is the gateway's acknowledgement of a refund request.
type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// CreateOrderRequest opens a gateway order for a checkout total.
type CreateOrderRequest struct {
	Amount  int64             `json:"amount"`
	Receipt string            `json:"receipt"`
	Notes   map[string]string `json:"notes,omitempty"`
}

// CapturedPayment returns the first captured payment, if any.
func CapturedPayment(payments []Payment) (Payment, bool) {
	for _, p := range payments {
		if p.Captured || p.Status == "captured" {
			return p, true
		}
	}
	return Payment{}, false
}

// CreateOrder opens a new gateway order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}
	body := struct {
		CreateOrderRequest
		Currency string `json:"currency"`
	}{CreateOrderRequest: req, Currency: c.currency}

	var out Order
	if err := c.do(ctx, http.MethodPost, "orders", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder fetches the current state of a gateway order.
func (c *Client) GetOrder(ctx context.Context, gatewayOrderID string) (*Order, error) {
	id := strings.TrimSpace(gatewayOrderID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id is required")
	}
	var out Order
	if err := c.do(ctx, http.MethodGet, "orders/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPayments returns every payment attempt for a gateway order.
func (c *Client) ListPayments(ctx context.Context, gatewayOrderID string) ([]Payment, error) {
	id := strings.TrimSpace(gatewayOrderID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id is required")
	}
	var out struct {
		Items []Payment `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "orders/"+url.PathEscape(id)+"/payments", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateRefund refunds amount against a captured payment.
func (c *Client) CreateRefund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	body := map[string]any{"amount": amount}
	if len(notes) > 0 {
		body["notes"] = notes
	}
	var out Refund
	if err := c.do(ctx, http.MethodPost, "payments/"+url.PathEscape(id)+"/refund", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "gateway client not configured")
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal gateway request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "gateway request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return statusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "decode gateway response")
	}
	return nil
}

func statusError(status int, body string) error {
	cause := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, "gateway resource not found")
	case status == http.StatusTooManyRequests || status >= 500:
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, cause, "gateway unavailable")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "gateway rejected request")
	}
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
}
