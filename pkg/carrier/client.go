package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

const (
	defaultBaseURL              = "https://api.carrier.example/v1"
	defaultTimeout              = 15 * time.Second
	responseBodyReadLimit int64 = 1024
	orderDateLayout             = "2006-01-02 15:04"
)

var errTokenRequired = errors.New("carrier api token is required")

// Client books shipments with the shipping aggregator.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	pickupLocation string
}

// Option configures optional client behavior.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithPickupLocation names the registered warehouse used on new shipments.
func WithPickupLocation(name string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			c.pickupLocation = trimmed
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a carrier client using bearer token auth.
func NewClient(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errTokenRequired
	}
	client := &Client{
		httpClient:     &http.Client{Timeout: defaultTimeout},
		baseURL:        defaultBaseURL,
		token:          token,
		pickupLocation: "Primary",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ShipmentItem is one packed line on a carrier order.
type ShipmentItem struct {
	Name         string `json:"name"`
	SKU          string `json:"sku"`
	Units        int    `json:"units"`
	SellingPrice int64  `json:"selling_price"`
}

// CreateShipmentRequest describes the parcel being handed to the carrier.
type CreateShipmentRequest struct {
	OrderNumber string
	OrderDate   time.Time
	Address     types.Address
	Items       []ShipmentItem
	SubTotal    int64
	WeightKG    float64
	LengthCM    float64
	BreadthCM   float64
	HeightCM    float64
}

// CreatedShipment carries the carrier-side identifiers for a new booking.
type CreatedShipment struct {
	CarrierOrderID    string
	CarrierShipmentID string
	Status            string
}

// CourierAssignment is the AWB allocated to a shipment.
type CourierAssignment struct {
	AWB         string
	CourierName string
}

// PickupSchedule reports when the courier will collect the parcel.
type PickupSchedule struct {
	ScheduledAt *time.Time
}

// CreateShipment registers a prepaid order with the carrier.
func (c *Client) CreateShipment(ctx context.Context, req CreateShipmentRequest) (*CreatedShipment, error) {
	if strings.TrimSpace(req.OrderNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	orderDate := req.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	body := map[string]any{
		"order_id":              req.OrderNumber,
		"order_date":            orderDate.Format(orderDateLayout),
		"pickup_location":       c.pickupLocation,
		"billing_customer_name": req.Address.Name,
		"billing_phone":         req.Address.Phone,
		"billing_address":       req.Address.Line1,
		"billing_city":          req.Address.City,
		"billing_state":         req.Address.State,
		"billing_pincode":       req.Address.PostalCode,
		"billing_country":       req.Address.CountryOrDefault(),
		"shipping_is_billing":   true,
		"order_items":           req.Items,
		"payment_method":        "Prepaid",
		"sub_total":             req.SubTotal,
		"weight":                req.WeightKG,
		"length":                req.LengthCM,
		"breadth":               req.BreadthCM,
		"height":                req.HeightCM,
	}
	if req.Address.Line2 != nil {
		body["billing_address_2"] = *req.Address.Line2
	}

	var out struct {
		OrderID    FlexString `json:"order_id"`
		ShipmentID FlexString `json:"shipment_id"`
		Status     string     `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "orders/create/adhoc", body, &out); err != nil {
		return nil, err
	}
	if out.ShipmentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "carrier did not return a shipment id")
	}
	return &CreatedShipment{
		CarrierOrderID:    out.OrderID.String(),
		CarrierShipmentID: out.ShipmentID.String(),
		Status:            out.Status,
	}, nil
}

// AssignCourier allocates an AWB for the shipment.
func (c *Client) AssignCourier(ctx context.Context, carrierShipmentID string) (*CourierAssignment, error) {
	id, err := requireShipmentID(carrierShipmentID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Response struct {
			Data struct {
				AWBCode     FlexString `json:"awb_code"`
				CourierName string     `json:"courier_name"`
			} `json:"data"`
		} `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "courier/assign/awb", map[string]any{"shipment_id": id}, &out); err != nil {
		return nil, err
	}
	awb := out.Response.Data.AWBCode.String()
	if awb == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "carrier did not assign an awb")
	}
	return &CourierAssignment{AWB: awb, CourierName: out.Response.Data.CourierName}, nil
}

// SchedulePickup requests courier collection for the shipment.
func (c *Client) SchedulePickup(ctx context.Context, carrierShipmentID string) (*PickupSchedule, error) {
	id, err := requireShipmentID(carrierShipmentID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Response struct {
			PickupScheduledDate string `json:"pickup_scheduled_date"`
		} `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "courier/generate/pickup", map[string]any{"shipment_id": []string{id}}, &out); err != nil {
		return nil, err
	}
	return &PickupSchedule{ScheduledAt: ParseTimestamp(out.Response.PickupScheduledDate)}, nil
}

// GenerateLabel returns the printable label URL.
func (c *Client) GenerateLabel(ctx context.Context, carrierShipmentID string) (string, error) {
	id, err := requireShipmentID(carrierShipmentID)
	if err != nil {
		return "", err
	}
	var out struct {
		LabelURL string `json:"label_url"`
	}
	if err := c.do(ctx, http.MethodPost, "courier/generate/label", map[string]any{"shipment_id": []string{id}}, &out); err != nil {
		return "", err
	}
	return out.LabelURL, nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02-01-2006 15:04:05",
	"02 Jan 2006 15:04",
}

// ParseTimestamp accepts the date formats the carrier emits. Zone-less values are UTC.
func ParseTimestamp(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func requireShipmentID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "carrier shipment id is required")
	}
	return id, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "carrier client not configured")
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal carrier request")
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build carrier request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "carrier request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, cause, "carrier unavailable")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "carrier rejected request")
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "decode carrier response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
}
