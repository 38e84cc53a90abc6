package payments

import (
	"encoding/json"
	"strings"

	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
)

// Notification is the typed form of a gateway push.
type Notification struct {
	EventID        string
	Event          string
	GatewayOrderID string
	PaymentID      string
}

// Confirms reports whether the event can move orders to paid.
func (n Notification) Confirms() bool {
	return n.Event == EventPaymentCaptured || n.Event == EventOrderPaid
}

type notificationEnvelope struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			ID      string `json:"id"`
			OrderID string `json:"order_id"`
		} `json:"payment"`
		Order *struct {
			ID string `json:"id"`
		} `json:"order"`
	} `json:"payload"`
}

// ParseNotification decodes the raw gateway body. The order id is taken from
// the order entity when present and from the payment otherwise.
func ParseNotification(rawBody []byte) (Notification, error) {
	var env notificationEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return Notification{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode gateway notification")
	}
	n := Notification{
		EventID: strings.TrimSpace(env.ID),
		Event:   strings.TrimSpace(env.Event),
	}
	if p := env.Payload.Payment; p != nil {
		n.PaymentID = strings.TrimSpace(p.ID)
		n.GatewayOrderID = strings.TrimSpace(p.OrderID)
	}
	if o := env.Payload.Order; o != nil && strings.TrimSpace(o.ID) != "" {
		n.GatewayOrderID = strings.TrimSpace(o.ID)
	}
	if n.Event == "" {
		return Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "gateway notification event missing")
	}
	if n.Confirms() && n.GatewayOrderID == "" {
		return Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "gateway notification order id missing")
	}
	return n, nil
}
