package shipments

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/settlement-backend/pkg/carrier"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
)

// TrackingEvent is the normalized carrier webhook. Nothing past the boundary
// sees raw carrier field names.
type TrackingEvent struct {
	AWB               string
	CarrierOrderID    string
	StatusCode        int
	StatusLabel       string
	OccurredAt        *time.Time
	EstimatedDelivery *time.Time
	Scans             []Scan
}

// Scan is one entry of carrier tracking history.
type Scan struct {
	OccurredAt  time.Time
	Status      string
	Description string
	Location    string
}

type rawScan struct {
	Date         string             `json:"date"`
	Timestamp    string             `json:"timestamp"`
	Activity     string             `json:"activity"`
	Status       carrier.FlexString `json:"status"`
	StatusLabel  string             `json:"sr-status-label"`
	Location     string             `json:"location"`
	ScanLocation string             `json:"scan_location"`
}

type rawPayload struct {
	AWB              carrier.FlexString `json:"awb"`
	AWBCode          carrier.FlexString `json:"awb_code"`
	CurrentStatusID  carrier.FlexInt    `json:"current_status_id"`
	ShipmentStatusID carrier.FlexInt    `json:"shipment_status_id"`
	StatusID         carrier.FlexInt    `json:"status_id"`
	CurrentStatus    carrier.FlexString `json:"current_status"`
	ShipmentStatus   carrier.FlexString `json:"shipment_status"`
	SROrderID        carrier.FlexString `json:"sr_order_id"`
	OrderID          carrier.FlexString `json:"order_id"`
	ChannelOrderID   carrier.FlexString `json:"channel_order_id"`
	CurrentTimestamp string             `json:"current_timestamp"`
	Timestamp        string             `json:"timestamp"`
	ETD              string             `json:"etd"`
	EDD              string             `json:"edd"`
	Scans            []rawScan          `json:"scans"`
}

// NormalizeCarrierPayload extracts a TrackingEvent from any of the carrier's
// payload variants.
func NormalizeCarrierPayload(raw []byte) (TrackingEvent, error) {
	var p rawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return TrackingEvent{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode carrier payload")
	}

	ev := TrackingEvent{
		AWB:               firstNonEmpty(p.AWB.String(), p.AWBCode.String()),
		CarrierOrderID:    firstNonEmpty(p.SROrderID.String(), p.OrderID.String(), p.ChannelOrderID.String()),
		StatusCode:        firstNonZero(int(p.CurrentStatusID), int(p.ShipmentStatusID), int(p.StatusID)),
		StatusLabel:       firstNonEmpty(p.CurrentStatus.String(), p.ShipmentStatus.String()),
		OccurredAt:        carrier.ParseTimestamp(firstNonEmpty(p.CurrentTimestamp, p.Timestamp)),
		EstimatedDelivery: carrier.ParseTimestamp(firstNonEmpty(p.ETD, p.EDD)),
	}
	if ev.AWB == "" && ev.CarrierOrderID == "" {
		return TrackingEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "carrier payload has no awb or order id")
	}

	for _, s := range p.Scans {
		at := carrier.ParseTimestamp(firstNonEmpty(s.Date, s.Timestamp))
		description := firstNonEmpty(s.Activity, s.Status.String())
		if at == nil || description == "" {
			continue
		}
		ev.Scans = append(ev.Scans, Scan{
			OccurredAt:  *at,
			Status:      firstNonEmpty(s.StatusLabel, s.Status.String()),
			Description: description,
			Location:    firstNonEmpty(s.Location, s.ScanLocation),
		})
	}
	if len(ev.Scans) == 0 && ev.OccurredAt != nil {
		label := firstNonEmpty(ev.StatusLabel, mappedLabel(MapCarrierStatus(ev.StatusCode)))
		if label != "" {
			ev.Scans = []Scan{{OccurredAt: *ev.OccurredAt, Status: label, Description: label}}
		}
	}
	return ev, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func mappedLabel(m Mapping) string {
	if m.NDR {
		return "undelivered"
	}
	return string(m.Status)
}
