package metrics

import "github.com/prometheus/client_golang/prometheus"

// SettlementMetrics counts money-moving outcomes across the webhook handlers
// and the payout engine.
type SettlementMetrics struct {
	webhooks  *prometheus.CounterVec
	payments  *prometheus.CounterVec
	refunds   *prometheus.CounterVec
	payouts   *prometheus.CounterVec
	shipments *prometheus.CounterVec
	effects   *prometheus.CounterVec
	outbox    *prometheus.CounterVec
	defects   *prometheus.GaugeVec
}

// NewSettlementMetrics registers the settlement counters on reg. A nil
// registerer yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	m := &SettlementMetrics{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_webhooks_total",
			Help: "Inbound webhook deliveries by source and outcome.",
		}, []string{"source", "outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_payment_confirmations_total",
			Help: "Per-order payment confirmation outcomes.",
		}, []string{"outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_refunds_total",
			Help: "Refund attempts by outcome.",
		}, []string{"outcome"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_payouts_total",
			Help: "Payout records created or transitioned, by status.",
		}, []string{"status"}),
		shipments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_shipment_transitions_total",
			Help: "Applied shipment status transitions.",
		}, []string{"status"}),
		effects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_effects_total",
			Help: "Dispatched side effects by kind and outcome.",
		}, []string{"kind", "outcome"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_outbox_events_total",
			Help: "Outbox events handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		defects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "settlement_reconciliation_defects",
			Help: "Defects found by the last reconciliation audit, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.webhooks, m.payments, m.refunds, m.payouts, m.shipments, m.effects, m.outbox, m.defects)
	return m
}

// Webhook records one webhook delivery outcome.
func (m *SettlementMetrics) Webhook(source, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// Payment records a payment confirmation outcome.
func (m *SettlementMetrics) Payment(outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// Refund records a refund attempt outcome.
func (m *SettlementMetrics) Refund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// Payout records a payout landing in status.
func (m *SettlementMetrics) Payout(status string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(status)).Inc()
}

// Shipment records an applied shipment transition.
func (m *SettlementMetrics) Shipment(status string) {
	if m == nil || m.shipments == nil {
		return
	}
	m.shipments.WithLabelValues(normalizeLabel(status)).Inc()
}

// Effect records one dispatched side effect.
func (m *SettlementMetrics) Effect(kind, outcome string) {
	if m == nil || m.effects == nil {
		return
	}
	m.effects.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// Outbox records how the publisher handled one outbox event.
func (m *SettlementMetrics) Outbox(eventType, outcome string) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// Defects sets the defect count of the last audit for kind.
func (m *SettlementMetrics) Defects(kind string, count int) {
	if m == nil || m.defects == nil {
		return
	}
	m.defects.WithLabelValues(normalizeLabel(kind)).Set(float64(count))
}
