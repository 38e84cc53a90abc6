package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSettlementMetricsCountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)

	m.Webhook("gateway", "processed")
	m.Webhook("gateway", "processed")
	m.Payment("amount_mismatch")
	m.Refund("")
	m.Payout("on_hold")
	m.Shipment("delivered")
	m.Effect("notify", "failed")
	m.Outbox("payout_created", "dead_lettered")
	m.Defects("orphan_order", 3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "settlement_webhooks_total", "outcome", "processed"); err != nil || got != 2 {
		t.Fatalf("expected 2 processed webhooks, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "settlement_payment_confirmations_total", "outcome", "amount_mismatch"); err != nil || got != 1 {
		t.Fatalf("expected 1 mismatch, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "settlement_refunds_total", "outcome", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty outcome to normalize, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "settlement_payouts_total", "status", "on_hold"); err != nil || got != 1 {
		t.Fatalf("expected 1 on_hold payout, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "settlement_effects_total", "outcome", "failed"); err != nil || got != 1 {
		t.Fatalf("expected 1 failed effect, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "settlement_outbox_events_total", "event_type", "payout_created"); err != nil || got != 1 {
		t.Fatalf("expected 1 outbox outcome, got %f err=%v", got, err)
	}
	family := findMetricFamily(mfs, "settlement_reconciliation_defects")
	if family == nil || len(family.GetMetric()) != 1 || family.GetMetric()[0].GetGauge().GetValue() != 3 {
		t.Fatalf("expected orphan gauge of 3, got %v", family)
	}
}

func TestSettlementMetricsNilSafe(t *testing.T) {
	var m *SettlementMetrics
	m.Webhook("carrier", "ignored")
	m.Defects("orphan_order", 1)
	m.Outbox("order_paid", "published")
	NewSettlementMetrics(nil).Payout("paid")
}
