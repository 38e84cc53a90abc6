package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/config"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/outbox"
	"github.com/angelmondragon/settlement-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/settlement-backend/pkg/outbox/registry"
)

func orderPaidEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	return models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, id.String()),
		AttemptCount:  attempts,
	}
}

func resolvedTo(topic string) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: topic, AggregateType: enums.AggregateOrder},
		Envelope:   outbox.PayloadEnvelope{OccurredAt: time.Now()},
		Payload:    &payloads.OrderPaidEvent{},
	}
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	first, second := orderPaidEvent(t, 0), orderPaidEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	transport := &fakeTransport{errs: []error{errors.New("transient")}}
	metrics := recordingMetrics{}
	service := newTestService(t, repo, transport, &fakeRegistry{resolved: resolvedTo("orders-topic")}, &fakeDLQRepo{}, nil)
	service.metrics = metrics

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
	if metrics["order_paid/retry"] != 1 || metrics["order_paid/published"] != 1 {
		t.Fatalf("unexpected outcome counts %v", metrics)
	}
}

func TestProcessBatchSendsKeyedMessage(t *testing.T) {
	event := orderPaidEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	transport := &fakeTransport{}
	service := newTestService(t, repo, transport, &fakeRegistry{resolved: resolvedTo("orders-topic")}, &fakeDLQRepo{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(transport.sent))
	}
	sent := transport.sent[0]
	if sent.topic != "orders-topic" {
		t.Fatalf("unexpected topic %q", sent.topic)
	}
	if sent.msg.Key != event.AggregateID.String() {
		t.Fatalf("expected aggregate id key, got %q", sent.msg.Key)
	}
	if sent.msg.Attributes["event_id"] != event.ID.String() || sent.msg.Attributes["event_type"] != "order_paid" {
		t.Fatalf("unexpected attributes %v", sent.msg.Attributes)
	}
	if !bytes.Equal(sent.msg.Data, event.Payload) {
		t.Fatal("payload should be forwarded untouched")
	}
}

func TestProcessBatchDeadLettersNonRetryable(t *testing.T) {
	event := orderPaidEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	transport := &fakeTransport{}
	service := newTestService(t, repo, transport, reg, dlq, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(transport.sent) != 0 {
		t.Fatal("unresolvable events must not reach the transport")
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != event.ID || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatal("dlq entry should carry the original row")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row parked as terminal, got %v", repo.terminal)
	}
}

func TestProcessBatchDeadLettersOnLastAttempt(t *testing.T) {
	event := orderPaidEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	transport := &fakeTransport{errs: []error{errors.New("broker unavailable")}}
	service := newTestService(t, repo, transport, &fakeRegistry{resolved: resolvedTo("orders-topic")}, dlq, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", dlq.entries[0].ErrorReason)
	}
	if dlq.entries[0].AttemptCount != 2 {
		t.Fatalf("expected the failed attempt to be counted, got %d", dlq.entries[0].AttemptCount)
	}
	if len(repo.failed) != 0 {
		t.Fatal("terminal rows should not also be marked failed")
	}
}

func TestKafkaTransport(t *testing.T) {
	writer := &recordingKafkaWriter{}
	transport, err := newKafkaTransport(writer)
	if err != nil {
		t.Fatalf("newKafkaTransport: %v", err)
	}
	msg := Message{Key: "agg-1", Data: []byte(`{}`), Attributes: map[string]string{"event_type": "payout_created"}}
	if err := transport.Send(context.Background(), "payouts-topic", msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if writer.topic != "payouts-topic" || writer.key != "agg-1" || writer.headers["event_type"] != "payout_created" {
		t.Fatalf("unexpected write %+v", writer)
	}

	var nonRetry registry.NonRetryableError
	if err := transport.Send(context.Background(), "", msg); !errors.As(err, &nonRetry) {
		t.Fatalf("expected missing topic to be non-retryable, got %v", err)
	}
	if _, err := newKafkaTransport(nil); err == nil {
		t.Fatal("expected nil writer to be rejected")
	}
}

func TestNewServiceRequiresTransport(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config:        &config.Config{},
		Logger:        logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:            &fakeDB{},
		Repository:    &fakeRepo{},
		Registry:      &fakeRegistry{},
		DLQRepository: &fakeDLQRepo{},
	})
	if err == nil {
		t.Fatal("expected missing transport to fail")
	}
}

func newTestService(t *testing.T, repo outboxRepository, transport Transport, reg registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	service, err := NewService(ServiceParams{
		Config:        &config.Config{Outbox: outboxCfg},
		Logger:        logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:            &fakeDB{},
		Transport:     transport,
		Repository:    repo,
		Registry:      reg,
		DLQRepository: dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type sentMessage struct {
	topic string
	msg   Message
}

// fakeTransport fails sends with errs in order, then succeeds.
type fakeTransport struct {
	errs []error
	sent []sentMessage
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Ping(context.Context) error { return nil }

func (f *fakeTransport) Send(_ context.Context, topic string, msg Message) error {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	f.sent = append(f.sent, sentMessage{topic: topic, msg: msg})
	return nil
}

type recordingKafkaWriter struct {
	topic   string
	key     string
	headers map[string]string
}

func (w *recordingKafkaWriter) Publish(_ context.Context, topic, key string, _ []byte, headers map[string]string) error {
	w.topic, w.key, w.headers = topic, key, headers
	return nil
}

type recordingMetrics map[string]int

func (m recordingMetrics) Outbox(eventType, outcome string) { m[eventType+"/"+outcome]++ }

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
