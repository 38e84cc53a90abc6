package effects

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/settlement-backend/internal/notifications"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

type scriptedNotifier struct {
	calls []notifications.Notification
	fail  map[enums.NotificationType]bool
	panic bool
}

func (s *scriptedNotifier) Notify(_ context.Context, n notifications.Notification) error {
	s.calls = append(s.calls, n)
	if s.panic {
		panic("boom")
	}
	if s.fail[n.Type] {
		return errors.New("smtp down")
	}
	return nil
}

type countingMetrics struct{ outcomes map[string]int }

func (c *countingMetrics) Effect(kind, outcome string) { c.outcomes[kind+"/"+outcome]++ }

func note(t enums.NotificationType) notifications.Notification {
	return notifications.Notification{UserID: uuid.New(), Role: enums.ActorRoleBuyer, Type: t, Title: string(t)}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	notifier := &scriptedNotifier{fail: map[enums.NotificationType]bool{enums.NotificationNewOrder: true}}
	metrics := &countingMetrics{outcomes: map[string]int{}}
	var buf bytes.Buffer
	d := NewDispatcher(notifier, logger.New(logger.Options{ServiceName: "test", Output: &buf}), metrics)

	report := d.Dispatch(context.Background(), []Effect{
		Notify(note(enums.NotificationNewOrder)),
		Notify(note(enums.NotificationOrderConfirmed)),
		{Kind: "email"},
	})

	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, notifier.calls, 2, "later effects still run after a failure")
	assert.Equal(t, 1, metrics.outcomes["notify/ok"])
	assert.Equal(t, 1, metrics.outcomes["notify/failed"])
	assert.Contains(t, buf.String(), "effect dispatch failed")
}

func TestDispatchRecoversPanics(t *testing.T) {
	d := NewDispatcher(&scriptedNotifier{panic: true}, nil, nil)
	report := d.Dispatch(context.Background(), []Effect{Notify(note(enums.NotificationOrderShipped))})
	assert.Equal(t, 1, report.Failed)
}

func TestDispatchWithoutNotifier(t *testing.T) {
	report := NewDispatcher(nil, nil, nil).Dispatch(context.Background(), []Effect{Notify(note(enums.NotificationOrderShipped))})
	assert.Equal(t, 1, report.Failed)

	var nilDispatcher *Dispatcher
	assert.Equal(t, Report{}, nilDispatcher.Dispatch(context.Background(), []Effect{Notify(note(enums.NotificationOrderShipped))}))
}
