// Package effects separates best-effort side effects from state mutation.
// Core services return effects; the Dispatcher runs them after commit and a
// failing effect never fails the operation that produced it.
package effects

import (
	"context"

	"github.com/angelmondragon/settlement-backend/internal/notifications"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

// Kind names an effect category.
type Kind string

const KindNotify Kind = "notify"

// Effect is one deferred side effect.
type Effect struct {
	Kind         Kind
	Notification notifications.Notification
}

// Notify wraps a notification as an effect.
func Notify(n notifications.Notification) Effect {
	return Effect{Kind: KindNotify, Notification: n}
}

type effectMetrics interface {
	Effect(kind, outcome string)
}

// Report summarises a dispatch run.
type Report struct {
	Attempted int
	Failed    int
}

// Dispatcher executes effects with per-effect failure isolation.
type Dispatcher struct {
	notifier notifications.Notifier
	logg     *logger.Logger
	metrics  effectMetrics
}

// NewDispatcher builds a dispatcher. metrics may be nil.
func NewDispatcher(notifier notifications.Notifier, logg *logger.Logger, metrics effectMetrics) *Dispatcher {
	return &Dispatcher{notifier: notifier, logg: logg, metrics: metrics}
}

// Dispatch runs every effect and logs failures.
func (d *Dispatcher) Dispatch(ctx context.Context, effs []Effect) Report {
	var report Report
	if d == nil {
		return report
	}
	for _, eff := range effs {
		report.Attempted++
		err := d.run(ctx, eff)
		outcome := "ok"
		if err != nil {
			report.Failed++
			outcome = "failed"
			if d.logg != nil {
				logCtx := d.logg.WithFields(ctx, map[string]any{
					"effect_kind":       string(eff.Kind),
					"notification_type": string(eff.Notification.Type),
					"user_id":           eff.Notification.UserID.String(),
				})
				d.logg.Error(logCtx, "effect dispatch failed", err)
			}
		}
		if d.metrics != nil {
			d.metrics.Effect(string(eff.Kind), outcome)
		}
	}
	return report
}

func (d *Dispatcher) run(ctx context.Context, eff Effect) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	switch eff.Kind {
	case KindNotify:
		if d.notifier == nil {
			return errNoNotifier
		}
		return d.notifier.Notify(ctx, eff.Notification)
	default:
		return unknownKindError(eff.Kind)
	}
}
