// Package notify publishes fire-and-forget events about committed messages.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"teamchat/internal/metrics"
	"teamchat/internal/worker"
)

const EventMessageCreated = "message.created"

type Event struct {
	Type         string      `json:"type"`
	TeamID       uuid.UUID   `json:"team_id"`
	MessageID    uuid.UUID   `json:"message_id"`
	SenderID     uuid.UUID   `json:"sender_id"`
	Conversation string      `json:"conversation"`
	DeliveryMode string      `json:"delivery_mode"`
	Recipients   []uuid.UUID `json:"recipients"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Publisher delivers an encoded event to a team's notification transport.
type Publisher interface {
	Publish(ctx context.Context, teamID string, body []byte) error
}

// Notifier accepts events without blocking and without reporting errors.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Discard drops every event.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(context.Context, Event) {}

// Dispatcher hands events to a worker pool that publishes them. Publish
// failures and full queues are logged and counted, never returned.
type Dispatcher struct {
	pool    *worker.Pool[Event]
	pub     Publisher
	timeout time.Duration
	logger  zerolog.Logger
}

func NewDispatcher(pub Publisher, workers, buffer int, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		pub:     pub,
		timeout: timeout,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
	d.pool = worker.NewPool("notify", workers, buffer, d.publish, logger)
	return d
}

func (d *Dispatcher) Start() {
	d.pool.Start()
}

// Notify queues ev. The request context is not carried into the worker: the
// event outlives the request that produced it.
func (d *Dispatcher) Notify(_ context.Context, ev Event) {
	if !d.pool.Submit(ev) {
		metrics.Notifications.WithLabelValues("dropped").Inc()
		d.logger.Warn().
			Str("team_id", ev.TeamID.String()).
			Str("message_id", ev.MessageID.String()).
			Msg("notification queue full, event dropped")
	}
}

func (d *Dispatcher) Stop(ctx context.Context) {
	d.pool.Stop(ctx)
}

func (d *Dispatcher) publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		return fmt.Errorf("encode event: %w", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.pub.Publish(ctx, ev.TeamID.String(), body); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		return fmt.Errorf("publish %s for message %s: %w", ev.Type, ev.MessageID, err)
	}
	metrics.Notifications.WithLabelValues("published").Inc()
	return nil
}
