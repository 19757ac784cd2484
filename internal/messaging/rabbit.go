// internal/messaging/rabbit.go
package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"teamchat/internal/metrics"
)

// RabbitClient publishes team notification events to per-team durable
// queues, each dead-lettered to its own DLQ.
type RabbitClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	URL     string
	logger  zerolog.Logger

	// amqp.Channel is not safe for concurrent publishes.
	mu sync.Mutex
}

func NewRabbitClient(url string, logger zerolog.Logger) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	return &RabbitClient{
		conn:    conn,
		channel: ch,
		URL:     url,
		logger:  logger.With().Str("component", "rabbitmq").Logger(),
	}, nil
}

func QueueName(teamID string) string {
	return fmt.Sprintf("team_%s_events", teamID)
}

func dlqName(teamID string) string {
	return fmt.Sprintf("team_%s_events_dlq", teamID)
}

// DeclareTeam creates a team-specific durable queue
func (r *RabbitClient) DeclareTeam(teamID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 1. DLQ
	_, err := r.channel.QueueDeclare(
		dlqName(teamID),
		true, false, false, false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}

	// 2. Main Queue with DLQ binding
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqName(teamID),
	}
	_, err = r.channel.QueueDeclare(
		QueueName(teamID),
		true, false, false, false,
		args,
	)
	if err != nil {
		return fmt.Errorf("declare main queue: %w", err)
	}

	r.logger.Debug().Str("team_id", teamID).Msg("queues declared")
	return nil
}

// Publish sends an event to the team's queue
func (r *RabbitClient) Publish(_ context.Context, teamID string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	queueName := QueueName(teamID)
	err := r.channel.Publish(
		"",        // default exchange
		queueName, // routing key (queue name)
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", queueName, err)
	}
	return nil
}

// Close cleans up connection and channel
func (r *RabbitClient) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	if err := r.conn.Close(); err != nil {
		return err
	}
	return nil
}

func (r *RabbitClient) UpdateQueueDepth(teamID string) {
	r.mu.Lock()
	q, err := r.channel.QueueInspect(QueueName(teamID))
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn().Err(err).Str("team_id", teamID).Msg("failed to inspect queue")
		return
	}

	metrics.QueueDepth.WithLabelValues(teamID).Set(float64(q.Messages))
}
