package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/IANDYI/breeding-service/internal/core/ports"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Message types carried in the AMQP Type property
const (
	MessageEventRecorded   = "event.recorded"
	MessageProtocolApplied = "protocol.applied"
)

// RabbitMQPublisher implements EventPublisher for announcing persisted records on RabbitMQ
// Includes retry logic and circuit breaker for resilience
type RabbitMQPublisher struct {
	conn          *amqp091.Connection
	channel       *amqp091.Channel
	queueName     string
	cb            *gobreaker.CircuitBreaker
	maxRetries    int
	retryDelay    time.Duration
	connMutex     sync.RWMutex
	reconnectCh   chan bool
	stopReconnect chan bool
	logger        zerolog.Logger
}

// RecordMessage is the body published for every persisted event or application
type RecordMessage struct {
	Type        string                      `json:"type"`
	FarmID      uuid.UUID                   `json:"farm_id"`
	SubjectID   uuid.UUID                   `json:"subject_id"`
	Event       *domain.Event               `json:"event,omitempty"`
	Application *domain.ProtocolApplication `json:"application,omitempty"`
	Timestamp   time.Time                   `json:"timestamp"`
}

// NewRabbitMQPublisher creates a new RabbitMQ publisher with circuit breaker
func NewRabbitMQPublisher(rabbitMQURL string, queueName string, breaker BreakerSettings, logger zerolog.Logger) (*RabbitMQPublisher, error) {
	if queueName == "" {
		queueName = "breeding.events"
	}

	publisher := &RabbitMQPublisher{
		queueName:     queueName,
		maxRetries:    3,
		retryDelay:    1 * time.Second,
		reconnectCh:   make(chan bool, 1),
		stopReconnect: make(chan bool),
		logger:        logger.With().Str("component", "rabbitmq_publisher").Str("queue", queueName).Logger(),
	}

	settings := gobreaker.Settings{
		Name:        "rabbitmq",
		MaxRequests: breaker.MaxRequests,
		Interval:    breaker.Interval,
		Timeout:     breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			publisher.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	publisher.cb = gobreaker.NewCircuitBreaker(settings)

	// Connect to RabbitMQ
	if err := publisher.connect(rabbitMQURL); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	// Start reconnection handler
	go publisher.handleReconnection(rabbitMQURL)

	return publisher, nil
}

// connect establishes connection to RabbitMQ
func (p *RabbitMQPublisher) connect(rabbitMQURL string) error {
	conn, ch, err := dialQueue(rabbitMQURL, p.queueName, p.maxRetries, p.retryDelay, p.logger)
	if err != nil {
		return err
	}

	p.connMutex.Lock()
	p.conn = conn
	p.channel = ch
	p.connMutex.Unlock()

	p.logger.Info().Msg("connected to RabbitMQ")
	return nil
}

// dialQueue connects, opens a channel and declares a durable queue
func dialQueue(rabbitMQURL, queueName string, maxRetries int, retryDelay time.Duration, logger zerolog.Logger) (*amqp091.Connection, *amqp091.Channel, error) {
	var conn *amqp091.Connection
	var err error
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp091.Dial(rabbitMQURL)
		if err == nil {
			break
		}
		logger.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", maxRetries).Msg("failed to connect to RabbitMQ")
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	// Declare queue (idempotent)
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// handleReconnection handles automatic reconnection to RabbitMQ
func (p *RabbitMQPublisher) handleReconnection(rabbitMQURL string) {
	for {
		select {
		case <-p.reconnectCh:
			p.logger.Info().Msg("attempting to reconnect to RabbitMQ")
			p.connMutex.Lock()
			if p.channel != nil {
				p.channel.Close()
			}
			if p.conn != nil {
				p.conn.Close()
			}
			p.connMutex.Unlock()

			if err := p.connect(rabbitMQURL); err != nil {
				p.logger.Error().Err(err).Msg("reconnection failed")
			}
		case <-p.stopReconnect:
			return
		}
	}
}

// PublishEvents publishes one message per recorded event
// Implements EventPublisher interface
func (p *RabbitMQPublisher) PublishEvents(ctx context.Context, events []domain.Event) error {
	for i := range events {
		e := events[i]
		msg := RecordMessage{
			Type:      MessageEventRecorded,
			FarmID:    e.FarmID,
			SubjectID: e.SubjectID,
			Event:     &e,
			Timestamp: time.Now(),
		}
		if err := p.publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// PublishApplications publishes one message per started protocol application
// Implements EventPublisher interface
func (p *RabbitMQPublisher) PublishApplications(ctx context.Context, apps []domain.ProtocolApplication) error {
	for i := range apps {
		app := apps[i]
		msg := RecordMessage{
			Type:        MessageProtocolApplied,
			FarmID:      app.FarmID,
			SubjectID:   app.SubjectID,
			Application: &app,
			Timestamp:   time.Now(),
		}
		if err := p.publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// publish sends one message through the circuit breaker
func (p *RabbitMQPublisher) publish(ctx context.Context, msg RecordMessage) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.publishWithRetry(ctx, msg)
	})
	return err
}

// publishWithRetry publishes with retry logic
func (p *RabbitMQPublisher) publishWithRetry(ctx context.Context, msg RecordMessage) error {
	startTime := time.Now()

	p.logger.Debug().
		Str("event", "record_publish_attempt").
		Str("type", msg.Type).
		Str("subject_id", msg.SubjectID.String()).
		Msg("publishing record")

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal record message: %w", err)
	}

	var lastErr error
	for i := 0; i < p.maxRetries; i++ {
		p.connMutex.RLock()
		ch := p.channel
		conn := p.conn
		p.connMutex.RUnlock()

		if ch == nil || conn == nil || conn.IsClosed() {
			// Trigger reconnection
			select {
			case p.reconnectCh <- true:
			default:
			}
			lastErr = amqp091.ErrClosed
			time.Sleep(p.retryDelay)
			continue
		}

		err = ch.PublishWithContext(
			ctx,
			"",          // exchange
			p.queueName, // routing key
			false,       // mandatory
			false,       // immediate
			amqp091.Publishing{
				ContentType:  "application/json",
				Type:         msg.Type,
				Body:         body,
				DeliveryMode: amqp091.Persistent,
				Timestamp:    time.Now(),
			},
		)

		if err == nil {
			if latency := time.Since(startTime); latency > 15*time.Second {
				p.logger.Warn().Dur("latency", latency).Msg("record publishing latency exceeded 15s")
			}
			return nil
		}

		lastErr = err
		p.logger.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", p.maxRetries).Msg("failed to publish record")

		if i < p.maxRetries-1 {
			select {
			case p.reconnectCh <- true:
			default:
			}
			time.Sleep(p.retryDelay)
		}
	}

	return fmt.Errorf("failed to publish record after %d retries: %w", p.maxRetries, lastErr)
}

// Close closes the RabbitMQ connection
func (p *RabbitMQPublisher) Close() error {
	close(p.stopReconnect)
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Ensure RabbitMQPublisher implements the interface
var _ ports.EventPublisher = (*RabbitMQPublisher)(nil)

