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
)

// ApplyProtocolMessage represents an "apply protocol" request sent by the dashboard
// { "farm_id": "uuid", "template_id": "uuid", "subject_ids": ["uuid"], "start_date": "2024-01-01", "start_hour": "08:00" }
type ApplyProtocolMessage struct {
	FarmID       string      `json:"farm_id"`
	TemplateID   string      `json:"template_id"`
	SubjectIDs   []string    `json:"subject_ids"`
	StartDate    domain.Date `json:"start_date"`
	StartHour    string      `json:"start_hour"`
	AllowPartial bool        `json:"allow_partial"`
}

// deliveryAction is what to do with a delivery after processing
type deliveryAction int

const (
	actionAck deliveryAction = iota
	actionReject
	actionRequeue
)

// ApplicationConsumer consumes "apply protocol" requests from RabbitMQ
// Runs in background as a goroutine within the service pod
type ApplicationConsumer struct {
	conn           *amqp091.Connection
	channel        *amqp091.Channel
	queueName      string
	protocols      ports.ProtocolService
	connMutex      sync.RWMutex
	reconnectCh    chan bool
	stopReconnect  chan bool
	maxRetries     int
	retryDelay     time.Duration
	consumingCtx   context.Context
	consumingMutex sync.Mutex
	isConsuming    bool
	logger         zerolog.Logger
}

// NewApplicationConsumer creates a new RabbitMQ consumer for protocol application requests
func NewApplicationConsumer(rabbitMQURL string, queueName string, protocols ports.ProtocolService, logger zerolog.Logger) (*ApplicationConsumer, error) {
	consumer := newApplicationConsumer(queueName, protocols, logger)

	if err := consumer.connect(rabbitMQURL); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	go consumer.handleReconnection(rabbitMQURL)

	return consumer, nil
}

func newApplicationConsumer(queueName string, protocols ports.ProtocolService, logger zerolog.Logger) *ApplicationConsumer {
	if queueName == "" {
		queueName = "protocol.apply.requests"
	}
	return &ApplicationConsumer{
		queueName:     queueName,
		protocols:     protocols,
		maxRetries:    3,
		retryDelay:    1 * time.Second,
		reconnectCh:   make(chan bool, 1),
		stopReconnect: make(chan bool),
		logger:        logger.With().Str("component", "application_consumer").Str("queue", queueName).Logger(),
	}
}

// connect establishes connection to RabbitMQ
func (c *ApplicationConsumer) connect(rabbitMQURL string) error {
	conn, ch, err := dialQueue(rabbitMQURL, c.queueName, c.maxRetries, c.retryDelay, c.logger)
	if err != nil {
		return err
	}

	c.connMutex.Lock()
	c.conn = conn
	c.channel = ch
	c.connMutex.Unlock()

	c.logger.Info().Msg("application consumer connected to RabbitMQ")
	return nil
}

// handleReconnection handles automatic reconnection to RabbitMQ
func (c *ApplicationConsumer) handleReconnection(rabbitMQURL string) {
	for {
		select {
		case <-c.reconnectCh:
			c.logger.Info().Msg("attempting to reconnect to RabbitMQ")
			c.connMutex.Lock()
			if c.conn != nil && !c.conn.IsClosed() {
				c.conn.Close()
			}
			if c.channel != nil && !c.channel.IsClosed() {
				c.channel.Close()
			}
			c.connMutex.Unlock()

			if err := c.connect(rabbitMQURL); err != nil {
				c.logger.Error().Err(err).Msg("reconnection failed")
				time.Sleep(5 * time.Second)
				select {
				case c.reconnectCh <- true:
				default:
				}
				continue
			}

			// Restart consuming after reconnection using the original context
			c.consumingMutex.Lock()
			ctx := c.consumingCtx
			restart := ctx != nil && ctx.Err() == nil && !c.isConsuming
			c.consumingMutex.Unlock()
			if restart {
				if err := c.StartConsuming(ctx); err != nil {
					c.logger.Error().Err(err).Msg("failed to restart consuming")
				}
			}
		case <-c.stopReconnect:
			return
		}
	}
}

// StartConsuming registers the consumer and processes deliveries in a background goroutine
// Only one consumer runs per instance; RabbitMQ distributes messages across replicas
func (c *ApplicationConsumer) StartConsuming(ctx context.Context) error {
	c.consumingMutex.Lock()
	if c.isConsuming {
		c.consumingMutex.Unlock()
		c.logger.Info().Msg("application consumer already running, skipping duplicate start")
		return nil
	}
	c.isConsuming = true
	c.consumingCtx = ctx
	c.consumingMutex.Unlock()

	stopConsuming := func() {
		c.consumingMutex.Lock()
		c.isConsuming = false
		c.consumingMutex.Unlock()
	}

	c.connMutex.RLock()
	channel := c.channel
	conn := c.conn
	c.connMutex.RUnlock()

	if channel == nil || channel.IsClosed() || conn == nil || conn.IsClosed() {
		stopConsuming()
		return fmt.Errorf("RabbitMQ connection is closed")
	}

	// One unacknowledged apply request at a time
	if err := channel.Qos(1, 0, false); err != nil {
		stopConsuming()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	consumerTag := fmt.Sprintf("application-consumer-%d", time.Now().UnixNano())
	msgs, err := channel.Consume(
		c.queueName, // queue
		consumerTag, // consumer tag
		false,       // auto-ack (manual ack after the batch is handled)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		stopConsuming()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info().Str("consumer_tag", consumerTag).Msg("application consumer started")

	go func() {
		defer stopConsuming()

		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Msg("application consumer context cancelled")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Msg("application consumer channel closed, attempting reconnection")
					select {
					case c.reconnectCh <- true:
					default:
					}
					return
				}
				c.settle(msg, c.processMessage(ctx, msg.Body))
			}
		}
	}()

	return nil
}

func (c *ApplicationConsumer) settle(msg amqp091.Delivery, action deliveryAction) {
	var err error
	switch action {
	case actionAck:
		err = msg.Ack(false)
	case actionReject:
		err = msg.Nack(false, false)
	case actionRequeue:
		err = msg.Nack(false, true)
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to settle delivery")
	}
}

// processMessage applies the requested protocol.
// Malformed requests and decision failures are rejected; infrastructure failures are requeued.
func (c *ApplicationConsumer) processMessage(ctx context.Context, body []byte) deliveryAction {
	var msg ApplyProtocolMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("failed to unmarshal apply protocol request")
		return actionReject
	}

	farmID, err := uuid.Parse(msg.FarmID)
	if err != nil {
		c.logger.Warn().Str("farm_id", msg.FarmID).Msg("invalid apply protocol request: farm_id is not a valid UUID")
		return actionReject
	}
	templateID, err := uuid.Parse(msg.TemplateID)
	if err != nil {
		c.logger.Warn().Str("template_id", msg.TemplateID).Msg("invalid apply protocol request: template_id is not a valid UUID")
		return actionReject
	}
	subjectIDs := make([]uuid.UUID, 0, len(msg.SubjectIDs))
	for _, raw := range msg.SubjectIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.logger.Warn().Str("subject_id", raw).Msg("invalid apply protocol request: subject id is not a valid UUID")
			return actionReject
		}
		subjectIDs = append(subjectIDs, id)
	}

	result, err := c.protocols.ApplyProtocol(ctx, farmID, ports.ApplyProtocolRequest{
		TemplateID:   templateID,
		SubjectIDs:   subjectIDs,
		StartDate:    msg.StartDate,
		StartHour:    msg.StartHour,
		AllowPartial: msg.AllowPartial,
	})
	if err != nil {
		if kind := domain.KindOf(err); kind != "" {
			c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("apply protocol request rejected")
			return actionReject
		}
		c.logger.Error().Err(err).Msg("failed to apply protocol, requeueing")
		return actionRequeue
	}
	// Nothing was written; a replay would decide the same way
	if err := result.Err(); err != nil {
		c.logger.Warn().
			Err(err).
			Str("farm_id", farmID.String()).
			Str("template_id", templateID.String()).
			Str("status", string(result.Status)).
			Msg("apply protocol request not applied")
		return actionReject
	}

	c.logger.Info().
		Str("event", "apply_request_processed").
		Str("farm_id", farmID.String()).
		Str("template_id", templateID.String()).
		Str("status", string(result.Status)).
		Int("applications", len(result.Applications)).
		Int("blocked", len(result.Blocked())).
		Msg("apply protocol request processed")
	return actionAck
}

// Close closes the RabbitMQ connection and stops consuming
// The consuming context is cancelled by main during graceful shutdown
func (c *ApplicationConsumer) Close() error {
	close(c.stopReconnect)

	c.consumingMutex.Lock()
	c.isConsuming = false
	c.consumingMutex.Unlock()

	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			c.logger.Error().Err(err).Msg("error closing RabbitMQ channel")
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			c.logger.Error().Err(err).Msg("error closing RabbitMQ connection")
		}
	}

	c.logger.Info().Msg("application consumer closed")
	return nil
}
