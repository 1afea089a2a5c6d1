// infrastructure/rabbitmq_queue.go
package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/vitovidale/clip-processor-service/domain"
)

// ConnectRabbitMQ dials the broker, retrying while it starts up.
func ConnectRabbitMQ(ctx context.Context, url string, retries int, logger logrus.FieldLogger) (*amqp.Connection, error) {
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for i := 0; i < retries; i++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			logger.Info("connected to RabbitMQ")
			return conn, nil
		}
		lastErr = err
		if i == retries-1 {
			break
		}
		logger.WithError(err).Warnf("broker not ready, retrying in 5s (%d/%d)", i+1, retries)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	return nil, fmt.Errorf("could not connect to RabbitMQ after %d attempts: %w", retries, lastErr)
}

func declarePipelineQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

// RabbitMQPipelineQueue publishes pipeline run requests to a durable queue.
type RabbitMQPipelineQueue struct {
	Conn  *amqp.Connection
	Queue string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewRabbitMQPipelineQueue(conn *amqp.Connection, queue string) *RabbitMQPipelineQueue {
	return &RabbitMQPipelineQueue{Conn: conn, Queue: queue}
}

func (q *RabbitMQPipelineQueue) channel() (*amqp.Channel, error) {
	if q.ch != nil && !q.ch.IsClosed() {
		return q.ch, nil
	}
	ch, err := q.Conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := declarePipelineQueue(ch, q.Queue); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", q.Queue, err)
	}
	q.ch = ch
	return ch, nil
}

func (q *RabbitMQPipelineQueue) PublishPipelineRun(ctx context.Context, msg domain.PipelineMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, err := q.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", q.Queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msg.RequestID,
		CorrelationId: msg.VideoID,
		Timestamp:     msg.RequestedAt,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish pipeline run: %w", err)
	}
	return nil
}

func (q *RabbitMQPipelineQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch == nil {
		return nil
	}
	return q.ch.Close()
}

// PipelineRunner is the part of the orchestrator the consumer drives.
type PipelineRunner interface {
	RunPipeline(ctx context.Context, videoID string) (*domain.Video, error)
}

type deliveryAction int

const (
	deliveryAck deliveryAction = iota
	deliveryReject
)

// PipelineConsumer runs the pipeline for each queued request. Every outcome
// is acknowledged: failures are recorded on the video and retried only by
// an explicit reset and re-trigger.
type PipelineConsumer struct {
	Conn     *amqp.Connection
	Queue    string
	Prefetch int
	Runner   PipelineRunner
	Logger   logrus.FieldLogger
}

func (c *PipelineConsumer) Run(ctx context.Context) error {
	ch, err := c.Conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()
	q, err := declarePipelineQueue(ch, c.Queue)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.Queue, err)
	}
	prefetch := c.Prefetch
	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := ch.Consume(
		q.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.Logger.WithField("queue", q.Name).Info("waiting for pipeline requests")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			var ackErr error
			switch c.handle(ctx, d.Body) {
			case deliveryReject:
				ackErr = d.Reject(false)
			default:
				ackErr = d.Ack(false)
			}
			if ackErr != nil {
				c.Logger.WithError(ackErr).Warn("failed to acknowledge delivery")
			}
		}
	}
}

func (c *PipelineConsumer) handle(ctx context.Context, body []byte) deliveryAction {
	var msg domain.PipelineMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.VideoID == "" {
		c.Logger.WithError(err).WithField("body", truncate(string(body), 256)).Error("discarding malformed pipeline request")
		return deliveryReject
	}
	log := c.Logger.WithFields(logrus.Fields{"video_id": msg.VideoID, "request_id": msg.RequestID})
	log.Info("pipeline request received")

	started := time.Now()
	video, err := c.Runner.RunPipeline(ctx, msg.VideoID)
	log = log.WithField("elapsed", time.Since(started).Round(time.Millisecond).String())
	switch {
	case err == nil:
		log.WithField("status", video.Status).Info("pipeline request finished")
	case domain.IsKind(err, domain.KindConflict), domain.IsKind(err, domain.KindNotFound):
		log.WithError(err).Warn("pipeline request skipped")
	default:
		log.WithError(err).Error("pipeline request failed")
	}
	return deliveryAck
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func RabbitMQHealthCheck(conn *amqp.Connection) HealthCheck {
	return func(ctx context.Context) error {
		if conn == nil || conn.IsClosed() {
			return errors.New("disconnected")
		}
		ch, err := conn.Channel()
		if err != nil {
			return err
		}
		return ch.Close()
	}
}
