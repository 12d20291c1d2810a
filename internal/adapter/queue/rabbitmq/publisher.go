// Package rabbitmq provides the async task intake queue and the terminal
// result event stream.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
)

const (
	eventsExchange = "tasks.events"
	submitQueue    = "tasks.submit"
)

type queueService struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.Logger
}

// NewQueueService dials RabbitMQ with incremental backoff and declares the
// events exchange.
func NewQueueService(url string, log *zap.Logger) (port.QueueService, error) {
	var (
		conn *amqp.Connection
		err  error
	)

	maxRetries := 10
	for i := 1; i <= maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr == nil {
				if declErr := ch.ExchangeDeclare(
					eventsExchange, // name
					"direct",       // kind
					true,           // durable
					false,          // auto-delete
					false,          // internal
					false,          // no-wait
					nil,            // args
				); declErr != nil {
					conn.Close()
					return nil, fmt.Errorf("declare exchange: %w", declErr)
				}
				return &queueService{conn: conn, ch: ch, log: log}, nil
			}
			err = chErr
			conn.Close()
		}

		log.Warn("Failed to connect to RabbitMQ, retrying...",
			zap.Int("attempt", i),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		time.Sleep(time.Duration(i*2) * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// PublishResult emits a terminal task record, routed by outcome so consumers
// can subscribe to failures alone.
func (q *queueService) PublishResult(ctx context.Context, rec *domain.TaskRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	routingKey := "task." + string(rec.Status)

	err = q.ch.PublishWithContext(ctx,
		eventsExchange, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		q.log.Error("Failed to publish task result", zap.Error(err))
		return err
	}

	q.log.Info("Published task result",
		zap.String("task_id", rec.ID),
		zap.String("key", routingKey))
	return nil
}
