package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
)

// ConsumeTaskRequests listens on the submit queue and hands each decoded
// request to the handler. Undecodable or invalid messages are discarded;
// only transient handler failures requeue the message.
func (q *queueService) ConsumeTaskRequests(ctx context.Context, handler func(req *domain.TaskRequest) error) error {
	_, err := q.ch.QueueDeclare(
		submitQueue, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return err
	}

	msgs, err := q.ch.Consume(
		submitQueue, // queue
		"",          // consumer
		false,       // auto-ack (ack manually once handled)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return err
	}

	q.log.Info("Started consuming task requests", zap.String("queue", submitQueue))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				var req domain.TaskRequest
				if err := json.Unmarshal(d.Body, &req); err != nil {
					q.log.Error("Failed to unmarshal task request", zap.Error(err))
					d.Nack(false, false) // discard invalid message
					continue
				}

				q.log.Info("Received task request from queue",
					zap.String("task_type", req.TaskType),
					zap.String("mode", string(req.Mode)))

				if err := handler(&req); err != nil {
					q.log.Error("Task request handling failed", zap.Error(err))
					d.Nack(false, requeueable(err))
				} else {
					d.Ack(false)
				}
			}
		}
	}()

	return nil
}

// requeueable reports whether a handling failure is worth redelivering.
// Validation failures are permanent; requeueing them loops forever.
func requeueable(err error) bool {
	return !errors.Is(err, domain.ErrUnknownMode) &&
		!errors.Is(err, domain.ErrNoAgents) &&
		!errors.Is(err, domain.ErrUnknownAgent)
}
