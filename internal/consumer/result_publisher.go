package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hudsonolin413-lang/axiobank-sub006/internal/models"
	"github.com/hudsonolin413-lang/axiobank-sub006/pkg/retry"
	"github.com/streadway/amqp"
)

// ResultPublisher emits one DepositResult per finished confirmation onto
// the result queue. Publishes are retried with backoff because losing a
// confirmed-payment event is worse than a delayed one.
type ResultPublisher struct {
	ch       *amqp.Channel
	queue    string
	logger   *slog.Logger
	retryCfg retry.Config
}

func NewResultPublisher(conn *amqp.Connection, queue string, logger *slog.Logger, retryCfg retry.Config) (*ResultPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, err
	}
	return &ResultPublisher{
		ch:       ch,
		queue:    queue,
		logger:   logger,
		retryCfg: retryCfg,
	}, nil
}

func (p *ResultPublisher) Close() error {
	return p.ch.Close()
}

// Publish converts an outcome into a DepositResult event and enqueues it.
func (p *ResultPublisher) Publish(ctx context.Context, job *models.DepositJob, outcome models.ConfirmationOutcome) error {
	result := models.DepositResult{
		EventID:       uuid.NewString(),
		RequestID:     job.RequestID,
		Status:        outcome.Status,
		Receipt:       outcome.Receipt,
		Reason:        outcome.Reason,
		CorrelationID: outcome.CorrelationID,
		Attempts:      outcome.Attempts,
		CompletedAt:   time.Now().UTC(),
	}

	body, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return retry.Do(ctx, p.retryCfg, func() error {
		err := p.ch.Publish(
			"",
			p.queue,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    result.EventID,
				Timestamp:    result.CompletedAt,
				Body:         body,
			},
		)
		if err != nil {
			p.logger.Warn("result publish failed",
				slog.String("request_id", job.RequestID),
				slog.Any("error", err),
			)
		}
		return err
	})
}
