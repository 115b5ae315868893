package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hudsonolin413-lang/axiobank-sub006/internal/confirm"
	"github.com/hudsonolin413-lang/axiobank-sub006/internal/daraja"
	"github.com/hudsonolin413-lang/axiobank-sub006/internal/models"
	"github.com/hudsonolin413-lang/axiobank-sub006/internal/repository"
	"github.com/hudsonolin413-lang/axiobank-sub006/pkg/metrics"
	"github.com/streadway/amqp"
)

// DepositConsumer turns queued deposit jobs into STK confirmations.
type DepositConsumer struct {
	base          *BaseConsumer
	poller        *confirm.Poller
	guard         *repository.DepositGuard
	publisher     *ResultPublisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	maxDeliveries int
}

func NewDepositConsumer(
	base *BaseConsumer,
	poller *confirm.Poller,
	guard *repository.DepositGuard,
	publisher *ResultPublisher,
	collector *metrics.Metrics,
	logger *slog.Logger,
	maxDeliveries int,
) *DepositConsumer {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &DepositConsumer{
		base:          base,
		poller:        poller,
		guard:         guard,
		publisher:     publisher,
		metrics:       collector,
		logger:        logger,
		maxDeliveries: maxDeliveries,
	}
}

func (c *DepositConsumer) Start(ctx context.Context) error {
	return c.base.Start(ctx, c.handleDelivery)
}

func (c *DepositConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	var job models.DepositJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		c.logger.Error("failed to unmarshal deposit job", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}
	if job.RequestID == "" || job.Phone == "" || job.Amount <= 0 {
		c.logger.Error("deposit job missing required fields", slog.String("request_id", job.RequestID))
		_ = msg.Reject(false)
		return nil
	}
	c.metrics.IncConsumed()

	acquired, err := c.guard.Acquire(ctx, job.RequestID)
	if err != nil {
		return c.nackInfra(&msg, &job, err)
	}
	if !acquired {
		// Another delivery already owns or finished this deposit.
		c.metrics.IncDuplicate()
		c.logger.Warn("duplicate deposit job skipped", slog.String("request_id", job.RequestID))
		return msg.Ack(false)
	}

	outcome := c.poller.Confirm(ctx, daraja.PushRequest{
		Phone:            job.Phone,
		Amount:           job.Amount,
		AccountReference: job.AccountReference,
		Description:      job.Narrative,
	})

	if outcome.Status == models.OutcomeCancelled {
		// Shutdown mid-poll: free the guard and requeue so the next
		// worker picks the deposit up again.
		_ = c.guard.Release(context.Background(), job.RequestID)
		_ = msg.Nack(false, true)
		return nil
	}

	if err := c.publisher.Publish(ctx, &job, outcome); err != nil {
		_ = c.guard.Release(context.Background(), job.RequestID)
		return c.nackInfra(&msg, &job, err)
	}

	if err := c.guard.Complete(ctx, job.RequestID); err != nil {
		c.logger.Warn("failed to mark deposit completed",
			slog.String("request_id", job.RequestID), slog.Any("error", err))
	}

	c.logger.Info("deposit confirmation finished",
		slog.String("request_id", job.RequestID),
		slog.String("status", outcome.Status),
		slog.Int("attempts", outcome.Attempts),
		slog.Duration("elapsed", outcome.Elapsed),
	)
	return msg.Ack(false)
}

// nackInfra handles infrastructure failures (redis, publish): requeue
// until the redelivery budget is spent, then dead-letter.
func (c *DepositConsumer) nackInfra(msg *amqp.Delivery, job *models.DepositJob, err error) error {
	requeue := deliveryAttempts(msg) < c.maxDeliveries
	if requeue {
		c.logger.Warn("deposit processing failed, message requeued",
			slog.String("request_id", job.RequestID), slog.Any("error", err))
	} else {
		c.logger.Error("deposit processing failed, message dead-lettered",
			slog.String("request_id", job.RequestID), slog.Any("error", err))
	}
	_ = msg.Nack(false, requeue)
	return err
}

// deliveryAttempts reads the broker's x-death count, falling back to the
// redelivered flag for brokers that do not track it.
func deliveryAttempts(msg *amqp.Delivery) int {
	deaths, ok := msg.Headers["x-death"].([]interface{})
	if ok && len(deaths) > 0 {
		if table, ok := deaths[0].(amqp.Table); ok {
			if count, ok := table["count"].(int64); ok {
				return int(count)
			}
		}
	}
	if msg.Redelivered {
		return 1
	}
	return 0
}
