package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

const (
	paymentsExchange  = "payments.direct"
	depositRoutingKey = "deposit.confirm"
)

// Handler processes one delivery from the deposit queue.
type Handler func(ctx context.Context, msg amqp.Delivery) error

// BaseConsumer owns the RabbitMQ topology for the deposit queue and fans
// deliveries out to a fixed pool of workers. Confirmation calls block for
// minutes while polling, so the worker count bounds how many prompts can
// be in flight at once.
type BaseConsumer struct {
	conn        *amqp.Connection
	queue       string
	dlq         string
	prefetch    int
	workerCount int
	logger      *slog.Logger
}

func NewBaseConsumer(conn *amqp.Connection, queue, dlq string, prefetch, workerCount int, logger *slog.Logger) *BaseConsumer {
	if prefetch <= 0 {
		prefetch = 50
	}
	if workerCount <= 0 {
		workerCount = 5
	}
	return &BaseConsumer{
		conn:        conn,
		queue:       queue,
		dlq:         dlq,
		prefetch:    prefetch,
		workerCount: workerCount,
		logger:      logger,
	}
}

// Start declares the topology, then blocks consuming deliveries until
// the context is cancelled and all in-flight handlers have returned.
func (c *BaseConsumer) Start(ctx context.Context, handler Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.declareTopology(ch); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(c.workerCount)
	for i := 0; i < c.workerCount; i++ {
		go c.runWorker(ctx, i, deliveries, handler, &wg)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (c *BaseConsumer) runWorker(ctx context.Context, id int, deliveries <-chan amqp.Delivery, handler Handler, wg *sync.WaitGroup) {
	defer wg.Done()
	c.logger.Debug("consumer worker started", slog.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			if err := handler(ctx, msg); err != nil {
				c.logger.Error("handler returned error",
					slog.Int("worker", id), slog.Any("error", err))
			}
		}
	}
}

// declareTopology sets up the exchange, the deposit queue bound to it and
// the dead-letter queue that exhausted redeliveries land in.
func (c *BaseConsumer) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(paymentsExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	args := amqp.Table{}
	if c.dlq != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = c.dlq
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, args); err != nil {
		return err
	}
	if err := ch.QueueBind(c.queue, depositRoutingKey, paymentsExchange, false, nil); err != nil {
		return err
	}

	if c.dlq != "" {
		if _, err := ch.QueueDeclare(c.dlq, true, false, false, false, nil); err != nil {
			return err
		}
	}
	return nil
}
