package confirm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hudsonolin413-lang/axiobank-sub006/internal/daraja"
	"github.com/hudsonolin413-lang/axiobank-sub006/internal/models"
	"github.com/hudsonolin413-lang/axiobank-sub006/pkg/metrics"
)

// Gateway is the slice of the daraja client the poller drives: one
// submission, then repeated status queries.
type Gateway interface {
	SubmitPush(ctx context.Context, req daraja.PushRequest) (*daraja.PushSubmission, error)
	QueryStatus(ctx context.Context, correlationID string) (*daraja.QueryResponse, error)
}

// Policy bounds one confirmation call. RateLimitInterval must be longer
// than PollInterval; a rate-limited wait still consumes one attempt from
// the same budget.
type Policy struct {
	MaxAttempts       int
	PollInterval      time.Duration
	RateLimitInterval time.Duration
}

// DefaultPolicy mirrors the gateway's guidance: a prompt lives on the
// customer's phone for a couple of minutes, so 30 polls 15s apart cover
// it with slack.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       30,
		PollInterval:      15 * time.Second,
		RateLimitInterval: 20 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 30
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 15 * time.Second
	}
	if p.RateLimitInterval <= p.PollInterval {
		p.RateLimitInterval = p.PollInterval + 5*time.Second
	}
	return p
}

// Poller runs one push-payment confirmation end to end: dispatch the
// prompt, then poll until the customer's verdict is observed, a terminal
// gateway error occurs, the budget runs out, or the caller cancels.
type Poller struct {
	gateway    Gateway
	classifier *daraja.Classifier
	policy     Policy
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewPoller(gateway Gateway, classifier *daraja.Classifier, policy Policy, logger *slog.Logger, collector *metrics.Metrics) *Poller {
	if collector == nil {
		collector = metrics.New()
	}
	return &Poller{
		gateway:    gateway,
		classifier: classifier,
		policy:     policy.normalized(),
		logger:     logger,
		metrics:    collector,
	}
}

// Confirm is the engine's single entry point. Every anomaly inside the
// polling phase is absorbed into the returned outcome; only the
// submission phase can carry a typed error out via the Cause field.
func (p *Poller) Confirm(ctx context.Context, req daraja.PushRequest) models.ConfirmationOutcome {
	started := time.Now()

	if err := ctx.Err(); err != nil {
		return models.ConfirmationOutcome{Status: models.OutcomeCancelled, Elapsed: time.Since(started)}
	}

	submission, err := p.gateway.SubmitPush(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.metrics.IncCancelled()
			return models.ConfirmationOutcome{Status: models.OutcomeCancelled, Elapsed: time.Since(started)}
		}
		p.metrics.IncFailed()
		p.logger.Error("stk submission failed", slog.Any("error", err))
		return models.ConfirmationOutcome{
			Status:  models.OutcomeSubmissionFailed,
			Reason:  err.Error(),
			Cause:   err,
			Elapsed: time.Since(started),
		}
	}
	p.metrics.IncSubmitted()

	outcome := p.poll(ctx, submission.CorrelationID)
	outcome.CorrelationID = submission.CorrelationID
	outcome.Elapsed = time.Since(started)
	return outcome
}

// poll issues the first query immediately and every later one after the
// interval matching the previous attempt's classification.
func (p *Poller) poll(ctx context.Context, correlationID string) models.ConfirmationOutcome {
	for attempt := 1; ; attempt++ {
		resp, err := p.gateway.QueryStatus(ctx, correlationID)
		if ctx.Err() != nil {
			p.metrics.IncCancelled()
			return models.ConfirmationOutcome{Status: models.OutcomeCancelled, Attempts: attempt}
		}

		verdict := p.classifier.Classify(resp, err)
		p.logger.Info("confirmation poll",
			slog.String("correlation_id", correlationID),
			slog.Int("attempt", attempt),
			slog.String("state", verdict.State.String()),
		)

		switch verdict.State {
		case daraja.StateConfirmed:
			p.metrics.IncConfirmed()
			return models.ConfirmationOutcome{
				Status:   models.OutcomeConfirmed,
				Receipt:  verdict.Receipt,
				Attempts: attempt,
			}
		case daraja.StateDeclined:
			p.metrics.IncDeclined()
			return models.ConfirmationOutcome{
				Status:   models.OutcomeDeclined,
				Reason:   verdict.Reason,
				Attempts: attempt,
			}
		}

		if attempt >= p.policy.MaxAttempts {
			p.metrics.IncTimedOut()
			return models.ConfirmationOutcome{
				Status:   models.OutcomeTimedOut,
				Reason:   models.TimedOutGuidance,
				Attempts: attempt,
			}
		}

		wait := p.policy.PollInterval
		if verdict.State == daraja.StateRateLimited {
			wait = p.policy.RateLimitInterval
		}
		if cancelled := p.wait(ctx, wait); cancelled {
			p.metrics.IncCancelled()
			return models.ConfirmationOutcome{Status: models.OutcomeCancelled, Attempts: attempt}
		}
	}
}

// wait blocks for d or until the caller gives up, whichever is first.
func (p *Poller) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
