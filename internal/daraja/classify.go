package daraja

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// State is the strict taxonomy a raw query result collapses into.
type State int

const (
	// StatePending means no verdict yet; the poller queries again.
	StatePending State = iota
	// StateConfirmed means the customer approved the prompt.
	StateConfirmed
	// StateDeclined covers cancellation, insufficient funds and
	// on-device prompt expiry.
	StateDeclined
	// StateRateLimited means the gateway pushed back; the poller waits
	// longer before the next query.
	StateRateLimited
)

func (s State) String() string {
	switch s {
	case StateConfirmed:
		return "confirmed"
	case StateDeclined:
		return "declined"
	case StateRateLimited:
		return "rate_limited"
	default:
		return "pending"
	}
}

// Classification is the classifier's verdict for one query attempt.
type Classification struct {
	State   State
	Receipt string
	Reason  string
}

// defaultPendingPatterns match the gateway's "still processing" prose.
// The live list is configuration; these are the compiled-in fallback.
var defaultPendingPatterns = []string{
	"is being processed",
	"still under processing",
	"request is processing",
}

// Classifier maps raw query replies onto the State taxonomy. Pattern
// matching on provider prose is fragile, so every decision is logged
// with the raw input it was made from.
type Classifier struct {
	pendingPatterns []string
	logger          *slog.Logger
}

func NewClassifier(pendingPatterns []string, logger *slog.Logger) *Classifier {
	patterns := make([]string, 0, len(pendingPatterns))
	for _, p := range pendingPatterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		patterns = append(patterns, defaultPendingPatterns...)
	}
	return &Classifier{pendingPatterns: patterns, logger: logger}
}

// Classify applies the rules in priority order: provider result codes
// first, then free-text matching, then transport-level rate limiting;
// transport ambiguity defaults to pending so a customer still looking at
// their phone is never declared failed.
func (c *Classifier) Classify(resp *QueryResponse, err error) Classification {
	verdict := c.classify(resp, err)

	attrs := []interface{}{slog.String("state", verdict.State.String())}
	if resp != nil {
		attrs = append(attrs,
			slog.String("response_code", string(resp.ResponseCode)),
			slog.String("result_desc", resp.ResultDesc),
		)
		if resp.ResultCode != nil {
			attrs = append(attrs, slog.String("result_code", string(*resp.ResultCode)))
		}
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	c.logger.Debug("classified query result", attrs...)

	return verdict
}

func (c *Classifier) classify(resp *QueryResponse, err error) Classification {
	if err == nil && resp != nil {
		if resp.ResultCode != nil {
			if resp.ResultCode.IsZero() {
				receipt := resp.ReceiptReference
				if receipt == "" {
					receipt = resp.ResultDesc
				}
				return Classification{State: StateConfirmed, Receipt: receipt}
			}
			if c.matchesPending(resp.ResultDesc) {
				return Classification{State: StatePending}
			}
			reason := resp.ResultDesc
			if reason == "" {
				reason = resp.ResponseDescription
			}
			return Classification{State: StateDeclined, Reason: reason}
		}
		// A 2xx body with no result code means the gateway has no
		// verdict for the prompt yet.
		return Classification{State: StatePending}
	}

	if err == nil {
		return Classification{State: StatePending}
	}

	if isRateLimited(err) {
		return Classification{State: StateRateLimited}
	}

	// Connection resets, malformed bodies, breaker-open and everything
	// else transport-shaped is transient.
	return Classification{State: StatePending}
}

func (c *Classifier) matchesPending(desc string) bool {
	desc = strings.ToLower(desc)
	for _, pattern := range c.pendingPatterns {
		if strings.Contains(desc, pattern) {
			return true
		}
	}
	return false
}

// isRateLimited treats HTTP 429 as authoritative; matching "rate" or
// "429" in the error text is a best-effort fallback for gateways that
// report throttling through prose.
func isRateLimited(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusTooManyRequests {
		return true
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "rate") || strings.Contains(text, "429")
}
