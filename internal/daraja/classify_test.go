package daraja

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testClassifier(patterns ...string) *Classifier {
	return NewClassifier(patterns, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func codePtr(c Code) *Code { return &c }

func TestClassifyConfirmed(t *testing.T) {
	c := testClassifier()

	verdict := c.Classify(&QueryResponse{
		ResponseCode:     "0",
		ResultCode:       codePtr("0"),
		ReceiptReference: "QGR7XXXX",
	}, nil)

	if verdict.State != StateConfirmed {
		t.Fatalf("state = %v, want confirmed", verdict.State)
	}
	if verdict.Receipt != "QGR7XXXX" {
		t.Errorf("receipt = %q, want QGR7XXXX", verdict.Receipt)
	}
}

func TestClassifyConfirmedReceiptFallsBackToResultDesc(t *testing.T) {
	c := testClassifier()

	verdict := c.Classify(&QueryResponse{
		ResultCode: codePtr("0"),
		ResultDesc: "QLK81H62A7",
	}, nil)

	if verdict.State != StateConfirmed || verdict.Receipt != "QLK81H62A7" {
		t.Errorf("got %+v, want confirmed with receipt from result desc", verdict)
	}
}

func TestClassifyPendingByDescription(t *testing.T) {
	c := testClassifier()

	verdict := c.Classify(&QueryResponse{
		ResultCode: codePtr("500.001.1001"),
		ResultDesc: "The transaction is being processed",
	}, nil)

	if verdict.State != StatePending {
		t.Errorf("state = %v, want pending", verdict.State)
	}
}

func TestClassifyDeclinedWithReason(t *testing.T) {
	c := testClassifier()

	verdict := c.Classify(&QueryResponse{
		ResultCode: codePtr("1032"),
		ResultDesc: "Request cancelled by user",
	}, nil)

	if verdict.State != StateDeclined {
		t.Fatalf("state = %v, want declined", verdict.State)
	}
	if verdict.Reason != "Request cancelled by user" {
		t.Errorf("reason = %q, want provider description", verdict.Reason)
	}
}

func TestClassifyResultCodePrecedesText(t *testing.T) {
	// A zero result code wins even when the prose looks like a decline.
	c := testClassifier()

	verdict := c.Classify(&QueryResponse{
		ResultCode: codePtr("0"),
		ResultDesc: "rate limit notice in prose",
	}, nil)

	if verdict.State != StateConfirmed {
		t.Errorf("state = %v, want confirmed (result code takes precedence)", verdict.State)
	}
}

func TestClassifyMissingResultCodeIsPending(t *testing.T) {
	c := testClassifier()

	verdict := c.Classify(&QueryResponse{
		ResponseCode:        "0",
		ResponseDescription: "Accepted for processing",
	}, nil)

	if verdict.State != StatePending {
		t.Errorf("state = %v, want pending", verdict.State)
	}
}

func TestClassifyRateLimitedByStatus(t *testing.T) {
	c := testClassifier()

	verdict := c.Classify(nil, &httpStatusError{Status: 429, Body: "Spike arrest"})
	if verdict.State != StateRateLimited {
		t.Errorf("state = %v, want rate_limited", verdict.State)
	}
}

func TestClassifyRateLimitedByText(t *testing.T) {
	c := testClassifier()

	verdict := c.Classify(nil, errors.New("provider says: rate limit exceeded"))
	if verdict.State != StateRateLimited {
		t.Errorf("state = %v, want rate_limited", verdict.State)
	}
}

func TestClassifyTransportErrorIsPending(t *testing.T) {
	c := testClassifier()

	cases := []error{
		errors.New("connection reset by peer"),
		errors.New("decode query response: unexpected end of JSON input"),
		&httpStatusError{Status: 500, Body: "internal error"},
	}
	for _, err := range cases {
		if verdict := c.Classify(nil, err); verdict.State != StatePending {
			t.Errorf("Classify(nil, %v) = %v, want pending", err, verdict.State)
		}
	}
}

func TestClassifierCustomPatterns(t *testing.T) {
	c := testClassifier("awaiting subscriber")

	verdict := c.Classify(&QueryResponse{
		ResultCode: codePtr("1"),
		ResultDesc: "Awaiting subscriber confirmation",
	}, nil)
	if verdict.State != StatePending {
		t.Errorf("custom pattern not matched: state = %v", verdict.State)
	}

	// The compiled-in defaults are replaced, not appended.
	verdict = c.Classify(&QueryResponse{
		ResultCode: codePtr("1"),
		ResultDesc: "The transaction is being processed",
	}, nil)
	if verdict.State != StateDeclined {
		t.Errorf("default pattern should not match with custom list: state = %v", verdict.State)
	}
}
