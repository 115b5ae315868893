package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// Config carries the merchant credentials and endpoint URLs for one
// gateway environment. All URLs are configuration-supplied.
type Config struct {
	PushURL         string
	QueryURL        string
	Shortcode       string
	Passkey         string
	CallbackURL     string
	CountryCode     string
	TransactionType string
	Timeout         time.Duration
}

// Client talks to the push-payment gateway. It submits STK prompts and
// queries their status; classification of query results lives in
// Classifier, retry policy in the confirm package.
type Client struct {
	cfg     Config
	tokens  *TokenSource
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	now     func() time.Time
}

func NewClient(cfg Config, tokens *TokenSource, logger *slog.Logger) *Client {
	if cfg.CountryCode == "" {
		cfg.CountryCode = "254"
	}
	if cfg.TransactionType == "" {
		cfg.TransactionType = "CustomerPayBillOnline"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "daraja",
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		cfg:     cfg,
		tokens:  tokens,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
		now:     time.Now,
	}
}

type pushPayload struct {
	MerchantID       string `json:"merchantId"`
	Signature        string `json:"signature"`
	Timestamp        string `json:"timestamp"`
	TransactionType  string `json:"transactionType"`
	Amount           string `json:"amount"`
	PayerIdentifier  string `json:"payerIdentifier"`
	PayeeIdentifier  string `json:"payeeIdentifier"`
	CallbackAddress  string `json:"callbackAddress"`
	AccountReference string `json:"accountReference"`
	Description      string `json:"description"`
}

type pushResponse struct {
	MerchantRequestID   string `json:"merchantRequestId"`
	CorrelationID       string `json:"correlationId"`
	ResponseCode        *Code  `json:"responseCode,omitempty"`
	ResponseDescription string `json:"responseDescription"`
	CustomerMessage     string `json:"customerMessage"`
	ErrorCode           string `json:"errorCode,omitempty"`
	ErrorMessage        string `json:"errorMessage,omitempty"`
}

type queryPayload struct {
	MerchantID    string `json:"merchantId"`
	Signature     string `json:"signature"`
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlationId"`
}

// SubmitPush dispatches one STK prompt to the payer's phone. It is never
// retried here: any non-success reply is a SubmitError the caller
// surfaces immediately.
func (c *Client) SubmitPush(ctx context.Context, req PushRequest) (*PushSubmission, error) {
	timestamp := FormatTimestamp(c.now())
	signature, err := Sign(c.cfg.Shortcode, c.cfg.Passkey, timestamp)
	if err != nil {
		return nil, err
	}

	msisdn := NormalizeMSISDN(req.Phone, c.cfg.CountryCode)
	description := req.Description
	if description == "" {
		description = req.AccountReference
	}

	payload := pushPayload{
		MerchantID:       c.cfg.Shortcode,
		Signature:        signature,
		Timestamp:        timestamp,
		TransactionType:  c.cfg.TransactionType,
		Amount:           strconv.FormatInt(req.Amount, 10),
		PayerIdentifier:  msisdn,
		PayeeIdentifier:  c.cfg.Shortcode,
		CallbackAddress:  c.cfg.CallbackURL,
		AccountReference: req.AccountReference,
		Description:      description,
	}

	status, body, err := c.postJSON(ctx, c.cfg.PushURL, payload)
	if err != nil {
		return nil, err
	}

	var decoded pushResponse
	if unmarshalErr := json.Unmarshal(body, &decoded); unmarshalErr != nil && status >= 200 && status <= 299 {
		return nil, &SubmitError{Status: status, Message: fmt.Sprintf("undecodable initiation response: %s", body)}
	}

	if status < 200 || status > 299 {
		msg := decoded.ErrorMessage
		if msg == "" {
			msg = string(body)
		}
		return nil, &SubmitError{Status: status, Code: decoded.ErrorCode, Message: msg}
	}

	if decoded.ResponseCode == nil || !decoded.ResponseCode.IsZero() {
		msg := decoded.ResponseDescription
		if msg == "" {
			msg = decoded.CustomerMessage
		}
		code := ""
		if decoded.ResponseCode != nil {
			code = string(*decoded.ResponseCode)
		}
		return nil, &SubmitError{Status: status, Code: code, Message: msg}
	}

	if decoded.CorrelationID == "" {
		return nil, &SubmitError{Status: status, Message: "initiation accepted but no correlation id returned"}
	}

	c.logger.Info("stk prompt dispatched",
		slog.String("correlation_id", decoded.CorrelationID),
		slog.String("msisdn", msisdn),
		slog.String("amount", payload.Amount),
	)

	return &PushSubmission{
		CorrelationID:     decoded.CorrelationID,
		MerchantRequestID: decoded.MerchantRequestID,
		CustomerMessage:   decoded.CustomerMessage,
	}, nil
}

// QueryStatus asks the gateway for the current verdict on a dispatched
// prompt. Transport and decode failures are returned as errors for the
// classifier to absorb.
func (c *Client) QueryStatus(ctx context.Context, correlationID string) (*QueryResponse, error) {
	timestamp := FormatTimestamp(c.now())
	signature, err := Sign(c.cfg.Shortcode, c.cfg.Passkey, timestamp)
	if err != nil {
		return nil, err
	}

	payload := queryPayload{
		MerchantID:    c.cfg.Shortcode,
		Signature:     signature,
		Timestamp:     timestamp,
		CorrelationID: correlationID,
	}

	status, body, err := c.postJSON(ctx, c.cfg.QueryURL, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &httpStatusError{Status: status, Body: string(body)}
	}

	var decoded QueryResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return &decoded, nil
}

// postJSON sends one authenticated POST. Only the transport runs inside
// the circuit breaker so business rejections never trip it.
func (c *Client) postJSON(ctx context.Context, url string, payload interface{}) (int, []byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		return &httpReply{status: resp.StatusCode, body: raw}, nil
	})
	if err != nil {
		return 0, nil, err
	}

	reply := result.(*httpReply)
	return reply.status, reply.body, nil
}

type httpReply struct {
	status int
	body   []byte
}
