package daraja

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var calls atomic.Int64
	tokenSrv := newTokenServer(t, &calls, 3600)
	tokens := NewTokenSource(tokenSrv.URL, "key", "secret", 100*time.Second, time.Second)

	client := NewClient(Config{
		PushURL:     srv.URL + "/pushpayment/initiate",
		QueryURL:    srv.URL + "/pushpayment/query",
		Shortcode:   "174379",
		Passkey:     "passkey",
		CallbackURL: "https://example.test/callback",
		Timeout:     time.Second,
	}, tokens, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return client
}

func TestSubmitPushSuccess(t *testing.T) {
	var gotBody pushPayload
	var gotAuth string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"merchantRequestId":"29115-34620561-1","correlationId":"ws_CO_191220191020363925","responseCode":"0","responseDescription":"Success. Request accepted for processing","customerMessage":"Success. Request accepted for processing"}`)
	}))

	sub, err := client.SubmitPush(context.Background(), PushRequest{
		Phone:            "0712345678",
		Amount:           150,
		AccountReference: "WALLET-42",
		Description:      "Wallet top up",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sub.CorrelationID != "ws_CO_191220191020363925" {
		t.Errorf("correlation id = %q", sub.CorrelationID)
	}
	if gotAuth != "Bearer token-1" {
		t.Errorf("authorization header = %q, want bearer token", gotAuth)
	}
	if gotBody.PayerIdentifier != "254712345678" {
		t.Errorf("payer = %q, want normalized 254712345678", gotBody.PayerIdentifier)
	}
	if gotBody.Amount != "150" {
		t.Errorf("amount = %q, want 150", gotBody.Amount)
	}
	if gotBody.MerchantID != "174379" || gotBody.PayeeIdentifier != "174379" {
		t.Errorf("merchant/payee = %q/%q, want shortcode", gotBody.MerchantID, gotBody.PayeeIdentifier)
	}

	wantSig := base64.StdEncoding.EncodeToString([]byte("174379" + "passkey" + gotBody.Timestamp))
	if gotBody.Signature != wantSig {
		t.Errorf("signature = %q, want %q (derived from the transmitted timestamp)", gotBody.Signature, wantSig)
	}
	if len(gotBody.Timestamp) != len(TimestampLayout) {
		t.Errorf("timestamp %q is not fixed-width %s", gotBody.Timestamp, TimestampLayout)
	}
}

func TestSubmitPushServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"errorCode":"500.002.1001","errorMessage":"Service is currently unreachable"}`)
	}))

	_, err := client.SubmitPush(context.Background(), PushRequest{Phone: "0712345678", Amount: 10})
	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Fatalf("expected SubmitError, got %v", err)
	}
	if submitErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", submitErr.Status)
	}
	if submitErr.Message != "Service is currently unreachable" {
		t.Errorf("message = %q, want provider message verbatim", submitErr.Message)
	}
}

func TestSubmitPushBusinessRejection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"responseCode":"1","responseDescription":"Merchant does not exist"}`)
	}))

	_, err := client.SubmitPush(context.Background(), PushRequest{Phone: "0712345678", Amount: 10})
	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Fatalf("expected SubmitError, got %v", err)
	}
	if submitErr.Code != "1" || submitErr.Message != "Merchant does not exist" {
		t.Errorf("got code %q message %q", submitErr.Code, submitErr.Message)
	}
}

func TestSubmitPushAuthFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("initiation endpoint must not be called when auth fails")
	}))
	t.Cleanup(srv.Close)

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(tokenSrv.Close)

	tokens := NewTokenSource(tokenSrv.URL, "key", "secret", 100*time.Second, time.Second)
	client := NewClient(Config{
		PushURL:   srv.URL,
		QueryURL:  srv.URL,
		Shortcode: "174379",
		Passkey:   "passkey",
	}, tokens, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := client.SubmitPush(context.Background(), PushRequest{Phone: "0712345678", Amount: 10})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestQueryStatus(t *testing.T) {
	var gotBody queryPayload

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"responseCode":"0","responseDescription":"The service request has been accepted successfully","resultCode":"0","resultDesc":"The service request is processed successfully."}`)
	}))

	resp, err := client.QueryStatus(context.Background(), "ws_CO_191220191020363925")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody.CorrelationID != "ws_CO_191220191020363925" {
		t.Errorf("correlation id on the wire = %q", gotBody.CorrelationID)
	}
	if gotBody.Signature == "" || gotBody.Timestamp == "" {
		t.Error("query must carry signature and timestamp")
	}
	if resp.ResultCode == nil || !resp.ResultCode.IsZero() {
		t.Errorf("result code = %v, want success sentinel", resp.ResultCode)
	}
}

func TestQueryStatusNon2xx(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "Spike arrest violation")
	}))

	_, err := client.QueryStatus(context.Background(), "ws_CO_1")
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected httpStatusError, got %v", err)
	}
	if statusErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", statusErr.Status)
	}
}

func TestConcurrentSubmitsShareOneToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"correlationId":"ws_CO_1","responseCode":"0"}`)
	}))
	t.Cleanup(srv.Close)

	var tokenCalls atomic.Int64
	tokenSrv := newTokenServer(t, &tokenCalls, 3600)
	tokens := NewTokenSource(tokenSrv.URL, "key", "secret", 100*time.Second, time.Second)

	client := NewClient(Config{
		PushURL:   srv.URL,
		QueryURL:  srv.URL,
		Shortcode: "174379",
		Passkey:   "passkey",
	}, tokens, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.SubmitPush(context.Background(), PushRequest{Phone: "0712345678", Amount: 10}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token endpoint called %d times across 10 concurrent submits, want 1", got)
	}
}

func TestQueryStatusNumericResultCode(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"responseCode":0,"responseDescription":"ok","resultCode":1032,"resultDesc":"Request cancelled by user"}`)
	}))

	resp, err := client.QueryStatus(context.Background(), "ws_CO_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ResultCode == nil || string(*resp.ResultCode) != "1032" {
		t.Errorf("result code = %v, want 1032 decoded from a JSON number", resp.ResultCode)
	}
}
