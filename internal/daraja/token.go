package daraja

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultTokenSafetyMargin is subtracted from the provider's advertised
// token lifetime so a token is never used while racing its expiry.
const DefaultTokenSafetyMargin = 100 * time.Second

type accessToken struct {
	value     string
	expiresAt time.Time
}

// TokenSource caches the gateway's client-credentials bearer token.
// It is safe for concurrent use: callers that find the cache expired
// collapse into a single refresh call and share its result.
type TokenSource struct {
	oauthURL       string
	consumerKey    string
	consumerSecret string
	safetyMargin   time.Duration
	client         *http.Client

	now func() time.Time

	mu     sync.Mutex
	cached *accessToken
}

func NewTokenSource(oauthURL, consumerKey, consumerSecret string, safetyMargin, timeout time.Duration) *TokenSource {
	if safetyMargin <= 0 {
		safetyMargin = DefaultTokenSafetyMargin
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TokenSource{
		oauthURL:       oauthURL,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		safetyMargin:   safetyMargin,
		client:         &http.Client{Timeout: timeout},
		now:            time.Now,
	}
}

// Token returns a currently valid bearer token, refreshing it from the
// credential endpoint only when the cached one is absent or inside its
// safety margin. The mutex is held across the refresh so concurrent
// callers produce exactly one network call.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Before(s.cached.expiresAt) {
		return s.cached.value, nil
	}

	token, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.cached = token
	return token.value, nil
}

func (s *TokenSource) fetch(ctx context.Context) (*accessToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.oauthURL, nil)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	req.SetBasicAuth(s.consumerKey, s.consumerSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AuthError{Status: resp.StatusCode, Message: string(body)}
	}

	var decoded struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &AuthError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if decoded.AccessToken == "" {
		return nil, &AuthError{Status: resp.StatusCode, Message: "token response had no access_token"}
	}

	ttl, err := decoded.ExpiresIn.Int64()
	if err != nil || ttl <= 0 {
		ttl = 3600
	}

	return &accessToken{
		value:     decoded.AccessToken,
		expiresAt: s.now().Add(time.Duration(ttl)*time.Second - s.safetyMargin),
	}, nil
}
