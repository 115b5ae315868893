package daraja

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PushRequest is the caller-facing input for one STK prompt. It is passed
// by value and never stored by this package.
type PushRequest struct {
	Phone            string
	Amount           int64
	AccountReference string
	Description      string
}

// PushSubmission is returned when the provider acknowledges that the
// prompt was dispatched. CorrelationID is the only artifact the polling
// phase needs.
type PushSubmission struct {
	CorrelationID     string
	MerchantRequestID string
	CustomerMessage   string
}

// QueryResponse is the decoded body of a status query. ResultCode is nil
// until the provider has a verdict for the prompt.
type QueryResponse struct {
	ResponseCode        Code   `json:"responseCode"`
	ResponseDescription string `json:"responseDescription"`
	ResultCode          *Code  `json:"resultCode,omitempty"`
	ResultDesc          string `json:"resultDesc,omitempty"`
	ReceiptReference    string `json:"receiptReference,omitempty"`
}

// Code is a provider result code. The gateway is inconsistent about
// quoting numerics, so it decodes from either a JSON string or number.
type Code string

func (c *Code) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*c = Code(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("result code: %w", err)
	}
	*c = Code(n.String())
	return nil
}

// IsZero reports whether the code is the provider's success sentinel.
func (c Code) IsZero() bool {
	if c == "0" {
		return true
	}
	n, err := strconv.Atoi(string(c))
	return err == nil && n == 0
}

// AuthError means the credential endpoint was unreachable or rejected the
// consumer key/secret pair. It is fatal for the whole confirmation call.
type AuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("daraja auth: %v", e.Err)
	}
	return fmt.Sprintf("daraja auth: status %d: %s", e.Status, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// SubmitError means the initiation call did not dispatch a prompt. The
// provider message is carried verbatim for display to the end user.
type SubmitError struct {
	Status  int
	Code    string
	Message string
}

func (e *SubmitError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daraja submit: %s (code %s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("daraja submit: %s (status %d)", e.Message, e.Status)
}

// httpStatusError is a non-2xx reply on the query path. It stays inside
// the package; the classifier inspects it for rate limiting.
type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("daraja: status %d: %s", e.Status, e.Body)
}
