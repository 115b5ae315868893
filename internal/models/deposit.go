package models

import "time"

// DepositJob is the payload produced by the wallet API and consumed by the
// confirmation worker. One job corresponds to one STK prompt on the
// customer's phone.
type DepositJob struct {
	RequestID        string    `json:"request_id"`
	CreatedAt        time.Time `json:"created_at"`
	Phone            string    `json:"phone"`
	Amount           int64     `json:"amount"`
	AccountReference string    `json:"account_reference"`
	Narrative        string    `json:"narrative,omitempty"`
	RetryCount       int       `json:"retry_count"`
}

// DepositResult is published to the result queue once a confirmation call
// reaches a terminal outcome. Downstream services (wallet crediting,
// notifications) consume it; this worker never persists it.
type DepositResult struct {
	EventID       string    `json:"event_id"`
	RequestID     string    `json:"request_id"`
	Status        string    `json:"status"`
	Receipt       string    `json:"receipt,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Attempts      int       `json:"attempts"`
	CompletedAt   time.Time `json:"completed_at"`
}
