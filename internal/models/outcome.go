package models

import "time"

const (
	// OutcomeConfirmed indicates the customer approved the prompt.
	OutcomeConfirmed = "confirmed"
	// OutcomeDeclined covers cancellation, insufficient funds and
	// on-device prompt expiry.
	OutcomeDeclined = "declined"
	// OutcomeTimedOut means the attempt budget ran out without a verdict.
	OutcomeTimedOut = "timed_out"
	// OutcomeCancelled means the caller gave up before a verdict.
	OutcomeCancelled = "cancelled"
	// OutcomeSubmissionFailed means the prompt was never dispatched.
	OutcomeSubmissionFailed = "submission_failed"
)

// TimedOutGuidance is the reason attached to a timed-out confirmation.
const TimedOutGuidance = "payment could not be verified; check your payment history"

// ConfirmationOutcome is the single value a confirmation call produces.
// Exactly one is returned per call; no partial state is exposed.
type ConfirmationOutcome struct {
	Status        string
	Receipt       string
	Reason        string
	CorrelationID string
	Attempts      int
	Elapsed       time.Duration
	// Cause is set only for OutcomeSubmissionFailed and carries the
	// typed auth or submission error for the caller to unwrap.
	Cause error
}
