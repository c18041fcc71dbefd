package metrics

import "time"

// Sink records dispatch metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
type Sink interface {
	PassStarted(recipients int)
	PassCompleted(emailsSent int, capReached bool)
	RecipientSkipped()
	DeliveryCompleted(outcome, stage string, duration time.Duration)
	ProgressUpdate(sent int)
}

// Outcome constants for DeliveryCompleted.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)
