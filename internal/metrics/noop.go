package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) PassStarted(recipients int)                               {}
func (n *NoopSink) PassCompleted(emailsSent int, capReached bool)            {}
func (n *NoopSink) RecipientSkipped()                                        {}
func (n *NoopSink) DeliveryCompleted(outcome, stage string, d time.Duration) {}
func (n *NoopSink) ProgressUpdate(sent int)                                  {}
