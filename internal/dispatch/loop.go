// Package dispatch runs a send pass: one message to each recipient in order,
// gated by the send time and stopped by the daily limit.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dailysend/internal/metrics"
	"github.com/dailysend/internal/model"
)

// DefaultPace is the pause after every successful send.
const DefaultPace = time.Second

// Deliverer sends one message to one recipient. Failures are reported in the
// outcome, never as a panic.
type Deliverer interface {
	Deliver(ctx context.Context, d model.Delivery) model.DeliveryOutcome
}

// Clock supplies the wall-clock time checked against the send time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Observer is notified from the pass goroutine. Progress is called after each
// successful send, Completed exactly once when the pass ends.
type Observer interface {
	Progress(sent int)
	Completed(result model.RunResult)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	OnProgress  func(sent int)
	OnCompleted func(result model.RunResult)
}

func (o ObserverFuncs) Progress(sent int) {
	if o.OnProgress != nil {
		o.OnProgress(sent)
	}
}

func (o ObserverFuncs) Completed(result model.RunResult) {
	if o.OnCompleted != nil {
		o.OnCompleted(result)
	}
}

// stager is implemented by delivery errors that know where they failed.
type stager interface {
	DeliveryStage() string
}

// Loop is the dispatch loop. It is stateless between passes.
type Loop struct {
	deliverer Deliverer
	clock     Clock
	pace      time.Duration
	metrics   metrics.Sink
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewLoop(d Deliverer) *Loop {
	return &Loop{
		deliverer: d,
		clock:     systemClock{},
		pace:      DefaultPace,
		metrics:   metrics.NewNoopSink(),
		logger:    slog.Default(),
		sleep:     sleepContext,
	}
}

// WithClock replaces the wall clock used for the send-time check.
func (l *Loop) WithClock(c Clock) *Loop {
	l.clock = c
	return l
}

// WithPace sets the pause after each successful send.
func (l *Loop) WithPace(d time.Duration) *Loop {
	l.pace = d
	return l
}

// WithMetrics attaches a metrics sink to the loop.
func (l *Loop) WithMetrics(sink metrics.Sink) *Loop {
	l.metrics = sink
	return l
}

func (l *Loop) WithLogger(logger *slog.Logger) *Loop {
	l.logger = logger
	return l
}

// Run performs one pass over job.Recipients and returns how many sends
// succeeded.
//
// A recipient is attempted only while the clock reads exactly the job's send
// hour and minute; otherwise it is skipped for this pass and never retried.
// The pass ends when recipients run out or the sent count reaches
// job.DailyLimit. A failed delivery is not counted and does not stop the pass.
//
// ctx is the process lifetime: there is no other way to stop a pass early.
func (l *Loop) Run(ctx context.Context, job model.SendJob, obs Observer) model.RunResult {
	if obs == nil {
		obs = ObserverFuncs{}
	}

	var (
		sent       int
		skipped    int
		failed     int
		capReached bool
	)

	l.metrics.PassStarted(len(job.Recipients))
	l.logger.Info("dispatch: pass started",
		"recipients", len(job.Recipients),
		"daily_limit", job.DailyLimit,
		"send_time", job.TargetTime.String(),
	)

	for _, recipient := range job.Recipients {
		if ctx.Err() != nil {
			l.logger.Warn("dispatch: pass interrupted", "err", ctx.Err())
			break
		}

		if !job.TargetTime.Matches(l.clock.Now()) {
			skipped++
			l.metrics.RecipientSkipped()
			continue
		}

		start := time.Now()
		out := l.deliverer.Deliver(ctx, job.Delivery(recipient))
		if !out.Success {
			failed++
			l.metrics.DeliveryCompleted(metrics.OutcomeFailed, stageOf(out.Err), time.Since(start))
			continue
		}
		l.metrics.DeliveryCompleted(metrics.OutcomeSuccess, "", time.Since(start))

		sent++
		l.metrics.ProgressUpdate(sent)
		obs.Progress(sent)

		if err := l.sleep(ctx, l.pace); err != nil {
			l.logger.Debug("dispatch: pacing interrupted", "err", err)
		}

		if sent >= job.DailyLimit {
			capReached = true
			break
		}
	}

	result := model.RunResult{EmailsSent: sent}
	l.metrics.PassCompleted(sent, capReached)
	l.logger.Info("dispatch: pass completed",
		"emails_sent", sent,
		"failed", failed,
		"skipped", skipped,
		"daily_limit_reached", capReached,
	)
	obs.Completed(result)
	return result
}

func stageOf(err error) string {
	var s stager
	if errors.As(err, &s) {
		return s.DeliveryStage()
	}
	if err == nil {
		return "unknown"
	}
	return "other"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
