package dispatch

import (
	"context"
	"sync/atomic"

	"github.com/dailysend/internal/model"
)

// Pass is a dispatch pass running on its own goroutine. Its sent counter and
// update channel may be read from any goroutine at any cadence.
type Pass struct {
	limit      int
	recipients int
	sent       atomic.Int64
	updates    chan int
	done       chan struct{}
	result     model.RunResult
}

// Start runs one pass of l over job in a new goroutine and returns
// immediately. Observers are called from that goroutine.
func Start(ctx context.Context, l *Loop, job model.SendJob, observers ...Observer) *Pass {
	p := &Pass{
		limit:      job.DailyLimit,
		recipients: len(job.Recipients),
		updates:    make(chan int, 1),
		done:       make(chan struct{}),
	}

	obs := fanout(append([]Observer{passObserver{p}}, observers...))

	go func() {
		defer close(p.done)
		defer close(p.updates)
		p.result = l.Run(ctx, job, obs)
	}()
	return p
}

// Sent returns the number of successful sends so far.
func (p *Pass) Sent() int {
	return int(p.sent.Load())
}

// Limit returns the job's daily limit, the upper bound of Sent.
func (p *Pass) Limit() int {
	return p.limit
}

// Recipients returns the number of recipient rows in the job.
func (p *Pass) Recipients() int {
	return p.recipients
}

// Updates delivers the latest sent count; intermediate values may be
// dropped. The channel is closed when the pass ends.
func (p *Pass) Updates() <-chan int {
	return p.updates
}

// Done is closed when the pass has ended and Result is available.
func (p *Pass) Done() <-chan struct{} {
	return p.done
}

// Result returns the final tally and whether the pass has ended.
func (p *Pass) Result() (model.RunResult, bool) {
	select {
	case <-p.done:
		return p.result, true
	default:
		return model.RunResult{}, false
	}
}

// Wait blocks until the pass ends or ctx is done.
func (p *Pass) Wait(ctx context.Context) (model.RunResult, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return model.RunResult{}, ctx.Err()
	}
}

type passObserver struct {
	p *Pass
}

func (o passObserver) Progress(sent int) {
	o.p.sent.Store(int64(sent))

	// latest wins; the worker never blocks on a slow reader
	select {
	case o.p.updates <- sent:
	default:
		select {
		case <-o.p.updates:
		default:
		}
		select {
		case o.p.updates <- sent:
		default:
		}
	}
}

func (o passObserver) Completed(model.RunResult) {}

type fanout []Observer

func (f fanout) Progress(sent int) {
	for _, o := range f {
		o.Progress(sent)
	}
}

func (f fanout) Completed(result model.RunResult) {
	for _, o := range f {
		o.Completed(result)
	}
}
