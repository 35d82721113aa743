// Package jobs runs the long mailbox and extraction operations in the
// background and reports their progress as Bubble Tea messages.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// ErrBusy is returned when an operation is launched while another one
// guarded by the same gate is still running. Launches are never queued.
var ErrBusy = errors.New("operation already running")

// Gate admits one operation at a time.
type Gate struct {
	name    string
	mu      sync.Mutex
	running bool
}

// NewGate creates an idle gate.
func NewGate(name string) *Gate {
	return &Gate{name: name}
}

// Name returns the gate's name.
func (g *Gate) Name() string { return g.name }

// TryStart marks the gate busy and reports whether it was idle.
func (g *Gate) TryStart() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	return true
}

// Done marks the gate idle.
func (g *Gate) Done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
}

// Running reports whether an operation holds the gate.
func (g *Gate) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// ProgressMsg is a tea.Msg sent while an operation advances.
type ProgressMsg struct {
	Job   string
	Done  int
	Total int
	Label string
}

// ResultMsg is the last tea.Msg of an operation. A cancelled operation
// carries Cancelled and whatever partial Value it produced, not an error.
type ResultMsg struct {
	Job       string
	Value     any
	Err       error
	Cancelled bool
	Elapsed   time.Duration
}

// Task is the body of a background operation. It reports progress through
// progress and must poll ctx between units of work.
type Task func(ctx context.Context, progress func(done, total int, label string)) (any, error)

// eventBuffer bounds queued progress messages; when the consumer lags,
// intermediate progress is dropped.
const eventBuffer = 64

// Job is one running operation.
type Job struct {
	name   string
	events chan tea.Msg
	cancel context.CancelFunc
	done   chan struct{}
}

// Events returns the channel of ProgressMsg values followed by exactly one
// ResultMsg. It is closed after the ResultMsg.
func (j *Job) Events() <-chan tea.Msg { return j.events }

// Cancel requests cooperative cancellation. The task stops at its next
// poll point.
func (j *Job) Cancel() { j.cancel() }

// Wait blocks until the task has returned.
func (j *Job) Wait() { <-j.done }

// WaitForEvent returns a tea.Cmd that waits for the next event of the job.
// It yields nil once the job's channel is closed. Call it again after each
// message to keep listening.
func (j *Job) WaitForEvent() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-j.events
		if !ok {
			return nil
		}
		return msg
	}
}

// Runner owns the gates that serialize mailbox and extraction work. Both
// kinds may run at the same time; two of the same kind may not.
type Runner struct {
	Email      *Gate
	Extraction *Gate

	log *zap.SugaredLogger
}

// NewRunner creates a Runner with idle gates.
func NewRunner(log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{
		Email:      NewGate("email"),
		Extraction: NewGate("extraction"),
		log:        log,
	}
}

// Go starts task in a new goroutine under gate. It returns ErrBusy without
// starting anything when the gate is held. The gate is released before the
// ResultMsg is delivered.
func (r *Runner) Go(ctx context.Context, gate *Gate, name string, task Task) (*Job, error) {
	if !gate.TryStart() {
		r.log.Warnw("rejected operation, another one is running", "gate", gate.Name(), "job", name)
		return nil, ErrBusy
	}

	ctx, cancel := context.WithCancel(ctx)
	job := &Job{
		name:   name,
		events: make(chan tea.Msg, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(job.events)
		defer cancel()

		started := time.Now()
		r.log.Debugw("operation started", "gate", gate.Name(), "job", name)

		progress := func(done, total int, label string) {
			select {
			case job.events <- ProgressMsg{Job: name, Done: done, Total: total, Label: label}:
			default:
			}
		}

		value, err := task(ctx, progress)
		res := ResultMsg{Job: name, Value: value, Elapsed: time.Since(started)}
		switch {
		case errors.Is(err, context.Canceled) || (err == nil && ctx.Err() != nil):
			res.Cancelled = true
		default:
			res.Err = err
		}

		gate.Done()
		close(job.done)
		r.log.Debugw("operation finished",
			"gate", gate.Name(),
			"job", name,
			"elapsed", res.Elapsed,
			"cancelled", res.Cancelled,
			"error", res.Err,
		)
		job.events <- res
	}()

	return job, nil
}
