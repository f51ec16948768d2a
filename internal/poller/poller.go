// Package poller drives an agent task to a terminal state by fetching its
// status at a fixed interval under an attempt budget.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scriptstudio/backend/internal/agent"
)

const (
	DefaultMaxAttempts = 150
	DefaultInterval    = 2 * time.Second
)

// State is the poller's view of a task.
type State int

const (
	Pending State = iota
	Running
	Completed
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == TimedOut
}

// Step is the transition function for one observation. Terminal states are
// absorbing. Unknown agent statuses leave the state unchanged.
func Step(s State, observed agent.Status) State {
	if s.Terminal() {
		return s
	}
	switch observed {
	case agent.StatusPending:
		return Pending
	case agent.StatusRunning:
		return Running
	case agent.StatusCompleted:
		return Completed
	case agent.StatusFailed:
		return Failed
	}
	return s
}

var ErrPollTimeout = errors.New("agent task did not finish within the polling budget")

// TimeoutError is returned when MaxAttempts fetches all observed a
// non-terminal status.
type TimeoutError struct {
	TaskID   string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s: %v after %d attempts", e.TaskID, ErrPollTimeout, e.Attempts)
}

func (e *TimeoutError) Unwrap() error { return ErrPollTimeout }

var ErrTaskFailed = errors.New("agent task failed")

// TaskFailedError carries the agent's own failure message.
type TaskFailedError struct {
	TaskID  string
	Message string
}

func (e *TaskFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("task %s: %v", e.TaskID, ErrTaskFailed)
	}
	return fmt.Sprintf("task %s: %v: %s", e.TaskID, ErrTaskFailed, e.Message)
}

func (e *TaskFailedError) Unwrap() error { return ErrTaskFailed }

// StatusFetcher is the subset of agent.Client the poller needs.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, taskID string) (*agent.TaskStatus, error)
}

// Poller is safe for concurrent use; each Run keeps its own state.
type Poller struct {
	fetcher     StatusFetcher
	maxAttempts int
	interval    time.Duration
	logger      *slog.Logger
	onAttempt   func(attempt int, st State)
}

type Option func(*Poller)

func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d >= 0 {
			p.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithAttemptHook registers a callback invoked after every successful fetch.
func WithAttemptHook(fn func(attempt int, st State)) Option {
	return func(p *Poller) {
		p.onAttempt = fn
	}
}

func New(fetcher StatusFetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:     fetcher,
		maxAttempts: DefaultMaxAttempts,
		interval:    DefaultInterval,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Budget is the longest wall-clock time Run waits between fetches.
func (p *Poller) Budget() time.Duration {
	return time.Duration(p.maxAttempts) * p.interval
}

// Run fetches the task status until it is terminal or the attempt budget is
// spent. It does not sleep after the final attempt. Fetch errors end the run
// immediately; retrying a transport failure is the caller's decision.
func (p *Poller) Run(ctx context.Context, taskID string) (*agent.TaskStatus, error) {
	state := Pending
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		st, err := p.fetcher.FetchStatus(ctx, taskID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("poll task %s: %w", taskID, ctxErr)
			}
			return nil, fmt.Errorf("poll task %s (attempt %d): %w", taskID, attempt, err)
		}

		state = Step(state, st.Status)
		if p.onAttempt != nil {
			p.onAttempt(attempt, state)
		}
		p.logger.Debug("polled agent task", "task_id", taskID, "attempt", attempt, "status", state.String())

		switch state {
		case Completed:
			return st, nil
		case Failed:
			return nil, &TaskFailedError{TaskID: taskID, Message: st.Error}
		}

		if attempt == p.maxAttempts {
			break
		}
		if timer == nil {
			timer = time.NewTimer(p.interval)
		} else {
			timer.Reset(p.interval)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("poll task %s: %w", taskID, ctx.Err())
		case <-timer.C:
		}
	}

	p.logger.Warn("agent task poll budget exhausted", "task_id", taskID, "attempts", p.maxAttempts)
	return nil, &TimeoutError{TaskID: taskID, Attempts: p.maxAttempts}
}
