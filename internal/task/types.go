package task

import (
	"context"
	"sync/atomic"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is one of the three final states.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Work is the body of a task. It runs on its own goroutine, must observe ctx
// at blocking points to be cancellable, and may call report with a 0-100
// percentage at coarse checkpoints.
type Work func(ctx context.Context, report func(percent int)) (any, error)

// Result is the immutable outcome of a finished task.
type Result struct {
	Status   Status
	Value    any
	Err      error
	Duration time.Duration
}

// Task is the orchestrator-owned record for one unit of work. Fields are
// guarded by the manager mutex; callers only ever see Snapshot copies.
type Task struct {
	ID         string
	Status     Status
	Timeout    time.Duration
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Result     *Result

	cancel          context.CancelFunc
	cancelRequested atomic.Bool
	terminal        atomic.Bool
}

// Snapshot is a point-in-time copy of a task safe to hand to callers.
type Snapshot struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Duration   string     `json:"duration,omitempty"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type Options struct {
	// ShutdownGrace bounds how long Shutdown waits for workers to exit.
	ShutdownGrace time.Duration
	// EventBuffer sizes the notification channel.
	EventBuffer int
}

const (
	defaultShutdownGrace = 10 * time.Second
	defaultEventBuffer   = 128
)
