package task

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"veritas/internal/metrics"
)

// Manager runs units of work off the caller's goroutine and delivers lifecycle
// notifications back through a single dispatch goroutine, so a single-threaded
// consumer (a UI loop, an HTTP handler set) never sees concurrent callbacks.
//
// Each task gets its own goroutine and its own context; one slow task cannot
// starve another. Submit, Cancel, IsRunning and Get are safe for concurrent
// use.
type Manager struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	listener Listener
	opts     Options

	baseCtx    context.Context
	baseCancel context.CancelFunc

	events       chan event
	stopDispatch chan struct{}
	dispatchDone chan struct{}

	workersWG    sync.WaitGroup
	shuttingDown atomic.Bool
	shutdownOnce sync.Once
}

// NewManager creates a manager with default options.
func NewManager(listener Listener) *Manager {
	return NewManagerWithOptions(listener, Options{})
}

// NewManagerWithOptions creates a manager with the provided configuration.
// A nil listener is replaced by NopListener.
func NewManagerWithOptions(listener Listener, opts Options) *Manager {
	if listener == nil {
		listener = NopListener{}
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		tasks:        make(map[string]*Task),
		listener:     listener,
		opts:         opts,
		baseCtx:      ctx,
		baseCancel:   cancel,
		events:       make(chan event, opts.EventBuffer),
		stopDispatch: make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	go m.dispatch()
	return m
}

// Submit registers a task under id and dispatches fn to its own goroutine.
// An empty id is replaced with a generated one; the effective id is returned.
// Submission is rejected with ErrDuplicateTask while a task with the same id
// is still in flight. A timeout of zero means no timeout. Submit never blocks
// on the work itself.
func (m *Manager) Submit(id string, fn Work, timeout time.Duration) (string, error) {
	if fn == nil {
		return "", ErrNilWork
	}
	if m.shuttingDown.Load() {
		return "", ErrShuttingDown
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(m.baseCtx, timeout)
	} else {
		ctx, cancel = context.WithCancel(m.baseCtx)
	}

	t := &Task{
		ID:        id,
		Status:    StatusRunning,
		Timeout:   timeout,
		CreatedAt: now,
		StartedAt: now,
		cancel:    cancel,
	}

	m.mu.Lock()
	if existing, ok := m.tasks[id]; ok && !existing.terminal.Load() {
		m.mu.Unlock()
		cancel()
		return "", ErrDuplicateTask
	}
	m.tasks[id] = t
	m.mu.Unlock()

	metrics.RecordTaskSubmitted()
	m.send(event{kind: eventStarted, id: id})

	m.workersWG.Add(1)
	go m.run(ctx, cancel, t, fn)
	return id, nil
}

// Cancel requests cooperative cancellation of an in-flight task. It returns
// false when the task is unknown or already finished. The body is interrupted
// at its next suspension point; the terminal notification is OnCancelled.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok || t.terminal.Load() {
		return false
	}
	t.cancelRequested.Store(true)
	t.cancel()
	return true
}

// IsRunning reports whether a task with id is currently in flight.
func (m *Manager) IsRunning(id string) bool {
	m.mu.RLock()
	t, ok := m.tasks[id]
	m.mu.RUnlock()
	return ok && !t.terminal.Load()
}

// Get returns a snapshot of the task with id.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotLocked(t), true
}

// Stats returns the count of tasks per status.
func (m *Manager) Stats() map[Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[Status]int)
	for _, t := range m.tasks {
		counts[t.Status]++
	}
	return counts
}

// Recent returns up to limit task snapshots, newest first.
func (m *Manager) Recent(limit int) []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, snapshotLocked(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Shutdown cancels all in-flight tasks and blocks until workers have exited,
// bounded by ShutdownGrace. It is idempotent; Submit fails with
// ErrShuttingDown afterwards.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.shuttingDown.Store(true)

		m.mu.RLock()
		for _, t := range m.tasks {
			if !t.terminal.Load() {
				t.cancelRequested.Store(true)
				t.cancel()
			}
		}
		m.mu.RUnlock()

		done := make(chan struct{})
		go func() {
			m.workersWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(m.opts.ShutdownGrace):
			log.Warn().Dur("grace", m.opts.ShutdownGrace).Msg("workers did not exit before shutdown grace period")
		}

		close(m.stopDispatch)
		<-m.dispatchDone
		m.baseCancel()
	})
}

func snapshotLocked(t *Task) Snapshot {
	s := Snapshot{
		ID:        t.ID,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
		StartedAt: t.StartedAt,
	}
	if t.Result != nil {
		finished := t.FinishedAt
		s.FinishedAt = &finished
		s.Duration = t.Result.Duration.Round(time.Millisecond).String()
		s.Result = t.Result.Value
		if t.Result.Err != nil {
			s.Error = t.Result.Err.Error()
		}
	}
	return s
}
