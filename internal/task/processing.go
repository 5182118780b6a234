package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"veritas/internal/metrics"
)

type eventKind int

const (
	eventStarted eventKind = iota
	eventProgress
	eventCompleted
	eventFailed
	eventCancelled
)

type event struct {
	kind    eventKind
	id      string
	percent int
	value   any
	message string
}

type bodyResult struct {
	value any
	err   error
}

// run drives one task on its own goroutine. The body itself executes on a
// further goroutine so that a body which ignores its context can be abandoned
// when the deadline fires or cancellation is requested; its late result is
// dropped by the terminal guard in finish.
func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, t *Task, fn Work) {
	defer m.workersWG.Done()
	defer cancel()
	start := time.Now()

	bodyCh := make(chan bodyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("task_id", t.ID).Interface("panic", r).Msg("task body panicked")
				bodyCh <- bodyResult{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		value, err := fn(ctx, m.reporter(t))
		bodyCh <- bodyResult{value: value, err: err}
	}()

	select {
	case r := <-bodyCh:
		m.finish(ctx, t, r.value, r.err, time.Since(start))
	case <-ctx.Done():
		m.finish(ctx, t, nil, ctx.Err(), time.Since(start))
	}
}

// finish classifies the outcome, records it on the task exactly once and
// enqueues the terminal notification. A cancellation requested before the
// terminal event is enqueued always wins, even over a successful return.
func (m *Manager) finish(ctx context.Context, t *Task, value any, err error, elapsed time.Duration) {
	if !t.terminal.CompareAndSwap(false, true) {
		return
	}

	res := Result{Duration: elapsed}
	switch {
	case t.cancelRequested.Load():
		res.Status = StatusCancelled
		res.Err = context.Canceled
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Status = StatusFailed
		res.Err = &TimeoutError{ID: t.ID, Timeout: t.Timeout}
	case errors.Is(err, context.Canceled):
		res.Status = StatusCancelled
		res.Err = context.Canceled
	case err != nil:
		res.Status = StatusFailed
		res.Err = err
	default:
		res.Status = StatusCompleted
		res.Value = value
	}

	now := time.Now()
	m.mu.Lock()
	t.Status = res.Status
	t.FinishedAt = now
	t.Result = &res
	m.mu.Unlock()

	metrics.RecordTaskFinished(string(res.Status), IsTimeout(res.Err), res.Duration)

	switch res.Status {
	case StatusCompleted:
		m.send(event{kind: eventCompleted, id: t.ID, value: res.Value})
	case StatusCancelled:
		m.send(event{kind: eventCancelled, id: t.ID})
	default:
		m.send(event{kind: eventFailed, id: t.ID, message: res.Err.Error()})
	}
}

// reporter returns the progress callback handed to a task body. Progress is
// lossy: out-of-range values and reports after the terminal event are
// discarded, and a full event buffer drops rather than blocks the body.
func (m *Manager) reporter(t *Task) func(int) {
	return func(percent int) {
		if percent < 0 || percent > 100 || t.terminal.Load() {
			return
		}
		select {
		case m.events <- event{kind: eventProgress, id: t.ID, percent: percent}:
		default:
		}
	}
}

// send enqueues a lifecycle event. Lifecycle events never drop; the dispatch
// goroutine consumes until every worker has exited, so this send can only
// block transiently.
func (m *Manager) send(e event) {
	select {
	case m.events <- e:
	case <-m.stopDispatch:
	}
}

func (m *Manager) dispatch() {
	defer close(m.dispatchDone)
	for {
		select {
		case e := <-m.events:
			m.deliver(e)
		case <-m.stopDispatch:
			for {
				select {
				case e := <-m.events:
					m.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) deliver(e event) {
	switch e.kind {
	case eventStarted:
		m.listener.OnStarted(e.id)
	case eventProgress:
		m.listener.OnProgress(e.id, e.percent)
	case eventCompleted:
		m.listener.OnCompleted(e.id, e.value)
	case eventFailed:
		m.listener.OnFailed(e.id, e.message)
	case eventCancelled:
		m.listener.OnCancelled(e.id)
	}
}
