package task

import "github.com/rs/zerolog/log"

// Listener receives task lifecycle notifications. All methods are invoked
// from the manager's single dispatch goroutine, in submission order per task,
// so implementations need no locking of their own as long as they confine
// state to that goroutine.
type Listener interface {
	OnStarted(id string)
	OnProgress(id string, percent int)
	OnCompleted(id string, value any)
	OnFailed(id string, message string)
	OnCancelled(id string)
}

// NopListener discards all notifications.
type NopListener struct{}

func (NopListener) OnStarted(string)        {}
func (NopListener) OnProgress(string, int)  {}
func (NopListener) OnCompleted(string, any) {}
func (NopListener) OnFailed(string, string) {}
func (NopListener) OnCancelled(string)      {}

// Listeners fans notifications out to each element in order.
type Listeners []Listener

func (ls Listeners) OnStarted(id string) {
	for _, l := range ls {
		l.OnStarted(id)
	}
}

func (ls Listeners) OnProgress(id string, percent int) {
	for _, l := range ls {
		l.OnProgress(id, percent)
	}
}

func (ls Listeners) OnCompleted(id string, value any) {
	for _, l := range ls {
		l.OnCompleted(id, value)
	}
}

func (ls Listeners) OnFailed(id string, message string) {
	for _, l := range ls {
		l.OnFailed(id, message)
	}
}

func (ls Listeners) OnCancelled(id string) {
	for _, l := range ls {
		l.OnCancelled(id)
	}
}

// LogListener writes lifecycle events to the global zerolog logger.
type LogListener struct{}

func (LogListener) OnStarted(id string) {
	log.Info().Str("task_id", id).Msg("task started")
}

func (LogListener) OnProgress(id string, percent int) {
	log.Debug().Str("task_id", id).Int("percent", percent).Msg("task progress")
}

func (LogListener) OnCompleted(id string, _ any) {
	log.Info().Str("task_id", id).Msg("task completed")
}

func (LogListener) OnFailed(id string, message string) {
	log.Warn().Str("task_id", id).Str("error", message).Msg("task failed")
}

func (LogListener) OnCancelled(id string) {
	log.Info().Str("task_id", id).Msg("task cancelled")
}
