package task

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateTask = errors.New("task with this id is already running")
	ErrShuttingDown  = errors.New("task manager is shutting down")
	ErrTaskNotFound  = errors.New("task not found")
	ErrNilWork       = errors.New("nil work function")
)

// TimeoutError marks a task that exceeded its configured timeout.
type TimeoutError struct {
	ID      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.ID, e.Timeout)
}

// IsTimeout reports whether err carries a task timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
