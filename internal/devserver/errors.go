package devserver

import (
	"errors"

	"github.com/fentz26/taskdeck/internal/connectors"
	"github.com/fentz26/taskdeck/internal/scheduler"
	"github.com/fentz26/taskdeck/internal/store"
)

// Sentinel errors for backend operations. All of them are reported to clients
// as business failures.
var (
	ErrInvalidTaskID   = errors.New("task id may only contain letters, digits, underscores and hyphens")
	ErrNameRequired    = errors.New("task name is required")
	ErrCommandRequired = errors.New("task command is required")
	ErrInvalidSchedule = errors.New("invalid cron expression")
	ErrTaskDisabled    = errors.New("task is disabled")
)

var businessErrors = []error{
	ErrInvalidTaskID,
	ErrNameRequired,
	ErrCommandRequired,
	ErrInvalidSchedule,
	ErrTaskDisabled,
	store.ErrNotFound,
	store.ErrExists,
	scheduler.ErrAtCapacity,
	scheduler.ErrAlreadyRunning,
	scheduler.ErrNotRunning,
	connectors.ErrEmptyCommand,
}

func isBusiness(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
