package projector

import (
	"errors"

	"github.com/hray3182/DoseLine/internal/notifier"
)

var (
	// ErrNotAuthorized surfaces the store's authorization gate to callers
	ErrNotAuthorized = notifier.ErrNotAuthorized

	ErrInvalidSchedule    = errors.New("schedule is missing required data")
	ErrInvalidData        = errors.New("dose log is missing required data")
	ErrRegistrationFailed = errors.New("reminder registration failed")
)
