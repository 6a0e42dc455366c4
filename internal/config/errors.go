package config

import (
	"errors"
	"fmt"
)

// Configuration validation errors.
// These errors are returned by Config.Validate() and File.Validate(). They are
// the only fatal errors of gridwatch and are reported once at startup.
var (
	// ErrInvalidTimeout is returned when the render or check timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrCheckTimeoutTooShort is returned when the check timeout is shorter
	// than the render timeout it has to contain.
	ErrCheckTimeoutTooShort = errors.New("invalid check timeout: must not be shorter than the render timeout")

	// ErrInvalidSettle is returned when the settle duration is negative.
	ErrInvalidSettle = errors.New("invalid settle duration: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidRetention is returned when the retention age or interval is not positive.
	ErrInvalidRetention = errors.New("invalid retention: max age and interval must be positive")

	// ErrInvalidWatchInterval is returned when the watch interval is not positive.
	ErrInvalidWatchInterval = errors.New("invalid watch interval: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMessageLimits is returned for a message limit below 200
	// characters or a non-positive cells-per-column limit.
	ErrInvalidMessageLimits = errors.New("invalid chat limits: message limit must be at least 200 and cells per column positive")

	// ErrIncompleteChat is returned when only one of chat token and chat id is set.
	ErrIncompleteChat = errors.New("incomplete chat configuration: both token and chat id are required")

	// ErrInvalidTargetURL is returned when a target URL is not an absolute http(s) URL.
	ErrInvalidTargetURL = errors.New("invalid target url: must be an absolute http or https url")

	// ErrInvalidTarget is returned for unusable per-target settings.
	ErrInvalidTarget = errors.New("invalid target configuration")
)

// UnknownTargetError is returned when a command names a target that the
// config file does not define.
type UnknownTargetError struct {
	Name string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("unknown target %q: not defined in the config file", e.Name)
}
