package throttling

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationMissing is returned when no usable limits exist for an action.
	ErrConfigurationMissing = errors.New("throttling configuration missing")

	// ErrMissingLimits is returned when no limits are configured at all.
	ErrMissingLimits = fmt.Errorf("%w: no throttling limits specified", ErrConfigurationMissing)

	// ErrUnknownAction is returned when the limits have no section for an action.
	ErrUnknownAction = fmt.Errorf("%w: unknown action", ErrConfigurationMissing)

	// ErrInvalidConfig is returned by a check when a period is misconfigured.
	ErrInvalidConfig = errors.New("invalid throttling configuration")

	// ErrMissingStore is returned when a Throttler is built without a counter store.
	ErrMissingStore = errors.New("throttling store is not specified")
)

// UnknownActionError reports an action with no limits section.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("no limits[%s] section found", e.Action)
}

func (e *UnknownActionError) Unwrap() error {
	return ErrUnknownAction
}

// InvalidPeriodError reports a period that is missing, non-numeric, below one
// second or longer than MaxPeriod.
type InvalidPeriodError struct {
	Action string
	Period string
	Value  int64
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid or no 'period' parameter in the limits[%s][%s] config: %d", e.Action, e.Period, e.Value)
}

func (e *InvalidPeriodError) Unwrap() error {
	return ErrInvalidConfig
}

// InvalidLimitError reports a flat period whose limit is missing or negative.
type InvalidLimitError struct {
	Action string
	Period string
	Value  *int64
}

func (e *InvalidLimitError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("no 'limit' parameter in the limits[%s][%s] config", e.Action, e.Period)
	}
	return fmt.Sprintf("invalid 'limit' parameter in the limits[%s][%s] config: %d", e.Action, e.Period, *e.Value)
}

func (e *InvalidLimitError) Unwrap() error {
	return ErrInvalidConfig
}

// IsConfigurationError reports whether err is a configuration problem rather
// than a store failure.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfigurationMissing) || errors.Is(err, ErrInvalidConfig)
}
