package schedule

import (
	"fmt"
	"time"
)

// ErrorKind classifies schedule errors.
type ErrorKind string

const (
	// KindInvalidInterval means an end instant is not after its start.
	KindInvalidInterval ErrorKind = "invalid_interval"
	// KindNaiveInstantComparison means a naive instant met zoned ones and
	// the zone policy does not allow coercing it.
	KindNaiveInstantComparison ErrorKind = "naive_instant_comparison"
	// KindNotFound means an override lookup missed.
	KindNotFound ErrorKind = "not_found"
	// KindRuleExhausted marks the end of a bounded recurrence sequence.
	KindRuleExhausted ErrorKind = "rule_exhausted"
	// KindTooManyOccurrences means a window holds more occurrences than the
	// rule engine's MaxOccurrences allows.
	KindTooManyOccurrences ErrorKind = "too_many_occurrences"
)

// Error represents a schedule error
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidInterval        = &Error{Kind: KindInvalidInterval}
	ErrNaiveInstantComparison = &Error{Kind: KindNaiveInstantComparison}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrRuleExhausted          = &Error{Kind: KindRuleExhausted}
	ErrTooManyOccurrences     = &Error{Kind: KindTooManyOccurrences}
)

func invalidInterval(what string, start, end time.Time) error {
	return &Error{
		Kind:    KindInvalidInterval,
		Message: fmt.Sprintf("%s end %s is not after start %s", what, end.Format(time.RFC3339), start.Format(time.RFC3339)),
	}
}
