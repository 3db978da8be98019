package stack

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/smithy-go"
)

// noUpdatesMessage is returned by UpdateStack when the template and parameters are unchanged.
const noUpdatesMessage = "No updates are to be performed."

// IsNoUpdatesError reports whether err is the provider's "nothing to update" rejection.
func IsNoUpdatesError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return strings.TrimSpace(apiErr.ErrorMessage()) == noUpdatesMessage
	}
	return strings.HasSuffix(strings.TrimSpace(err.Error()), noUpdatesMessage)
}

// isNotFoundError reports whether err is the ValidationError returned for unknown stacks.
func isNotFoundError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
}

// TimeoutError is returned when a stack operation does not reach a terminal state in time.
type TimeoutError struct {
	Stack     string
	Operation Operation
	After     time.Duration
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("stack %q: %s did not complete within %s", e.Stack, e.Operation, e.After)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// UnexpectedStatusError is returned when outputs are requested from a stack that
// is not resting in a terminal success state.
type UnexpectedStatusError struct {
	Stack  string
	Status Status
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("stack %q is in status %s, outputs are only read after a successful create or update", e.Stack, e.Status)
}

// IsUnexpectedStatus reports whether err is (or wraps) an UnexpectedStatusError.
func IsUnexpectedStatus(err error) bool {
	var target *UnexpectedStatusError
	return errors.As(err, &target)
}
