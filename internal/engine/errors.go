package engine

import (
	"errors"
	"fmt"
)

// CommandError is a rejected operator command. State is unchanged and
// nothing was appended.
type CommandError struct {
	Code    CommandErrorCode
	Message string
}

// CommandErrorCode categorizes command rejections.
type CommandErrorCode string

const (
	// ErrCodeClockMode rejects game-scoped commands while no game is selected.
	ErrCodeClockMode CommandErrorCode = "CLOCK_MODE"

	// ErrCodeInvalidTeam rejects a team other than home or away.
	ErrCodeInvalidTeam CommandErrorCode = "INVALID_TEAM"

	// ErrCodeInvalidArgument rejects malformed command arguments.
	ErrCodeInvalidArgument CommandErrorCode = "INVALID_ARGUMENT"

	// ErrCodeGoalNotFound rejects cancelling a goal that does not exist.
	ErrCodeGoalNotFound CommandErrorCode = "GOAL_NOT_FOUND"

	// ErrCodeGoalCancelled rejects cancelling a goal twice.
	ErrCodeGoalCancelled CommandErrorCode = "GOAL_ALREADY_CANCELLED"

	// ErrCodeStopped rejects commands after the controller has stopped.
	ErrCodeStopped CommandErrorCode = "STOPPED"
)

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CommandErrorCodeOf returns the code of a wrapped CommandError, or "".
func CommandErrorCodeOf(err error) CommandErrorCode {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCommandError reports whether err is (or wraps) a CommandError.
func IsCommandError(err error) bool {
	return CommandErrorCodeOf(err) != ""
}

func newCommandError(code CommandErrorCode, format string, args ...any) *CommandError {
	return &CommandError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var errStopped = &CommandError{Code: ErrCodeStopped, Message: "controller is not running"}
