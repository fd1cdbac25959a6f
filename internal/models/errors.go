package models

import (
	"errors"
	"fmt"
	"time"
)

// ConfigError indicates invalid or missing configuration. It is the only
// error kind that aborts a run before any remote work.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Msg
}

// NewConfigError creates a ConfigError with a formatted message.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ConnectivityError indicates a host could not be reached at all. It fails
// every remaining item on that host; the run continues with the next host.
type ConnectivityError struct {
	Host string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("host %s unreachable: %v", e.Host, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// CommandError indicates a remote command ran and returned a nonzero exit code.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command %q exited %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("command %q exited %d", e.Command, e.ExitCode)
}

// TimeoutError indicates a remote command did not complete in time.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q timed out after %s", e.Command, e.Timeout)
}

// RestartFailure indicates the post-backup restart failed, leaving the
// project's containers down. Highest per-item severity.
type RestartFailure struct {
	Host    string
	Project string
	Err     error
}

func (e *RestartFailure) Error() string {
	return fmt.Sprintf("%s/%s left stopped: restart failed: %v", e.Host, e.Project, e.Err)
}

func (e *RestartFailure) Unwrap() error {
	return e.Err
}

// IsRestartFailure reports whether err is (or wraps) a RestartFailure.
func IsRestartFailure(err error) bool {
	var rf *RestartFailure
	return errors.As(err, &rf)
}
