package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError indicates a missing or invalid configuration parameter.
type ConfigurationError struct {
	Reason string
}

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// IsConfigurationError checks if the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// ConnectivityError indicates the vSphere host is unreachable or rejected the credentials.
type ConnectivityError struct {
	msg   string
	cause error
}

func NewConnectivityError(err error) *ConnectivityError {
	cErr := &ConnectivityError{cause: err}
	if strings.Contains(err.Error(), "Login failure") ||
		(strings.Contains(err.Error(), "incorrect") && strings.Contains(err.Error(), "password")) {
		cErr.msg = "invalid credentials"
	} else {
		cErr.msg = err.Error()
	}
	return cErr
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("vSphere connection failed: %s", e.msg)
}

func (e *ConnectivityError) Unwrap() error {
	return e.cause
}

func IsConnectivityError(err error) bool {
	var e *ConnectivityError
	return errors.As(err, &e)
}

// ResourceNotFoundError indicates a machine, snapshot, file or record was not found.
type ResourceNotFoundError struct {
	Kind string
	Name string
}

func NewResourceNotFoundError(kind, name string) *ResourceNotFoundError {
	return &ResourceNotFoundError{Kind: kind, Name: name}
}

func NewMachineNotFoundError(label string) *ResourceNotFoundError {
	return NewResourceNotFoundError("machine", label)
}

func NewSnapshotNotFoundError(name string) *ResourceNotFoundError {
	return NewResourceNotFoundError("snapshot", name)
}

func NewOperationNotFoundError(id string) *ResourceNotFoundError {
	return NewResourceNotFoundError("operation", id)
}

func (e *ResourceNotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func IsResourceNotFoundError(err error) bool {
	var e *ResourceNotFoundError
	return errors.As(err, &e)
}

// TaskError indicates the host reported a task in the error state.
type TaskError struct {
	Task    string
	Message string
}

func NewTaskError(task, message string) *TaskError {
	return &TaskError{Task: task, Message: message}
}

func (e *TaskError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("task %s failed", e.Task)
	}
	return fmt.Sprintf("task %s failed: %s", e.Task, e.Message)
}

func IsTaskError(err error) bool {
	var e *TaskError
	return errors.As(err, &e)
}

// TimeoutError indicates the deadline expired while waiting on a task.
// The task itself keeps running on the host.
type TimeoutError struct {
	Task    string
	Elapsed string
}

func NewTimeoutError(task, elapsed string) *TimeoutError {
	return &TimeoutError{Task: task, Elapsed: elapsed}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.Task, e.Elapsed)
}

func IsTimeoutError(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

// TransferError indicates a failed memory image download.
type TransferError struct {
	URL        string
	StatusCode int
	cause      error
}

func NewTransferError(url string, statusCode int, cause error) *TransferError {
	return &TransferError{URL: url, StatusCode: statusCode, cause: cause}
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download of %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download of %s failed: %v", e.URL, e.cause)
}

func (e *TransferError) Unwrap() error {
	return e.cause
}

func IsTransferError(err error) bool {
	var e *TransferError
	return errors.As(err, &e)
}

// FormatError indicates a datastore file specifier that does not parse.
type FormatError struct {
	Value string
}

func NewFormatError(value string) *FormatError {
	return &FormatError{Value: value}
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid datastore file specifier %q", e.Value)
}

func IsFormatError(err error) bool {
	var e *FormatError
	return errors.As(err, &e)
}

// StaleHandleError indicates a handle used outside of the session that produced it.
type StaleHandleError struct {
	Handle string
}

func NewStaleHandleError(handle string) *StaleHandleError {
	return &StaleHandleError{Handle: handle}
}

func (e *StaleHandleError) Error() string {
	return fmt.Sprintf("%s does not belong to an active session", e.Handle)
}

func IsStaleHandleError(err error) bool {
	var e *StaleHandleError
	return errors.As(err, &e)
}

// InvalidArgumentError indicates a malformed request value such as an
// operations filter or a dump path.
type InvalidArgumentError struct {
	Name   string
	Reason string
}

func NewInvalidArgumentError(name, reason string) *InvalidArgumentError {
	return &InvalidArgumentError{Name: name, Reason: reason}
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Name, e.Reason)
}

func IsInvalidArgumentError(err error) bool {
	var e *InvalidArgumentError
	return errors.As(err, &e)
}
