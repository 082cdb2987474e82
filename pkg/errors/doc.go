// Package errors provides custom error types for vsphere-machinery.
//
// Each error type includes a constructor, Error() method, and a type-checking
// helper using errors.As for proper error unwrapping.
//
// # Error Types Overview
//
//	┌──────────────────────────┬────────┬─────────────────────────────────────────┐
//	│ Error Type               │ HTTP   │ Description                             │
//	├──────────────────────────┼────────┼─────────────────────────────────────────┤
//	│ ConfigurationError       │ 400    │ Missing or invalid configuration        │
//	│ ConnectivityError        │ 502    │ vSphere unreachable or login rejected   │
//	│ ResourceNotFoundError    │ 404    │ Machine, snapshot or file not found     │
//	│ TaskError                │ 500    │ Host task finished in the error state   │
//	│ TimeoutError             │ 504    │ Deadline exceeded while polling a task  │
//	│ TransferError            │ 500    │ Memory image download failed            │
//	│ FormatError              │ 400    │ "[datastore] path" did not parse        │
//	│ StaleHandleError         │ 500    │ Handle used outside its session         │
//	└──────────────────────────┴────────┴─────────────────────────────────────────┘
//
// # ConnectivityError
//
// Wraps session acquisition failures. Login failures are reported as
// "invalid credentials"; other failures keep the original message.
//
//	if errors.IsConnectivityError(err) {
//	    c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
//	}
//
// # TimeoutError
//
// Returned by the task waiter when the configured timeout elapses. The host
// task is not cancelled, so a later operation on the same machine may observe
// it still running.
//
// # Type Checking Pattern
//
// All error types provide Is* helper functions that use errors.As
// so they keep working through fmt.Errorf("...: %w", err) wrapping:
//
//	wrapped := fmt.Errorf("revert snapshot: %w", errors.NewSnapshotNotFoundError("clean"))
//	errors.IsResourceNotFoundError(wrapped) // returns true
package errors
