package vmware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

const (
	DefaultTaskPollInterval = time.Second
	DefaultTaskTimeout      = 5 * time.Minute
)

// TaskWaiter polls host tasks until they leave the running state.
type TaskWaiter struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnDone, when set, is called once per Wait with the outcome.
	OnDone func(task *Task, elapsed time.Duration, err error)
}

func NewTaskWaiter(timeout time.Duration) *TaskWaiter {
	return &TaskWaiter{
		Interval: DefaultTaskPollInterval,
		Timeout:  timeout,
	}
}

// Wait blocks until the task succeeds, fails or the timeout expires. The state
// is polled right away and then once per Interval.
//
// Returns:
//   - a TaskError carrying the host message if the task reaches the error state,
//   - a TimeoutError if the task is still running after Timeout. The host task
//     is left running,
//   - the context error if ctx is cancelled.
func (w *TaskWaiter) Wait(ctx context.Context, conn Conn, task *Task) (err error) {
	start := time.Now()
	defer func() {
		if w.OnDone != nil {
			w.OnDone(task, time.Since(start), err)
		}
	}()

	interval := w.Interval
	if interval <= 0 {
		interval = DefaultTaskPollInterval
	}

	pollErr := wait.PollUntilContextTimeout(ctx, interval, w.Timeout, true, func(ctx context.Context) (bool, error) {
		state, msg, err := conn.TaskInfo(ctx, task)
		if err != nil {
			return false, err
		}

		switch state {
		case TaskStateSuccess:
			return true, nil
		case TaskStateError:
			return false, srvErrors.NewTaskError(task.Name(), msg)
		default:
			zap.S().Named("vmware").Debugw("task still running", "task", task.String(), "elapsed", time.Since(start))
			return false, nil
		}
	})

	switch {
	case pollErr == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case srvErrors.IsTaskError(pollErr):
		return pollErr
	case wait.Interrupted(pollErr), errors.Is(pollErr, context.DeadlineExceeded):
		return srvErrors.NewTimeoutError(task.Name(), time.Since(start).Round(time.Millisecond).String())
	default:
		return fmt.Errorf("failed to poll task %s: %w", task, pollErr)
	}
}
