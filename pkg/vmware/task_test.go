package vmware_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
	"github.com/kubev2v/vsphere-machinery/pkg/vmware"
	"github.com/kubev2v/vsphere-machinery/pkg/vmware/vmwaretest"
)

var _ = Describe("TaskWaiter", func() {
	var (
		ctx  context.Context
		host *vmwaretest.Host
		vmE  *vmwaretest.Entity
		conn *vmwaretest.Conn
		vm   *vmware.Machine
	)

	BeforeEach(func() {
		ctx = context.Background()
		host = vmwaretest.NewHost()
		vmE = host.VM(host.Datacenter(nil, "DC0"), "win7")

		var err error
		conn, err = host.Connect(ctx)
		Expect(err).NotTo(HaveOccurred())

		var ok bool
		vm, ok, err = vmware.NewInventoryWalker(conn).FindByLabel(ctx, "win7")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	// Given a task that runs for a few polls
	// When we wait for it
	// Then the wait returns once the task succeeds
	It("should return when the task succeeds", func() {
		// Arrange
		host.Script(vmwaretest.TaskPowerOff, vmwaretest.TaskScript{RunningPolls: 3})
		task, err := conn.PowerOff(ctx, vm)
		Expect(err).NotTo(HaveOccurred())
		waiter := &vmware.TaskWaiter{Interval: 5 * time.Millisecond, Timeout: time.Second}

		// Act
		err = waiter.Wait(ctx, conn, task)

		// Assert
		Expect(err).NotTo(HaveOccurred())
		Expect(host.PowerState(vmE)).To(Equal(vmware.PowerStatePoweredOff))
	})

	// Given a task that already finished
	// When we wait with a long interval
	// Then the first poll happens right away
	It("should poll immediately", func() {
		// Arrange
		task, err := conn.PowerOff(ctx, vm)
		Expect(err).NotTo(HaveOccurred())
		waiter := &vmware.TaskWaiter{Interval: time.Hour, Timeout: 2 * time.Hour}

		// Act
		start := time.Now()
		err = waiter.Wait(ctx, conn, task)

		// Assert
		Expect(err).NotTo(HaveOccurred())
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})

	// Given a task failing on the host
	// When we wait for it
	// Then a task error carrying the host message is returned on that poll
	It("should return a task error when the task fails", func() {
		// Arrange
		host.Script(vmwaretest.TaskPowerOff, vmwaretest.TaskScript{Fail: true, Message: "The attempted operation cannot be performed in the current state"})
		task, err := conn.PowerOff(ctx, vm)
		Expect(err).NotTo(HaveOccurred())
		waiter := &vmware.TaskWaiter{Interval: time.Hour, Timeout: 2 * time.Hour}

		// Act
		err = waiter.Wait(ctx, conn, task)

		// Assert
		Expect(srvErrors.IsTaskError(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("cannot be performed in the current state"))
		Expect(host.PowerState(vmE)).To(Equal(vmware.PowerStatePoweredOn))
	})

	// Given a task that never finishes
	// When the timeout expires
	// Then a timeout error is returned and the task keeps running
	It("should time out on a hanging task", func() {
		// Arrange
		host.Script(vmwaretest.TaskPowerOff, vmwaretest.TaskScript{Hang: true})
		task, err := conn.PowerOff(ctx, vm)
		Expect(err).NotTo(HaveOccurred())
		waiter := &vmware.TaskWaiter{Interval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond}

		// Act
		err = waiter.Wait(ctx, conn, task)

		// Assert
		Expect(srvErrors.IsTimeoutError(err)).To(BeTrue())
		state, _, infoErr := conn.TaskInfo(ctx, task)
		Expect(infoErr).NotTo(HaveOccurred())
		Expect(state).To(Equal(vmware.TaskStateRunning))
	})

	// Given a cancelled context
	// When we wait for a running task
	// Then the context error is returned
	It("should stop waiting when the context is cancelled", func() {
		// Arrange
		host.Script(vmwaretest.TaskPowerOff, vmwaretest.TaskScript{Hang: true})
		task, err := conn.PowerOff(ctx, vm)
		Expect(err).NotTo(HaveOccurred())
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		waiter := &vmware.TaskWaiter{Interval: 5 * time.Millisecond, Timeout: time.Second}

		// Act
		err = waiter.Wait(cctx, conn, task)

		// Assert
		Expect(err).To(MatchError(context.Canceled))
	})

	// Given a waiter with a completion hook
	// When a wait ends
	// Then the hook sees the task and the outcome
	It("should report the outcome to OnDone", func() {
		// Arrange
		host.Script(vmwaretest.TaskPowerOff, vmwaretest.TaskScript{Fail: true})
		task, err := conn.PowerOff(ctx, vm)
		Expect(err).NotTo(HaveOccurred())

		var (
			seen    *vmware.Task
			outcome error
		)
		waiter := vmware.NewTaskWaiter(time.Second)
		waiter.OnDone = func(t *vmware.Task, _ time.Duration, err error) {
			seen, outcome = t, err
		}

		// Act
		err = waiter.Wait(ctx, conn, task)

		// Assert
		Expect(err).To(HaveOccurred())
		Expect(seen).To(Equal(task))
		Expect(srvErrors.IsTaskError(outcome)).To(BeTrue())
	})

	// Given a released session
	// When we poll one of its tasks
	// Then the handle is rejected as stale
	It("should reject tasks of a released session", func() {
		// Arrange
		task, err := conn.PowerOff(ctx, vm)
		Expect(err).NotTo(HaveOccurred())
		conn.Release(ctx)
		waiter := &vmware.TaskWaiter{Interval: 5 * time.Millisecond, Timeout: time.Second}

		// Act
		err = waiter.Wait(ctx, conn, task)

		// Assert
		Expect(srvErrors.IsStaleHandleError(err)).To(BeTrue())
	})
})
