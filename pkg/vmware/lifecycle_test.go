package vmware_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
	"github.com/kubev2v/vsphere-machinery/pkg/vmware"
	"github.com/kubev2v/vsphere-machinery/pkg/vmware/vmwaretest"
)

var _ = Describe("SnapshotLifecycle", func() {
	var (
		ctx       context.Context
		host      *vmwaretest.Host
		vmE       *vmwaretest.Entity
		conn      *vmwaretest.Conn
		vm        *vmware.Machine
		lifecycle *vmware.SnapshotLifecycle
	)

	BeforeEach(func() {
		ctx = context.Background()
		host = vmwaretest.NewHost()
		vmE = host.VM(host.Datacenter(nil, "DC0"), "win7")
		host.AddSnapshot(vmE, "", "clean", vmware.PowerStatePoweredOn)
		host.AddSnapshot(vmE, "clean", "child", vmware.PowerStatePoweredOn)
		host.AddSnapshot(vmE, "", "cold", vmware.PowerStatePoweredOff)

		var err error
		conn, err = host.Connect(ctx)
		Expect(err).NotTo(HaveOccurred())

		var ok bool
		vm, ok, err = vmware.NewInventoryWalker(conn).FindByLabel(ctx, "win7")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		lifecycle = vmware.NewSnapshotLifecycle(&vmware.TaskWaiter{Interval: 5 * time.Millisecond, Timeout: 100 * time.Millisecond})
	})

	Describe("Create", func() {
		It("should create a memory snapshot", func() {
			err := lifecycle.Create(ctx, conn, vm, "new")

			Expect(err).NotTo(HaveOccurred())
			Expect(host.Snapshots(vmE)).To(ContainElement("new"))
			Expect(host.Calls()).To(Equal([]string{"CreateSnapshot win7 new"}))
		})

		// Given a host failing the create task
		// When we create a snapshot
		// Then the task error is returned with the operation name
		It("should fail when the task fails", func() {
			// Arrange
			host.Script(vmwaretest.TaskCreateSnapshot, vmwaretest.TaskScript{Fail: true, Message: "insufficient disk space"})

			// Act
			err := lifecycle.Create(ctx, conn, vm, "new")

			// Assert
			Expect(srvErrors.IsTaskError(err)).To(BeTrue())
			Expect(err.Error()).To(HavePrefix("CreateSnapshot:"))
			Expect(host.Snapshots(vmE)).NotTo(ContainElement("new"))
		})

		It("should fail when the task times out", func() {
			host.Script(vmwaretest.TaskCreateSnapshot, vmwaretest.TaskScript{Hang: true})

			err := lifecycle.Create(ctx, conn, vm, "new")

			Expect(srvErrors.IsTimeoutError(err)).To(BeTrue())
		})
	})

	Describe("Revert", func() {
		// Given a powered off machine with a powered on baseline
		// When we revert to the baseline
		// Then the machine is running again
		It("should revert to the named snapshot", func() {
			// Arrange
			host.SetPowerState(vmE, vmware.PowerStatePoweredOff)

			// Act
			err := lifecycle.Revert(ctx, conn, vm, "child")

			// Assert
			Expect(err).NotTo(HaveOccurred())
			Expect(host.PowerState(vmE)).To(Equal(vmware.PowerStatePoweredOn))
			Expect(host.Calls()).To(Equal([]string{"RevertToSnapshot win7 child"}))
		})

		// Given a snapshot name the machine does not have
		// When we revert
		// Then not found is returned and nothing is sent to the host
		It("should not contact the host for a missing snapshot", func() {
			// Act
			err := lifecycle.Revert(ctx, conn, vm, "missing")

			// Assert
			Expect(srvErrors.IsResourceNotFoundError(err)).To(BeTrue())
			Expect(host.Calls()).To(BeEmpty())
		})

		It("should fail when the task fails", func() {
			host.Script(vmwaretest.TaskRevertToSnapshot, vmwaretest.TaskScript{Fail: true})

			err := lifecycle.Revert(ctx, conn, vm, "clean")

			Expect(srvErrors.IsTaskError(err)).To(BeTrue())
			Expect(err.Error()).To(HavePrefix("RevertToSnapshot:"))
		})

		It("should fail when the snapshot list cannot be read", func() {
			host.FailRequest("Snapshots", errors.New("session timed out"))

			err := lifecycle.Revert(ctx, conn, vm, "clean")

			Expect(err).To(MatchError(ContainSubstring("session timed out")))
			Expect(host.Calls()).To(BeEmpty())
		})
	})

	Describe("Delete", func() {
		It("should remove the snapshot with its children", func() {
			err := lifecycle.Delete(ctx, conn, vm, "clean")

			Expect(err).NotTo(HaveOccurred())
			Expect(host.Snapshots(vmE)).To(Equal([]string{"cold"}))
		})

		It("should return not found for a missing snapshot", func() {
			err := lifecycle.Delete(ctx, conn, vm, "missing")

			Expect(srvErrors.IsResourceNotFoundError(err)).To(BeTrue())
			Expect(host.Calls()).To(BeEmpty())
		})

		// Given a host failing the remove task
		// When we delete a snapshot
		// Then the failure is swallowed
		It("should ignore task failures", func() {
			// Arrange
			host.Script(vmwaretest.TaskRemoveSnapshot, vmwaretest.TaskScript{Fail: true})

			// Act
			err := lifecycle.Delete(ctx, conn, vm, "cold")

			// Assert
			Expect(err).NotTo(HaveOccurred())
			Expect(host.Calls()).To(Equal([]string{"RemoveSnapshot win7 cold"}))
		})

		It("should ignore task timeouts", func() {
			host.Script(vmwaretest.TaskRemoveSnapshot, vmwaretest.TaskScript{Hang: true})

			err := lifecycle.Delete(ctx, conn, vm, "cold")

			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("PowerOff", func() {
		It("should power the machine off", func() {
			err := lifecycle.PowerOff(ctx, conn, vm)

			Expect(err).NotTo(HaveOccurred())
			Expect(host.PowerState(vmE)).To(Equal(vmware.PowerStatePoweredOff))
		})

		It("should ignore task failures", func() {
			host.Script(vmwaretest.TaskPowerOff, vmwaretest.TaskScript{Fail: true})

			err := lifecycle.PowerOff(ctx, conn, vm)

			Expect(err).NotTo(HaveOccurred())
			Expect(host.PowerState(vmE)).To(Equal(vmware.PowerStatePoweredOn))
		})

		It("should return request failures", func() {
			host.FailRequest(vmwaretest.TaskPowerOff, errors.New("not connected"))

			err := lifecycle.PowerOff(ctx, conn, vm)

			Expect(err).To(MatchError(ContainSubstring("not connected")))
		})
	})

	Describe("SnapshotPowerState", func() {
		It("should return the state the snapshot was taken in", func() {
			state, err := lifecycle.SnapshotPowerState(ctx, conn, vm, "cold")

			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(Equal(vmware.PowerStatePoweredOff))
		})

		It("should return not found for a missing snapshot", func() {
			_, err := lifecycle.SnapshotPowerState(ctx, conn, vm, "missing")

			Expect(srvErrors.IsResourceNotFoundError(err)).To(BeTrue())
		})
	})

	Describe("stale handles", func() {
		// Given a machine handle from another session
		// When we use it
		// Then it is rejected
		It("should reject handles from another session", func() {
			// Arrange
			other, err := host.Connect(ctx)
			Expect(err).NotTo(HaveOccurred())

			// Act
			err = lifecycle.PowerOff(ctx, other, vm)

			// Assert
			Expect(srvErrors.IsStaleHandleError(err)).To(BeTrue())
			Expect(host.Calls()).To(BeEmpty())
		})

		It("should reject handles after release", func() {
			conn.Release(ctx)

			err := lifecycle.Revert(ctx, conn, vm, "clean")

			Expect(srvErrors.IsStaleHandleError(err)).To(BeTrue())
		})
	})
})
