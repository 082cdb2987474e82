package registry_test

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/vsphere-machinery/internal/models"
	"github.com/kubev2v/vsphere-machinery/internal/registry"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

var _ = Describe("Registry", func() {
	Describe("Parse", func() {
		// Given a machines document
		// When we parse it
		// Then every entry is returned in file order
		It("should decode machines in file order", func() {
			// Arrange
			doc := []byte(`
machines:
  - label: win7
    snapshot: clean
    description: Windows 7 SP1 x64
  - label: ubuntu
    snapshot: base
`)

			// Act
			machines, err := registry.Parse(doc)

			// Assert
			Expect(err).NotTo(HaveOccurred())
			Expect(machines).To(Equal([]models.Machine{
				{Label: "win7", Snapshot: "clean", Description: "Windows 7 SP1 x64"},
				{Label: "ubuntu", Snapshot: "base"},
			}))
		})

		It("should accept a machine without a snapshot", func() {
			machines, err := registry.Parse([]byte("machines:\n  - label: win7\n"))

			Expect(err).NotTo(HaveOccurred())
			Expect(machines).To(HaveLen(1))
			Expect(machines[0].Snapshot).To(BeEmpty())
		})

		It("should accept an empty document", func() {
			machines, err := registry.Parse([]byte(""))

			Expect(err).NotTo(HaveOccurred())
			Expect(machines).To(BeEmpty())
		})

		DescribeTable("invalid documents",
			func(doc string) {
				_, err := registry.Parse([]byte(doc))

				Expect(srvErrors.IsConfigurationError(err)).To(BeTrue())
			},
			Entry("missing label", "machines:\n  - snapshot: clean\n"),
			Entry("duplicate label", "machines:\n  - label: win7\n    snapshot: a\n  - label: win7\n    snapshot: b\n"),
			Entry("unknown field", "machines:\n  - label: win7\n    snapshots: clean\n"),
			Entry("not yaml", "machines: [\n"),
		)
	})

	Describe("Load", func() {
		It("should read the file from disk", func() {
			path := filepath.Join(GinkgoT().TempDir(), "machines.yaml")
			Expect(os.WriteFile(path, []byte("machines:\n  - label: win7\n    snapshot: clean\n"), 0o600)).To(Succeed())

			machines, err := registry.Load(path)

			Expect(err).NotTo(HaveOccurred())
			Expect(machines).To(Equal([]models.Machine{{Label: "win7", Snapshot: "clean"}}))
		})

		It("should fail on a missing file", func() {
			_, err := registry.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))

			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
		})
	})
})
