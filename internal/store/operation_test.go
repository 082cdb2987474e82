package store_test

import (
	"context"
	"database/sql"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/vsphere-machinery/internal/models"
	"github.com/kubev2v/vsphere-machinery/internal/store"
	"github.com/kubev2v/vsphere-machinery/internal/store/migrations"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
	"github.com/kubev2v/vsphere-machinery/pkg/filter"
)

var _ = Describe("OperationStore", func() {
	var (
		ctx context.Context
		s   *store.Store
		db  *sql.DB
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())

		err = migrations.Run(ctx, db)
		Expect(err).NotTo(HaveOccurred())

		s = store.NewStore(db)
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	create := func(label string, kind models.OperationKind) *models.Operation {
		op := &models.Operation{Label: label, Kind: kind}
		Expect(s.Operations().Create(ctx, op)).To(Succeed())
		return op
	}

	Context("Create", func() {
		// Given a new operation without an ID
		// When we journal it
		// Then an ID and timestamps are assigned and it starts pending
		It("should assign an id, timestamps and the pending state", func() {
			// Arrange
			op := &models.Operation{Label: "win7", Kind: models.OperationKindDump, Path: "/srv/dumps/win7.dmp"}

			// Act
			err := s.Operations().Create(ctx, op)

			// Assert
			Expect(err).NotTo(HaveOccurred())
			Expect(op.ID).NotTo(BeEmpty())
			Expect(op.State).To(Equal(models.OperationStatePending))
			Expect(op.CreatedAt).NotTo(BeZero())
			Expect(op.UpdatedAt).To(Equal(op.CreatedAt))

			stored, err := s.Operations().Get(ctx, op.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Label).To(Equal("win7"))
			Expect(stored.Kind).To(Equal(models.OperationKindDump))
			Expect(stored.Path).To(Equal("/srv/dumps/win7.dmp"))
			Expect(stored.Error).To(BeNil())
			Expect(stored.CreatedAt.Equal(op.CreatedAt)).To(BeTrue())
		})

		It("should keep a caller supplied id", func() {
			op := &models.Operation{ID: "op-1", Label: "win7", Kind: models.OperationKindStart, State: models.OperationStateRunning}

			Expect(s.Operations().Create(ctx, op)).To(Succeed())

			stored, err := s.Operations().Get(ctx, "op-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.State).To(Equal(models.OperationStateRunning))
		})

		It("should reject a duplicate id", func() {
			op := create("win7", models.OperationKindStart)

			err := s.Operations().Create(ctx, &models.Operation{ID: op.ID, Label: "win7", Kind: models.OperationKindStop})

			Expect(err).To(HaveOccurred())
		})
	})

	Context("Update", func() {
		// Given a running dump
		// When it fails
		// Then the error and the final state are stored
		It("should store the state, error and bytes", func() {
			// Arrange
			op := create("win7", models.OperationKindDump)
			op.State = models.OperationStateError
			op.Error = errors.New("download of https://esxi/folder/x.vmem failed with status 404")
			op.Bytes = 4096

			// Act
			err := s.Operations().Update(ctx, op)

			// Assert
			Expect(err).NotTo(HaveOccurred())
			stored, err := s.Operations().Get(ctx, op.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.State).To(Equal(models.OperationStateError))
			Expect(stored.Error).To(MatchError(ContainSubstring("status 404")))
			Expect(stored.Bytes).To(Equal(int64(4096)))
			Expect(stored.UpdatedAt).To(BeTemporally(">=", stored.CreatedAt))
		})

		It("should return not found for an unknown operation", func() {
			err := s.Operations().Update(ctx, &models.Operation{ID: "missing", State: models.OperationStateCompleted})

			Expect(srvErrors.IsResourceNotFoundError(err)).To(BeTrue())
		})
	})

	Context("Get", func() {
		It("should return not found for an unknown id", func() {
			_, err := s.Operations().Get(ctx, "missing")

			Expect(srvErrors.IsResourceNotFoundError(err)).To(BeTrue())
			Expect(err.Error()).To(Equal(`operation "missing" not found`))
		})
	})

	Context("List", func() {
		var ops []*models.Operation

		BeforeEach(func() {
			ops = []*models.Operation{
				create("win7", models.OperationKindStart),
				create("win7", models.OperationKindDump),
				create("win10", models.OperationKindStart),
				create("ubuntu", models.OperationKindStop),
			}
			ops[1].State = models.OperationStateCompleted
			ops[1].Bytes = 2 << 30
			Expect(s.Operations().Update(ctx, ops[1])).To(Succeed())
		})

		ids := func(list []models.Operation) []string {
			out := make([]string, 0, len(list))
			for _, op := range list {
				out = append(out, op.ID)
			}
			return out
		}

		It("should return every operation without a filter", func() {
			list, err := s.Operations().List(ctx, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(4))
		})

		It("should filter by label and kind", func() {
			list, err := s.Operations().List(ctx, store.NewOperationQueryFilter().
				ByLabels("win7").
				ByKinds(models.OperationKindStart))

			Expect(err).NotTo(HaveOccurred())
			Expect(ids(list)).To(Equal([]string{ops[0].ID}))
		})

		It("should filter by state", func() {
			list, err := s.Operations().List(ctx, store.NewOperationQueryFilter().ByStates(models.OperationStatePending))

			Expect(err).NotTo(HaveOccurred())
			Expect(ids(list)).To(ConsistOf(ops[0].ID, ops[2].ID, ops[3].ID))
		})

		// Given a filter expression
		// When we list with its compiled condition
		// Then only matching operations are returned
		It("should filter by a filter expression", func() {
			// Arrange
			cond, err := filter.Compile("kind = 'dump' and bytes >= 1GB")
			Expect(err).NotTo(HaveOccurred())

			// Act
			list, err := s.Operations().List(ctx, store.NewOperationQueryFilter().ByExpression(cond))

			// Assert
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(list)).To(Equal([]string{ops[1].ID}))
		})

		It("should page results and count without paging", func() {
			f := store.NewOperationQueryFilter().ByLabels("win7", "win10", "ubuntu").Limit(2).Offset(1)

			list, err := s.Operations().List(ctx, f)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))

			count, err := s.Operations().Count(ctx, f)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(4))
		})

		It("should keep operations created since a time", func() {
			list, err := s.Operations().List(ctx, store.NewOperationQueryFilter().Since(time.Now().Add(time.Hour)))

			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())
		})
	})

	Context("FailUnfinished", func() {
		// Given operations left pending and running by a previous process
		// When the journal is recovered
		// Then they are marked as failed and finished ones are untouched
		It("should fail pending and running operations", func() {
			// Arrange
			pending := create("win7", models.OperationKindStart)
			running := create("win7", models.OperationKindDump)
			running.State = models.OperationStateRunning
			Expect(s.Operations().Update(ctx, running)).To(Succeed())
			done := create("win10", models.OperationKindStop)
			done.State = models.OperationStateCompleted
			Expect(s.Operations().Update(ctx, done)).To(Succeed())

			// Act
			n, err := s.Operations().FailUnfinished(ctx, "interrupted by restart")

			// Assert
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))
			for _, id := range []string{pending.ID, running.ID} {
				op, err := s.Operations().Get(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(op.State).To(Equal(models.OperationStateError))
				Expect(op.Error).To(MatchError("interrupted by restart"))
			}
			op, err := s.Operations().Get(ctx, done.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(op.State).To(Equal(models.OperationStateCompleted))
		})
	})
})
