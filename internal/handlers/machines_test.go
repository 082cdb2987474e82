package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/kubev2v/vsphere-machinery/api/v1"
	"github.com/kubev2v/vsphere-machinery/internal/handlers"
	"github.com/kubev2v/vsphere-machinery/internal/models"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

var _ = Describe("Machine Handlers", func() {
	var (
		mockMachinery *MockMachineryService
		handler       *handlers.Handler
		router        *gin.Engine
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		mockMachinery = &MockMachineryService{}
		handler = handlers.New(mockMachinery, &MockOperationService{})
		router = gin.New()
		handler.Register(router)
	})

	Describe("ListMachines", func() {
		It("should return an empty list when the host has no machines", func() {
			mockMachinery.MachinesResult = []models.MachineStatus{}

			req := httptest.NewRequest(http.MethodGet, "/machines", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var response v1.MachineList
			Expect(json.Unmarshal(w.Body.Bytes(), &response)).To(Succeed())
			Expect(response.Machines).To(BeEmpty())
		})

		It("should return the machines", func() {
			mockMachinery.MachinesResult = []models.MachineStatus{
				{Machine: models.Machine{Label: "win7", Snapshot: "clean"}, PowerState: "poweredOn", Registered: true},
				{Machine: models.Machine{Label: "xp"}, PowerState: "poweredOff"},
			}

			req := httptest.NewRequest(http.MethodGet, "/machines", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var response v1.MachineList
			Expect(json.Unmarshal(w.Body.Bytes(), &response)).To(Succeed())
			Expect(response.Machines).To(HaveLen(2))
			Expect(response.Machines[0].Label).To(Equal("win7"))
			Expect(*response.Machines[0].Snapshot).To(Equal("clean"))
			Expect(response.Machines[1].Registered).To(BeFalse())
			Expect(response.Machines[1].PowerState).To(Equal(v1.MachinePowerStatePoweredOff))
		})

		It("should return 502 when the host is unreachable", func() {
			mockMachinery.MachinesError = srvErrors.NewConnectivityError(errors.New("connection refused"))

			req := httptest.NewRequest(http.MethodGet, "/machines", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadGateway))
			Expect(w.Body.String()).To(ContainSubstring("connection refused"))
		})
	})

	Describe("GetMachine", func() {
		It("should return the machine", func() {
			mockMachinery.MachineResult = &models.MachineStatus{Machine: models.Machine{Label: "win7", Snapshot: "clean"}, PowerState: "suspended", Registered: true}

			req := httptest.NewRequest(http.MethodGet, "/machines/win7", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(mockMachinery.LastLabel).To(Equal("win7"))
			var response v1.Machine
			Expect(json.Unmarshal(w.Body.Bytes(), &response)).To(Succeed())
			Expect(response.PowerState).To(Equal(v1.MachinePowerStateSuspended))
		})

		It("should return 404 for a missing machine", func() {
			mockMachinery.MachineError = srvErrors.NewMachineNotFoundError("xp")

			req := httptest.NewRequest(http.MethodGet, "/machines/xp", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("StartMachine", func() {
		It("should start the machine", func() {
			req := httptest.NewRequest(http.MethodPost, "/machines/win7/start", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(mockMachinery.StartCallCount).To(Equal(1))
			Expect(mockMachinery.LastLabel).To(Equal("win7"))
		})

		DescribeTable("should map service errors",
			func(err error, code int) {
				mockMachinery.StartError = err

				req := httptest.NewRequest(http.MethodPost, "/machines/win7/start", nil)
				w := httptest.NewRecorder()

				router.ServeHTTP(w, req)

				Expect(w.Code).To(Equal(code))
				var response v1.Error
				Expect(json.Unmarshal(w.Body.Bytes(), &response)).To(Succeed())
				Expect(response.Error).To(Equal(err.Error()))
			},
			Entry("not registered", srvErrors.NewMachineNotFoundError("win7"), http.StatusNotFound),
			Entry("no snapshot", srvErrors.NewConfigurationError("snapshot name not specified for machine win7"), http.StatusBadRequest),
			Entry("host unreachable", srvErrors.NewConnectivityError(errors.New("dial tcp: i/o timeout")), http.StatusBadGateway),
			Entry("task timed out", srvErrors.NewTimeoutError("RevertToSnapshot", "5m0s"), http.StatusGatewayTimeout),
			Entry("task failed", srvErrors.NewTaskError("RevertToSnapshot", "locked"), http.StatusInternalServerError),
		)
	})

	Describe("StopMachine", func() {
		It("should stop the machine", func() {
			req := httptest.NewRequest(http.MethodPost, "/machines/win7/stop", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(mockMachinery.StopCallCount).To(Equal(1))
		})

		It("should return 404 for a missing machine", func() {
			mockMachinery.StopError = srvErrors.NewMachineNotFoundError("xp")

			req := httptest.NewRequest(http.MethodPost, "/machines/xp/stop", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DumpMachineMemory", func() {
		// Given a valid dump request
		// When the dump is accepted
		// Then 202 is returned with the pending operation and its location
		It("should accept the dump", func() {
			// Arrange
			mockMachinery.DumpResult = models.Operation{
				ID:    "op-1",
				Label: "win7",
				Kind:  models.OperationKindDump,
				State: models.OperationStatePending,
				Path:  "/dumps/win7.dmp",
			}
			body := strings.NewReader(`{"path": "/dumps/win7.dmp"}`)

			// Act
			req := httptest.NewRequest(http.MethodPost, "/machines/win7/dump", body)
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			// Assert
			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(w.Header().Get("Location")).To(Equal("/api/v1/operations/op-1"))
			Expect(mockMachinery.LastLabel).To(Equal("win7"))
			Expect(mockMachinery.LastPath).To(Equal("/dumps/win7.dmp"))

			var response v1.Operation
			Expect(json.Unmarshal(w.Body.Bytes(), &response)).To(Succeed())
			Expect(response.State).To(Equal(v1.OperationStatePending))
			Expect(response.Kind).To(Equal(v1.OperationKindDump))
		})

		It("should return 400 when the path is missing", func() {
			req := httptest.NewRequest(http.MethodPost, "/machines/win7/dump", strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(mockMachinery.LastPath).To(BeEmpty())
		})

		It("should return 400 for malformed JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/machines/win7/dump", strings.NewReader(`{"path":`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("should return 400 when the service rejects the path", func() {
			mockMachinery.DumpError = srvErrors.NewInvalidArgumentError("path", "must be absolute")

			req := httptest.NewRequest(http.MethodPost, "/machines/win7/dump", strings.NewReader(`{"path": "win7.dmp"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("must be absolute"))
		})
	})
})
