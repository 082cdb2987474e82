package handlers

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/kubev2v/vsphere-machinery/internal/models"
	"github.com/kubev2v/vsphere-machinery/internal/services"
)

// MachineryService runs the orchestrator operations.
type MachineryService interface {
	Machines(ctx context.Context) ([]models.MachineStatus, error)
	Machine(ctx context.Context, label string) (*models.MachineStatus, error)
	Start(ctx context.Context, label string) error
	Stop(ctx context.Context, label string) error
	DumpMemoryAsync(ctx context.Context, label, path string) (models.Operation, error)
}

// OperationService reads the operation journal.
type OperationService interface {
	Operation(ctx context.Context, id string) (*models.Operation, error)
	Operations(ctx context.Context, q services.OperationQuery) ([]models.Operation, int, error)
	ExportOperations(ctx context.Context, w io.Writer, q services.OperationQuery) error
}

type Handler struct {
	machinerySrv  MachineryService
	operationsSrv OperationService
}

func New(machinerySrv MachineryService, operationsSrv OperationService) *Handler {
	return &Handler{
		machinerySrv:  machinerySrv,
		operationsSrv: operationsSrv,
	}
}

// Register adds the API routes to router.
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/machines", h.ListMachines)
	router.GET("/machines/:label", h.GetMachine)
	router.POST("/machines/:label/start", h.StartMachine)
	router.POST("/machines/:label/stop", h.StopMachine)
	router.POST("/machines/:label/dump", h.DumpMachineMemory)

	router.GET("/operations", h.ListOperations)
	router.GET("/operations/export", h.ExportOperations)
	router.GET("/operations/:id", h.GetOperation)
}
