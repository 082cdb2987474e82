package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "github.com/kubev2v/vsphere-machinery/api/v1"
)

// ListMachines returns every machine on the host with its power state
// (GET /machines)
func (h *Handler) ListMachines(c *gin.Context) {
	machines, err := h.machinerySrv.Machines(c.Request.Context())
	if err != nil {
		abortWithError(c, zap.S().Named("machine_handler"), "failed to list machines", err)
		return
	}

	resp := v1.MachineList{Machines: make([]v1.Machine, 0, len(machines))}
	for _, m := range machines {
		resp.Machines = append(resp.Machines, v1.NewMachineFromModel(m))
	}

	c.JSON(http.StatusOK, resp)
}

// GetMachine returns a single machine
// (GET /machines/{label})
func (h *Handler) GetMachine(c *gin.Context) {
	label := c.Param("label")

	machine, err := h.machinerySrv.Machine(c.Request.Context(), label)
	if err != nil {
		abortWithError(c, zap.S().Named("machine_handler"), "failed to get machine", err)
		return
	}

	c.JSON(http.StatusOK, v1.NewMachineFromModel(*machine))
}

// StartMachine reverts the machine to its baseline snapshot
// (POST /machines/{label}/start)
func (h *Handler) StartMachine(c *gin.Context) {
	label := c.Param("label")

	if err := h.machinerySrv.Start(c.Request.Context(), label); err != nil {
		abortWithError(c, zap.S().Named("machine_handler"), "failed to start machine", err)
		return
	}

	zap.S().Named("machine_handler").Infow("machine started", "machine", label)
	c.Status(http.StatusNoContent)
}

// StopMachine powers the machine off
// (POST /machines/{label}/stop)
func (h *Handler) StopMachine(c *gin.Context) {
	label := c.Param("label")

	if err := h.machinerySrv.Stop(c.Request.Context(), label); err != nil {
		abortWithError(c, zap.S().Named("machine_handler"), "failed to stop machine", err)
		return
	}

	zap.S().Named("machine_handler").Infow("machine stopped", "machine", label)
	c.Status(http.StatusNoContent)
}

// DumpMachineMemory starts an asynchronous memory dump and returns the
// journaled operation
// (POST /machines/{label}/dump)
func (h *Handler) DumpMachineMemory(c *gin.Context) {
	var req v1.DumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	op, err := h.machinerySrv.DumpMemoryAsync(c.Request.Context(), c.Param("label"), req.Path)
	if err != nil {
		abortWithError(c, zap.S().Named("machine_handler"), "failed to start memory dump", err)
		return
	}

	c.Header("Location", "/api/v1/operations/"+op.ID)
	c.JSON(http.StatusAccepted, v1.NewOperationFromModel(op))
}
