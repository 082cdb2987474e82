package handlers

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "github.com/kubev2v/vsphere-machinery/api/v1"
	"github.com/kubev2v/vsphere-machinery/internal/models"
	"github.com/kubev2v/vsphere-machinery/internal/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ListOperations returns the operation journal with filtering and pagination
// (GET /operations)
func (h *Handler) ListOperations(c *gin.Context) {
	var params v1.ListOperationsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, err := operationQuery(params)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Parse pagination
	page := 1
	if params.Page != nil && *params.Page > 0 {
		page = *params.Page
	}
	pageSize := defaultPageSize
	if params.PageSize != nil && *params.PageSize > 0 {
		pageSize = min(*params.PageSize, maxPageSize)
	}
	if page-1 > math.MaxInt/pageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("page out of range: %d", page)})
		return
	}
	q.Limit = pageSize
	q.Offset = (page - 1) * pageSize

	ops, total, err := h.operationsSrv.Operations(c.Request.Context(), q)
	if err != nil {
		abortWithError(c, zap.S().Named("operation_handler"), "failed to list operations", err)
		return
	}

	pageCount := (total + pageSize - 1) / pageSize
	if pageCount == 0 {
		pageCount = 1
	}

	resp := v1.OperationListResponse{
		Page:       page,
		PageCount:  pageCount,
		Total:      total,
		Operations: make([]v1.Operation, 0, len(ops)),
	}
	for _, op := range ops {
		resp.Operations = append(resp.Operations, v1.NewOperationFromModel(op))
	}

	c.JSON(http.StatusOK, resp)
}

// GetOperation returns a journaled operation
// (GET /operations/{id})
func (h *Handler) GetOperation(c *gin.Context) {
	op, err := h.operationsSrv.Operation(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, zap.S().Named("operation_handler"), "failed to get operation", err)
		return
	}

	c.JSON(http.StatusOK, v1.NewOperationFromModel(*op))
}

// ExportOperations returns the filtered journal as an XLSX workbook
// (GET /operations/export)
func (h *Handler) ExportOperations(c *gin.Context) {
	var params v1.ListOperationsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, err := operationQuery(params)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := h.operationsSrv.ExportOperations(c.Request.Context(), &buf, q); err != nil {
		abortWithError(c, zap.S().Named("operation_handler"), "failed to export operations", err)
		return
	}

	filename := fmt.Sprintf("operations-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// operationQuery validates the query parameters shared by the list and
// export endpoints. Paging is left to the caller.
func operationQuery(params v1.ListOperationsParams) (services.OperationQuery, error) {
	q := services.OperationQuery{
		Labels: params.Label,
		Filter: params.Filter,
	}

	for _, k := range params.Kind {
		switch kind := models.OperationKind(k); kind {
		case models.OperationKindStart, models.OperationKindStop, models.OperationKindDump:
			q.Kinds = append(q.Kinds, kind)
		default:
			return q, fmt.Errorf("invalid kind: %s, must be one of start, stop, dump", k)
		}
	}

	for _, s := range params.State {
		switch state := models.OperationState(s); state {
		case models.OperationStatePending, models.OperationStateRunning, models.OperationStateCompleted, models.OperationStateError:
			q.States = append(q.States, state)
		default:
			return q, fmt.Errorf("invalid state: %s, must be one of pending, running, completed, error", s)
		}
	}

	if params.Since != "" {
		since, err := time.Parse(time.RFC3339, params.Since)
		if err != nil {
			return q, fmt.Errorf("invalid since: %s, expected an RFC 3339 timestamp", params.Since)
		}
		q.Since = since
	}

	return q, nil
}
