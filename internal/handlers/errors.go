package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

// statusCode maps a service error to an HTTP status.
func statusCode(err error) int {
	switch {
	case srvErrors.IsResourceNotFoundError(err):
		return http.StatusNotFound
	case srvErrors.IsInvalidArgumentError(err),
		srvErrors.IsConfigurationError(err),
		srvErrors.IsFormatError(err):
		return http.StatusBadRequest
	case srvErrors.IsConnectivityError(err):
		return http.StatusBadGateway
	case srvErrors.IsTimeoutError(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError logs err and writes it as the response body.
func abortWithError(c *gin.Context, logger *zap.SugaredLogger, msg string, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		logger.Errorw(msg, "error", err)
	} else {
		logger.Debugw(msg, "error", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}
