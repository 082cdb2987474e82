package middlewares

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger logs every API request through the global zap logger.
func Logger() gin.HandlerFunc {
	return ginzap.GinzapWithConfig(zap.S().Named("http").Desugar(), &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
	})
}
