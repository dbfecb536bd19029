package responses

import (
	"github.com/gin-gonic/gin"

	"jan-server/services/chat-api/internal/infrastructure/logger"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

// HandleError writes err as an HTTP response. Platform errors keep their type,
// anything else becomes an internal error.
func HandleError(c *gin.Context, err error, operation string) {
	log := logger.GetLogger().With().
		Str("route", c.FullPath()).
		Str("operation", operation).
		Logger()
	platformerrors.WriteError(c, err, log)
}

// HandleNewError writes a typed error raised in the route itself, such as a
// binding failure or a malformed cursor.
func HandleNewError(c *gin.Context, errorType platformerrors.ErrorType, message string) {
	platformerrors.WriteType(c, errorType, message)
}
