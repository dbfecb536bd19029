package platformerrors

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HTTPErrorResponse is the error body of every REST endpoint.
type HTTPErrorResponse struct {
	Error *HTTPErrorDetail `json:"error"`
}

// HTTPErrorDetail describes one failure.
type HTTPErrorDetail struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError logs err and aborts with the status of its type. Unclassified
// errors become a 500 whose message does not leak the cause.
func WriteError(c *gin.Context, err error, log zerolog.Logger) {
	platformErr := GetPlatformError(err)
	if platformErr == nil {
		log.Error().Err(err).Msg("unclassified error")
		WriteType(c, ErrorTypeInternal, "internal server error")
		return
	}

	LogError(log, platformErr)
	c.AbortWithStatusJSON(ErrorTypeToHTTPStatus(platformErr.Type), HTTPErrorResponse{
		Error: &HTTPErrorDetail{
			Message:   platformErr.Message,
			Type:      APIType(platformErr.Type),
			Code:      platformErr.UUID,
			RequestID: platformErr.RequestID,
		},
	})
}

// WriteType aborts with an error body built from errorType and message, for
// failures detected before any domain call (binding, auth).
func WriteType(c *gin.Context, errorType ErrorType, message string) {
	c.AbortWithStatusJSON(ErrorTypeToHTTPStatus(errorType), HTTPErrorResponse{
		Error: &HTTPErrorDetail{
			Message:   message,
			Type:      APIType(errorType),
			RequestID: requestIDFrom(c.Request.Context()),
		},
	})
}

// WriteUnauthorized aborts with 401.
func WriteUnauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="chat-api"`)
	WriteType(c, ErrorTypeUnauthorized, message)
}

