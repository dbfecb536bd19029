package platformerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type requestIDKey struct{}

// WithRequestID stores the request ID so errors created further down carry it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// ErrorType is the failure category. It decides the HTTP status, the API
// error type and, in the socket handler, the event error code.
type ErrorType string

const (
	// ErrorTypeUnauthorized: missing, invalid or expired credential.
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	// ErrorTypeForbidden: authenticated, but not a participant.
	ErrorTypeForbidden  ErrorType = "FORBIDDEN"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	// ErrorTypeTransient: storage or lock failure, or a deadline; safe to retry.
	ErrorTypeTransient ErrorType = "TRANSIENT"
	ErrorTypeInternal  ErrorType = "INTERNAL"
)

type kind struct {
	status      int
	apiType     string
	clientFault bool
}

var kinds = map[ErrorType]kind{
	ErrorTypeUnauthorized: {http.StatusUnauthorized, "unauthorized_error", true},
	ErrorTypeForbidden:    {http.StatusForbidden, "forbidden_error", true},
	ErrorTypeNotFound:     {http.StatusNotFound, "not_found_error", true},
	ErrorTypeValidation:   {http.StatusBadRequest, "validation_error", true},
	ErrorTypeConflict:     {http.StatusConflict, "conflict_error", true},
	ErrorTypeTransient:    {http.StatusServiceUnavailable, "transient_error", false},
	ErrorTypeInternal:     {http.StatusInternalServerError, "internal_error", false},
}

func kindOf(t ErrorType) kind {
	if k, ok := kinds[t]; ok {
		return k
	}
	return kinds[ErrorTypeInternal]
}

// ErrorTypeToHTTPStatus maps error types to HTTP status codes.
func ErrorTypeToHTTPStatus(t ErrorType) int { return kindOf(t).status }

// APIType is the snake_case type reported in error bodies.
func APIType(t ErrorType) string { return kindOf(t).apiType }

// IsClientError reports whether t describes a caller mistake rather than a
// failure on our side. Client errors are logged at warn and keep spans green.
func IsClientError(t ErrorType) bool { return kindOf(t).clientFault }

// Layer represents the application layer where the error occurred
type Layer string

const (
	LayerRepository     Layer = "repository"
	LayerDomain         Layer = "domain"
	LayerHandler        Layer = "handler"
	LayerRoute          Layer = "route"
	LayerInfrastructure Layer = "infrastructure"
	LayerRealtime       Layer = "realtime"
)

// PlatformError carries the category, origin layer and request of a failure.
// UUID identifies the raise site: fixed where a caller passes one, random otherwise.
type PlatformError struct {
	UUID      string
	Type      ErrorType
	Message   string
	Err       error
	RequestID string
	Layer     Layer
	Timestamp time.Time
}

func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Layer, e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Layer, e.Type, e.Message)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// NewError creates a PlatformError. An empty siteUUID gets a random one.
func NewError(ctx context.Context, layer Layer, errorType ErrorType, message string, err error, siteUUID string) *PlatformError {
	if siteUUID == "" {
		siteUUID = uuid.NewString()
	}
	return &PlatformError{
		UUID:      siteUUID,
		Type:      errorType,
		Message:   message,
		Err:       err,
		RequestID: requestIDFrom(ctx),
		Layer:     layer,
		Timestamp: time.Now().UTC(),
	}
}

// AsError wraps an error with layer context. Errors that are not already
// classified are mapped by cause: missing rows become NOT_FOUND, deadlines
// and storage failures become TRANSIENT.
func AsError(ctx context.Context, layer Layer, err error, message string) *PlatformError {
	if err == nil {
		return nil
	}

	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return NewError(ctx, layer, platformErr.Type, message+": "+platformErr.Message, platformErr, platformErr.UUID)
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NewError(ctx, layer, ErrorTypeNotFound, message, err, "")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewError(ctx, layer, ErrorTypeTransient, message, err, "")
	case layer == LayerRepository:
		return NewError(ctx, layer, ErrorTypeTransient, message, err, "")
	}
	return NewError(ctx, layer, ErrorTypeInternal, message, err, "")
}

// IsErrorType reports whether err carries a PlatformError of errorType.
func IsErrorType(err error, errorType ErrorType) bool {
	platformErr := GetPlatformError(err)
	return platformErr != nil && platformErr.Type == errorType
}

// GetPlatformError returns the outermost PlatformError in the chain, if any.
func GetPlatformError(err error) *PlatformError {
	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return platformErr
	}
	return nil
}

// TypeOf returns the error type of err, or ErrorTypeInternal for unclassified errors.
func TypeOf(err error) ErrorType {
	if platformErr := GetPlatformError(err); platformErr != nil {
		return platformErr.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTransient
	}
	return ErrorTypeInternal
}

// LogError logs err at warn for client errors and at error otherwise.
func LogError(logger zerolog.Logger, err *PlatformError) {
	if err == nil {
		return
	}

	event := logger.Error()
	if IsClientError(err.Type) {
		event = logger.Warn()
	}
	event = event.
		Str("error_uuid", err.UUID).
		Str("error_type", string(err.Type)).
		Str("layer", string(err.Layer))
	if err.RequestID != "" {
		event = event.Str("request_id", err.RequestID)
	}
	if err.Err != nil {
		event = event.Err(err.Err)
	}
	event.Msg(err.Message)
}
