package conversation

import (
	"context"
	"errors"

	"jan-server/services/chat-api/internal/utils/platformerrors"
)

func errNotFound(ctx context.Context, err error) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
		"conversation not found", err, "9f0c6a3e-58b7-4c2d-8f64-2f5d9b1f4c01")
}

func errNotParticipant(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
		"user is not a participant of this conversation", nil, "1c5e7f42-3b9a-4f0d-a8e2-6d4c0b9f2a77")
}

func errValidation(ctx context.Context, message string, err error) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
		message, err, "6a2d9c18-7e4f-4b3a-9c51-0f8e2d7b6a93")
}

func errTransient(ctx context.Context, message string, err error) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeTransient,
		message, err, "d3b8e1f7-2c6a-4e95-b0d4-7a1f9c3e5b28")
}

// storeError classifies a repository failure. Missing rows become NOT_FOUND,
// everything else is TRANSIENT so the caller may retry.
func storeError(ctx context.Context, err error, message string) error {
	if err == nil {
		return nil
	}
	if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		return errNotFound(ctx, err)
	}
	var platformErr *platformerrors.PlatformError
	if errors.As(err, &platformErr) {
		switch platformErr.Type {
		case platformerrors.ErrorTypeForbidden, platformerrors.ErrorTypeValidation, platformerrors.ErrorTypeConflict:
			return err
		}
	}
	return errTransient(ctx, message, err)
}

// deadline turns an expired operation context into a TRANSIENT error.
func deadline(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && !platformerrors.IsErrorType(err, platformerrors.ErrorTypeTransient) {
		return errTransient(ctx, "operation timed out", errors.Join(ctx.Err(), err))
	}
	return err
}
