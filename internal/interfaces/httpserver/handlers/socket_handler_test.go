package handlers

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"jan-server/services/chat-api/internal/utils/platformerrors"
)

func TestErrorCode(t *testing.T) {
	ctx := context.Background()
	newErr := func(errType platformerrors.ErrorType) error {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, errType, "boom", nil, "")
	}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthenticated", newErr(platformerrors.ErrorTypeUnauthorized), CodeUnauthenticated},
		{"not a participant", newErr(platformerrors.ErrorTypeForbidden), CodeUnauthorized},
		{"missing conversation", newErr(platformerrors.ErrorTypeNotFound), CodeNotFound},
		{"bad content", newErr(platformerrors.ErrorTypeValidation), CodeValidationFailed},
		{"storage", newErr(platformerrors.ErrorTypeTransient), CodeTransient},
		{"deadline", context.DeadlineExceeded, CodeTransient},
		{"unclassified", errors.New("unexpected"), CodeTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	h := NewSocketHandler(nil, nil, nil, SocketConfig{AllowedOrigins: []string{"https://app.example.com/"}}, zerolog.Nop())

	req := httptest.NewRequest("GET", "/v1/ws", nil)
	assert.True(t, h.checkOrigin(req), "native clients send no origin")

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, h.checkOrigin(req))

	open := NewSocketHandler(nil, nil, nil, SocketConfig{}, zerolog.Nop())
	assert.True(t, open.checkOrigin(req))
}
