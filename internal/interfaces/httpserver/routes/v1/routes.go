package v1

import (
	"github.com/gin-gonic/gin"

	"jan-server/services/chat-api/internal/infrastructure/auth"
	"jan-server/services/chat-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/chat-api/internal/interfaces/httpserver/responses"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

// Routes holds the v1 route configuration.
type Routes struct {
	handlers *handlers.Provider
}

// NewRoutes creates a new v1 routes instance.
func NewRoutes(handlerProvider *handlers.Provider) *Routes {
	return &Routes{
		handlers: handlerProvider,
	}
}

// Register registers all v1 routes on the engine.
// If authMiddleware is provided, it will be applied to the REST routes. The
// websocket route authenticates during its own handshake.
func (r *Routes) Register(engine *gin.Engine, authMiddleware gin.HandlerFunc) {
	engine.GET("/v1/ws", r.handlers.Socket.Serve)

	v1 := engine.Group("/v1")
	if authMiddleware != nil {
		v1.Use(authMiddleware)
	}
	RegisterConversationRoutes(v1, r.handlers.Conversation)
	RegisterInboxRoutes(v1, r.handlers.Inbox)
}

// requireUser returns the authenticated caller or writes a 401.
func requireUser(c *gin.Context) (string, bool) {
	userID, ok := auth.UserID(c)
	if !ok {
		responses.HandleNewError(c, platformerrors.ErrorTypeUnauthorized, "authentication required")
		return "", false
	}
	return userID, true
}
