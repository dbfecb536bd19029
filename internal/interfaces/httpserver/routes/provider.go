package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/google/wire"

	"jan-server/services/chat-api/internal/infrastructure/auth"
	"jan-server/services/chat-api/internal/interfaces/httpserver/handlers"
	v1 "jan-server/services/chat-api/internal/interfaces/httpserver/routes/v1"
)

// Provider mounts every API version on the engine.
type Provider struct {
	v1      *v1.Routes
	require gin.HandlerFunc
}

// NewProvider guards REST routes with the bearer validator. Without one the
// handlers still answer 401 because no caller is set on the context.
func NewProvider(handlerProvider *handlers.Provider, validator *auth.Validator) *Provider {
	p := &Provider{v1: v1.NewRoutes(handlerProvider)}
	if validator != nil {
		p.require = validator.Middleware()
	}
	return p
}

func (p *Provider) Register(engine *gin.Engine) {
	p.v1.Register(engine, p.require)
}

var RouteProvider = wire.NewSet(NewProvider)
