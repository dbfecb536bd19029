package interfaces

import (
	"github.com/google/wire"

	"jan-server/services/chat-api/internal/interfaces/httpserver"
	"jan-server/services/chat-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/chat-api/internal/interfaces/httpserver/routes"
)

// InterfacesProvider wires the HTTP and websocket surface.
var InterfacesProvider = wire.NewSet(
	handlers.HandlerProvider,
	routes.RouteProvider,
	httpserver.New,
)
