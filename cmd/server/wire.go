//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/config"
	"jan-server/services/chat-api/internal/interfaces"
)

// ProviderSet is the wire provider set for the application.
var ProviderSet = wire.NewSet(
	// Infrastructure providers
	ProvideStorage,
	ProvideLocker,
	ProvideDirectory,
	ProvideSanitizer,
	ProvideNotifications,
	ProvideHub,
	ProvideCrontab,
	ProvideAuthValidator,
	ProvideReadinessProbe,

	// Domain providers
	ProvideInboxService,
	ProvideConversationService,

	// Interface providers
	interfaces.InterfacesProvider,

	// Application
	NewApplication,
)

// CreateApplication creates the application with all dependencies wired.
func CreateApplication(
	ctx context.Context,
	cfg *config.Config,
	log zerolog.Logger,
) (*Application, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
