//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/RxJP/StreetSource/internal/chat/hub"
	"github.com/RxJP/StreetSource/internal/chat/repository"
	"github.com/RxJP/StreetSource/internal/config"
)

// This is just a declaration — wire will generate the real body
func InitializeChatService() (*Application, func(), error) {
	wire.Build(
		config.LoadConfig,
		ProvideDB,
		repository.NewConversationRepository,
		repository.NewMessageRepository,
		ProvideOrderService,
		ProvideUserDirectory,
		ProvideChatService,
		ProvideOfferService,
		hub.NewRegistry,
		ProvideCoordinator,
		ProvideHandler,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}
