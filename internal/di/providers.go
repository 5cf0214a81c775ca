package di

import (
	"gorm.io/gorm"

	"github.com/RxJP/StreetSource/internal/chat/handler"
	"github.com/RxJP/StreetSource/internal/chat/hub"
	"github.com/RxJP/StreetSource/internal/chat/repository"
	"github.com/RxJP/StreetSource/internal/chat/service"
	"github.com/RxJP/StreetSource/internal/common"
	"github.com/RxJP/StreetSource/internal/config"
	"github.com/RxJP/StreetSource/internal/dbmysql"
	"github.com/RxJP/StreetSource/internal/orders"
	"github.com/RxJP/StreetSource/internal/users"
)

// Application bundles everything cmd/chat-svc needs to run.
type Application struct {
	Config      *config.Config
	DB          *gorm.DB
	Registry    *hub.Registry
	Coordinator *hub.Coordinator
	Handler     *handler.ChatHandler
	Chat        service.ChatService
	Offers      service.OfferService
}

func ProvideDB(cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := dbmysql.NewMySQL(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

func ProvideOrderService(cfg *config.Config) common.OrderService {
	return orders.NewClient(cfg.Services.OrderServiceURL)
}

func ProvideUserDirectory(cfg *config.Config) common.UserDirectory {
	return users.NewClient(cfg.Services.UserDirectoryURL)
}

func ProvideChatService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	directory common.UserDirectory,
	cfg *config.Config,
) service.ChatService {
	return service.NewChatService(conversations, messages, directory, cfg.Chat.MaxMessageSize, cfg.Chat.BackfillLimit)
}

func ProvideOfferService(
	messages repository.MessageRepository,
	orderService common.OrderService,
	cfg *config.Config,
) service.OfferService {
	return service.NewOfferService(messages, orderService, cfg.Chat.OfferTTL)
}

func ProvideCoordinator(
	registry *hub.Registry,
	chat service.ChatService,
	offers service.OfferService,
	directory common.UserDirectory,
	cfg *config.Config,
) *hub.Coordinator {
	return hub.NewCoordinator(registry, chat, offers, directory, cfg.Chat.IdleTimeout, cfg.Chat.MaxMessageSize)
}

func ProvideHandler(chat service.ChatService, coordinator *hub.Coordinator, cfg *config.Config) *handler.ChatHandler {
	return handler.NewChatHandler(chat, coordinator, []byte(cfg.Chat.JWTSecret))
}
