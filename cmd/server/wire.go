//go:build wireinject
// +build wireinject

package main

import (
	"github.com/Congdongdong03/wx-help-sub000/internal/config"
	"github.com/Congdongdong03/wx-help-sub000/internal/handler"
	"github.com/Congdongdong03/wx-help-sub000/internal/hub"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
	"github.com/google/wire"
)

// InitializeApp creates a new application.
func InitializeApp(cfg *config.Config) (*App, func(), error) {
	wire.Build(
		// Platform Providers
		wire.NewSet(
			provideContext,
			provideLogger,
		),
		// Repository Providers
		wire.NewSet(
			provideStores,
			provideConversationRepository,
			provideMessageRepository,
			provideBlacklist,
		),
		// Service Providers
		wire.NewSet(
			service.NewUserService,
			wire.Bind(new(service.IUserService), new(*service.UserService)),

			service.NewConversationService,
			wire.Bind(new(service.IConversationService), new(*service.ConversationService)),
		),
		// Hub Providers
		wire.NewSet(
			provideHubOptions,
			hub.NewRegistry,
			hub.NewDelivery,
			hub.NewHub,
		),
		// Handler Providers
		wire.NewSet(
			handler.NewWebsocketHandler,
			handler.NewConversationHandler,
			wire.Bind(new(handler.MessageSender), new(*hub.Delivery)),
			handler.NewAuthHandler,
			wire.Bind(new(handler.Kicker), new(*hub.Hub)),
			provideRouter,
			provideHTTPServer,
		),
		// App Provider
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
