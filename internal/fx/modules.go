package fx

import (
	"server-browser/internal/browser"
	"server-browser/internal/config"
	"server-browser/internal/database"
	"server-browser/internal/httpapi"
	"server-browser/internal/logger"
	"server-browser/internal/masterlist"
	"server-browser/internal/query"
	"server-browser/internal/repository"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// stores
	fx.Provide(repository.NewFavoritesRepository),
	fx.Provide(repository.NewSessionRepository),
	// directory collaborators
	fx.Provide(masterlist.NewFetcher),
	fx.Provide(query.NewClient),
	// engine
	fx.Provide(browser.New),
	// api
	fx.Provide(httpapi.NewServer),
)
