package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/config"
	"github.com/Congdongdong03/wx-help-sub000/internal/handler"
	"github.com/Congdongdong03/wx-help-sub000/internal/hub"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/Congdongdong03/wx-help-sub000/internal/repository/mongo"
	"github.com/Congdongdong03/wx-help-sub000/internal/repository/postgres"
	"github.com/Congdongdong03/wx-help-sub000/internal/repository/redis"
	"github.com/Congdongdong03/wx-help-sub000/internal/repository/sqlite"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
)

// Stores is the conversation and message persistence selected by STORE_DRIVER.
type Stores struct {
	Conversations service.IConversationRepository
	Messages      service.IMessageRepository
}

func provideContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	return ctx, func() { cancel() }
}

func provideLogger(cfg *config.Config) (*logger.Logger, func(), error) {
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return log, func() { log.Sync() }, nil
}

func provideStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Stores, func(), error) {
	log = log.With("store", cfg.StoreDriver)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		if cfg.AutoMigrate {
			if err := postgres.RunMigrations(cfg.PostgresURL); err != nil {
				return nil, nil, err
			}
		}
		db, err := postgres.NewDB(cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("store ready")
		return &Stores{
			Conversations: postgres.NewConversationRepository(db),
			Messages:      postgres.NewMessageRepository(db),
		}, func() { db.Close() }, nil

	case config.StoreMongo:
		db, err := mongo.NewDB(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		// Index creation is idempotent and find-or-create depends on pair_key being unique.
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, nil, err
		}
		log.Info("store ready")
		return &Stores{
			Conversations: mongo.NewConversationRepository(db),
			Messages:      mongo.NewMessageRepository(db),
		}, func() { _ = db.Client().Disconnect(context.Background()) }, nil

	case config.StoreSQLite:
		db, err := sqlite.NewDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		log.Info("store ready", "path", cfg.SQLitePath)
		return &Stores{
			Conversations: sqlite.NewConversationRepository(db),
			Messages:      sqlite.NewMessageRepository(db),
		}, cleanup, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func provideConversationRepository(s *Stores) service.IConversationRepository {
	return s.Conversations
}

func provideMessageRepository(s *Stores) service.IMessageRepository {
	return s.Messages
}

// provideBlacklist returns a nil repository when REDIS_ADDR is unset, which
// turns the openid blacklist off.
func provideBlacklist(ctx context.Context, cfg *config.Config, log *logger.Logger) (service.IBlacklistRepository, func(), error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, openid blacklist disabled")
		return nil, func() {}, nil
	}
	rdb, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return redis.NewBlacklistRepository(rdb), func() { _ = rdb.Close() }, nil
}

func provideHubOptions(cfg *config.Config) hub.Options {
	return hub.Options{
		SendBuffer:    cfg.SendBuffer,
		SweepInterval: cfg.SweepInterval,
		OpTimeout:     cfg.OpTimeout,
	}
}

func provideRouter(cfg *config.Config, ws *handler.WebsocketHandler, conversations *handler.ConversationHandler, auth *handler.AuthHandler, users service.IUserService, log *logger.Logger) http.Handler {
	return handler.NewRouter(handler.RouterDeps{
		Websocket:      ws,
		Conversations:  conversations,
		Auth:           auth,
		Users:          users,
		Log:            log,
		AllowedOrigins: cfg.AllowedOrigins,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
