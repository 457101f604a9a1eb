// Package bot wires the form engine, the payments client and the Telegram
// runtime into a running application.
package bot

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/finwire/payflow/core/config"
	"github.com/finwire/payflow/core/database"
	"github.com/finwire/payflow/core/logger"
	tg "github.com/finwire/payflow/core/telegram"
	"github.com/finwire/payflow/core/telegram/router"
	"github.com/finwire/payflow/flows"
	"github.com/finwire/payflow/form"
	"github.com/finwire/payflow/formstore/pgstore"
	"github.com/finwire/payflow/formstore/redisstore"
	"github.com/finwire/payflow/payments"
)

// Run bootstraps every component and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *coreconfig.Config) error {
	startedAt := time.Now()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bot: session store: %w", err)
	}
	defer closeStore()

	client := payments.NewClient(
		cfg.Payments.BaseURL,
		cfg.Payments.APIKey,
		time.Duration(cfg.Payments.TimeoutSeconds)*time.Second,
	)

	msgr := NewMessenger()
	engine := form.NewEngine(store, msgr)
	if err := flows.RegisterAll(engine, client); err != nil {
		return err
	}

	reg, err := BuildRegistry(engine)
	if err != nil {
		return fmt.Errorf("bot: registry: %w", err)
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: cfg.Telegram.AdminID,
	})
	routes = append(routes, router.TextRoutes(engine, reg, router.TextOptions{})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	return tg.RunTelegram(ctx, tg.RunOptions{
		Config:      cfg,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(cfg, nil),
		Routes:      routes,
		OnStart: func(startCtx context.Context, rt tg.Runtime) error {
			msgr.Bind(rt.Bot, rt.Dispatcher)
			logger.Info(startCtx, "app", "ready",
				slog.Duration("startup_duration", logger.Took(startedAt)),
			)
			return nil
		},
		OnStop: func(stopCtx context.Context, _ tg.Runtime) error {
			logger.Info(stopCtx, "app", "shutdown")
			return nil
		},
	})
}

// buildStore selects the session backend from configuration. The returned
// closer releases backend resources and stops any janitor.
func buildStore(ctx context.Context, cfg *coreconfig.Config) (form.Store, func(), error) {
	ttl := cfg.Session.IdleTTL()

	switch cfg.Session.Backend {
	case coreconfig.SessionBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		logger.Info(ctx, "app", "session.backend",
			slog.String("status", "ok"),
			slog.String("mode", "redis"),
			slog.String("host", cfg.Redis.Addr),
		)
		return redisstore.New(client, ttl), func() { _ = client.Close() }, nil

	case coreconfig.SessionBackendPostgres:
		var dbCfg database.Config
		if err := envconfig.Process("", &dbCfg); err != nil {
			return nil, nil, fmt.Errorf("db config: %w", err)
		}
		if err := database.RunMigrations(dbCfg); err != nil {
			return nil, nil, err
		}
		db, err := database.Connect(dbCfg)
		if err != nil {
			return nil, nil, err
		}
		store := pgstore.New(db, ttl)
		stop := startPgJanitor(store, ttl)
		logger.Info(ctx, "app", "session.backend",
			slog.String("status", "ok"),
			slog.String("mode", "postgres"),
			slog.String("db", dbCfg.Name),
		)
		return store, func() {
			stop()
			_ = db.Close()
		}, nil

	default:
		ms := form.NewMemoryStore(ttl)
		logger.Info(ctx, "app", "session.backend",
			slog.String("status", "ok"),
			slog.String("mode", "memory"),
		)
		return ms, ms.Close, nil
	}
}

// startPgJanitor periodically clears expired session rows.
func startPgJanitor(store *pgstore.Store, ttl time.Duration) func() {
	interval := ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				n, err := store.EvictExpired(ctx)
				cancel()
				if err != nil {
					logger.Warn(context.Background(), "app", "session.evict",
						slog.String("status", "fail"),
						slog.String("err", err.Error()),
					)
					continue
				}
				if n > 0 {
					logger.Debug(context.Background(), "app", "session.evict",
						slog.String("status", "ok"),
						slog.Int64("evicted", n),
					)
				}
			}
		}
	}()
	return func() { close(done) }
}
