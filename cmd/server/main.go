package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oggyb/muzz-introductions/internal/app"
	"github.com/oggyb/muzz-introductions/internal/config"
	"github.com/oggyb/muzz-introductions/internal/db"
	"github.com/oggyb/muzz-introductions/internal/domain"
	"github.com/oggyb/muzz-introductions/internal/events"
	"github.com/oggyb/muzz-introductions/internal/handler"
	"github.com/oggyb/muzz-introductions/internal/logger"
	"github.com/oggyb/muzz-introductions/internal/metrics"
	"github.com/oggyb/muzz-introductions/internal/middleware"
	"github.com/oggyb/muzz-introductions/internal/photos"
	"github.com/oggyb/muzz-introductions/internal/scheduler"
	"github.com/oggyb/muzz-introductions/internal/server"
	"github.com/oggyb/muzz-introductions/internal/service/matching"
	"github.com/oggyb/muzz-introductions/internal/service/points"
	"github.com/oggyb/muzz-introductions/internal/store"
	"github.com/oggyb/muzz-introductions/internal/store/dynamostore"
	"github.com/oggyb/muzz-introductions/internal/store/memory"
	"github.com/oggyb/muzz-introductions/internal/store/sqlstore"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("failed to init store", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// Event sink: Redis when reachable, logs otherwise.
	var sink events.Sink = events.LogSink{Logger: log.With("component", "events")}
	redisSink := events.NewRedisSink(events.NewRedisClient(cfg), cfg)
	if err := redisSink.Ping(ctx); err != nil {
		log.Warn("redis unavailable, events go to the log", "addr", cfg.Redis.Addr, "err", err)
	} else {
		sink = redisSink
	}
	emitter := events.NewEmitter(sink, 1024, log, events.WithDropHook(metrics.RecordEventDropped))
	defer emitter.Close()

	signer, err := photos.New(ctx, cfg)
	if err != nil {
		log.Warn("photo signer unavailable, serving raw references", "err", err)
		signer = photos.Passthrough{}
	}

	appCtx := app.New(cfg, st, emitter, signer, log)
	coord := matching.New(appCtx)

	if cfg.App.ENV == "development" {
		grant := func(ctx context.Context, userID string) error {
			_, err := coord.Ledger.Credit(ctx, userID, points.Entry{
				Amount:      cfg.Matching.SignupBonus,
				Type:        domain.PointsSignupBonus,
				Description: "signup bonus",
			})
			return err
		}
		if _, err := db.SeedDemoUsers(ctx, appCtx.Repos, 20, grant, log); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	sched := scheduler.NewAutoProcessScheduler(coord, cfg.Matching.AutoProcessCron, log)
	if err := sched.Start(); err != nil {
		log.Error("failed to start scheduler", "cron", cfg.Matching.AutoProcessCron, "err", err)
		os.Exit(1)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, log)
	limiterStop := make(chan struct{})
	limiter.StartCleanup(5*time.Minute, limiterStop)

	h := handler.New(coord, validator.New(validator.WithRequiredStructEnabled()), log)
	httpServer := server.NewHTTPServer(cfg, server.NewRouter(cfg, h, limiter, log))

	health := server.NewHealthRegistrar("matchmaker")
	grpcServer := server.NewGRPCServer(health)

	errCh := make(chan error, 2)
	go func() {
		log.Info("starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		log.Info("starting gRPC server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
		if err := server.StartGRPCServer(cfg, grpcServer); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server failed", "err", err)
	}

	health.Shutdown()
	sched.Stop()
	close(limiterStop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	grpcServer.GracefulStop()
	log.Info("stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.New(), nil
	case "dynamo":
		client, err := dynamostore.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s := dynamostore.New(client, cfg.Dynamo.TablePrefix)
		if err := s.EnsureTables(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		database, err := db.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(database), nil
	}
}
