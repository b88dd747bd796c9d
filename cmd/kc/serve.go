package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kconf/internal/config"
	"github.com/alfredjeanlab/kconf/internal/events"
	"github.com/alfredjeanlab/kconf/internal/namespace"
	"github.com/alfredjeanlab/kconf/internal/server"
	"github.com/alfredjeanlab/kconf/internal/store"
	"github.com/alfredjeanlab/kconf/internal/store/memory"
	"github.com/alfredjeanlab/kconf/internal/store/postgres"
	"github.com/alfredjeanlab/kconf/internal/store/sqlite"
	kconfsync "github.com/alfredjeanlab/kconf/internal/sync"
	"github.com/alfredjeanlab/kconf/internal/ui"
)

// newLogger builds the process logger and installs it as the slog default.
// Pass a *slog.LevelVar to change the level at runtime.
func newLogger(level slog.Leveler) *slog.Logger {
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:       level,
		TimeFormat:  time.TimeOnly,
		NoColor:     !ui.ShouldUseColorFor(os.Stderr),
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	slog.SetDefault(logger)
	return logger
}

func postgresOptions(cfg *config.Config) postgres.Options {
	return postgres.Options{
		Host:            cfg.DB.Host,
		Port:            cfg.DB.Port,
		Database:        cfg.DB.Name,
		DefaultDatabase: cfg.DB.DefaultDatabase,
		User:            cfg.DB.User,
		Password:        cfg.DB.Password,
		SSLMode:         cfg.DB.SSLMode,
		TableName:       cfg.TableName,
		Pooled:          cfg.DB.Pool,
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil
	case config.StorePostgres:
		return postgres.Open(ctx, postgresOptions(cfg), logger)
	case config.StoreSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath, cfg.TableName, logger)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// syncDestinations returns the snapshot targets enabled in cfg.
func syncDestinations(ctx context.Context, cfg config.SyncConfig, logger *slog.Logger) []kconfsync.Destination {
	var dests []kconfsync.Destination
	if cfg.S3Bucket != "" {
		s3Dest, err := kconfsync.NewS3Destination(ctx, kconfsync.S3Options{
			Bucket:   cfg.S3Bucket,
			Key:      cfg.S3Key,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync destination enabled", "destination", s3Dest.Name())
		}
	}
	if cfg.GitRepo != "" {
		gitDest := kconfsync.NewGitDestination(cfg.GitRepo, cfg.GitFile, cfg.GitBranch)
		dests = append(dests, gitDest)
		logger.Info("sync destination enabled", "destination", gitDest.Name())
	}
	return dests
}

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Start the kconf HTTP and gRPC server",
	GroupID:           "system",
	PersistentPreRunE: skipClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		var level slog.LevelVar
		level.Set(cfg.LogLevel)
		logger := newLogger(&level)
		ctx, stopWatch := context.WithCancel(context.Background())
		defer stopWatch()

		if path := config.File(); path != "" {
			if err := config.WatchLogLevel(ctx, path, &level, logger); err != nil {
				logger.Warn("config file watch disabled", "path", path, "err", err)
			}
		}

		st, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = events.NoopPublisher{}
			logger.Info("events disabled (KCONF_NATS_URL not set)")
		}

		router := namespace.NewRouter(cfg.GlobalRoot, cfg.UserRoot)
		svc := namespace.NewService(st, router)
		configServer := server.NewConfigServer(svc, publisher, logger)
		grpcServer := server.NewGRPCServer(configServer, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		handler := configServer.NewHTTPHandler(cfg.AuthToken)
		if cfg.RateLimit > 0 {
			handler = server.RateLimit(cfg.RateLimit, cfg.RateBurst, handler)
			logger.Info("rate limiting enabled", "per_second", cfg.RateLimit, "burst", cfg.RateBurst)
		}
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var scheduler *kconfsync.Scheduler
		if cfg.Sync.Interval > 0 {
			if dests := syncDestinations(ctx, cfg.Sync, logger); len(dests) > 0 {
				scheduler = kconfsync.NewScheduler(svc, dests, cfg.Sync.Interval, logger)
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.Sync.Interval)
			}
		}

		if cfg.AuthToken == "" {
			logger.Warn("authentication disabled (KCONF_AUTH_TOKEN not set)")
		}
		logger.Info("kconf server started",
			"store", cfg.Store,
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"global_root", router.GlobalPrefix(),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
