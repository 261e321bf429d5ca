package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aryamantandon18/connectly/internal/config"
	"github.com/aryamantandon18/connectly/internal/database"
	"github.com/aryamantandon18/connectly/internal/http/router"
	"github.com/aryamantandon18/connectly/internal/ingest"
	"github.com/aryamantandon18/connectly/internal/logging"
	"github.com/aryamantandon18/connectly/internal/store"
	"github.com/aryamantandon18/connectly/internal/upload"
	"github.com/aryamantandon18/connectly/internal/ws"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect db")
	}
	if err := database.Migrate(db); err != nil {
		logging.Fatal().Err(err).Msg("failed to migrate")
	}

	uploader, err := newUploader(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to set up uploads")
	}

	s := store.New(db)
	hub := ws.NewHub(ws.WithPath(cfg.LivePath))
	r, err := router.New(router.Deps{
		Config: cfg,
		DB:     db,
		Store:  s,
		Hub:    hub,
		Ingest: ingest.New(s, uploader, hub),
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build router")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logging.Info().Str("addr", srv.Addr).Str("live", hub.Path()).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	go func() {
		<-gctx.Done()
		if ctx.Err() == nil {
			// a component failed before any shutdown signal
			if err := g.Wait(); err != nil {
				logging.Fatal().Err(err).Msg("server stopped")
			}
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"connectly": func(shutdownCtx context.Context) error {
				logging.Info().Msg("graceful shutdown initiated")
				// Live connections are hijacked and not tracked by
				// srv.Shutdown, so the hub closes them first.
				cancel()
				var errs []error
				if err := srv.Shutdown(shutdownCtx); err != nil {
					errs = append(errs, fmt.Errorf("http: %w", err))
				}
				if err := g.Wait(); err != nil {
					errs = append(errs, err)
				}
				if sqlDB, err := db.DB(); err == nil {
					if err := sqlDB.Close(); err != nil {
						errs = append(errs, fmt.Errorf("db: %w", err))
					}
				}
				return errors.Join(errs...)
			},
		},
	)

	exitCode := <-wait
	logging.Info().Int("code", exitCode).Msg("exited")
	os.Exit(exitCode)
}

func newUploader(cfg config.Config) (upload.Uploader, error) {
	if cfg.Cloudinary.Configured() {
		logging.Info().Str("folder", cfg.Cloudinary.Folder).Msg("uploads go to cloudinary")
		return upload.NewCloudinary(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
	}
	logging.Info().Str("dir", cfg.UploadDir).Msg("cloudinary not configured, storing uploads on disk")
	return upload.NewDisk(cfg.UploadDir, cfg.PublicBaseURL, cfg.MaxUploadBytes)
}
