package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	"video-sentinel/config"
	"video-sentinel/constant"
	jobHandler "video-sentinel/handler"
	"video-sentinel/pkg/analyzer"
	"video-sentinel/pkg/broker"
	"video-sentinel/pkg/ffmpeg"
	"video-sentinel/pkg/gemini"
	"video-sentinel/service"
)

const shutdownTimeout = 15 * time.Second

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to open repository")
		return
	}

	alerts := broker.New(cfg.Pipeline.MailboxSize)
	queue := service.NewTaskQueue(cfg.Pipeline.QueueSize)
	runner := ffmpeg.New()

	var generator analyzer.Generator
	if analyzer.KeyConfigured(cfg.Gemini.APIKey) {
		client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.APIVersion)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create gemini client")
			return
		}
		generator = client
	}
	vision := analyzer.New(cfg.Gemini.APIKey, cfg.Gemini.Model, generator, runner)
	if !vision.Enabled() {
		zerolog.Ctx(ctx).Warn().Msg("gemini api key not configured, segments will be recorded as failed")
	} else {
		zerolog.Ctx(ctx).Info().Strs("models", vision.Candidates()).Msg("vision analyzer enabled")
	}

	registry := newRegistry(ctx, cfg)
	storage, err := newStorage(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to prepare object storage")
		return
	}

	dispatcher, startSegmentation, err := newDispatcher(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to prepare segmentation dispatcher")
		return
	}

	monitoring := service.NewMonitoringService(service.MonitoringOptions{
		Repo:       repo,
		Queue:      queue,
		Registry:   registry,
		Dispatcher: dispatcher,
		Segmenter:  runner,
		Storage:    storage,
		Bucket:     cfg.MinIOBucket,
		UseCases:   cfg.UseCases,
		Pipeline:   cfg.Pipeline,
	})
	processor := service.NewProcessor(queue, repo, vision, alerts, cfg.UseCases)
	processor.OnComplete(monitoring.Release)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		processor.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		startSegmentation(ctx, jobHandler.ServiceDependencies{MonitoringService: monitoring})
	}()

	startRelays(ctx, cfg, alerts, &wg)

	api := jobHandler.NewAPI(
		monitoring,
		service.NewSearchService(repo),
		service.NewEventService(repo),
		service.NewAnalyticsService(repo),
		alerts,
		cfg.UseCases,
	)

	r := gin.New()
	r.Use(gin.Recovery(), jobHandler.RequestLogger(*zerolog.Ctx(ctx)), jobHandler.CORS())
	jobHandler.RegisterRoutes(r, api)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}
	handler.RegisterOnShutdown(api.Close)

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("port", cfg.Server.HttpPort).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
			cancel()
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	wg.Wait()
	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
