package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"video-pipeline-go/internal/config"
	"video-pipeline-go/internal/logger"
	"video-pipeline-go/internal/media"
	"video-pipeline-go/internal/notify"
	"video-pipeline-go/internal/pipeline"
	"video-pipeline-go/internal/runs"
	"video-pipeline-go/internal/storage"
	"video-pipeline-go/internal/transcription"
	"video-pipeline-go/internal/voice"
)

func main() {
	_ = godotenv.Load() // loads .env

	cfg, err := config.Load()
	log := logger.NewWithOptions(cfg.Environment, cfg.LogLevel, os.Stdout)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.WithField("service", "video-pipeline-go").Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open artifact store")
	}
	defer closeStore()
	log.WithField("backend", cfg.StorageBackend).Info("artifact store ready")

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	collaborators := pipeline.Collaborators{
		Audio: &media.Extractor{
			HTTP:  httpClient,
			Codec: media.FFmpeg{Binary: cfg.FFmpegBinary},
			Store: store,
			Log:   log.WithField("component", "media"),
		},
		Voice: &voice.Client{
			HTTP:    httpClient,
			BaseURL: cfg.VoicesAPIURL,
			Store:   store,
			Log:     log.WithField("component", "voice"),
		},
		Transcriber: &transcription.Client{
			HTTP:    httpClient,
			BaseURL: cfg.DeepgramURL,
			APIKey:  cfg.DeepgramAPIKey,
			Mock:    cfg.MockTranscribe,
			Store:   store,
			Log:     log.WithField("component", "transcription"),
		},
		Chat: &notify.Slack{HTTP: httpClient},
		Email: &notify.Postmark{
			HTTP:    httpClient,
			BaseURL: cfg.PostmarkURL,
			Token:   cfg.PostmarkToken,
			From:    cfg.PostmarkFrom,
		},
	}
	orch, err := pipeline.New(collaborators, cfg.PipelineOptions(), log)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}

	s := &server{
		pipe:        orch,
		runs:        runs.NewRegistry(cfg.RunHistorySize),
		log:         log,
		runTimeout:  cfg.RunTimeout,
		datasetPath: cfg.DatasetPath,
		reportPath:  cfg.ReportPath,
		batchLimit:  max(1, cfg.FanOutLimit),
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RunTimeout + time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Fatal("server terminated")
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	if err := s.wait(shutdownCtx); err != nil {
		log.WithError(err).Warn("abandoning background runs")
	}
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, func(), error) {
	noop := func() {}
	switch cfg.StorageBackend {
	case config.BackendGCS:
		s, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSEndpoint)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.BackendLocal:
		s, err := storage.NewLocalStore(cfg.LocalStorageDir)
		return s, noop, err
	default:
		s, err := storage.NewS3Store(ctx, cfg.S3)
		return s, noop, err
	}
}
