package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/handlers"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/observability"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/realtime"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/services"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

func main() {
	// A missing .env is fine, the environment may already be set.
	_ = godotenv.Load()

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
	}
	cfgPath := filepath.Join(cfgDir, "hopeai")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating config directory: %w", err))
	}

	cfgFilePath := filepath.Join(cfgPath, "config.yaml")
	cfgFile, err := os.Open(cfgFilePath)
	if err != nil {
		log.Fatal(fmt.Errorf("error opening config file: %w", err))
	}
	defer cfgFile.Close()

	cfg := config{}
	if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		panic(fmt.Errorf("error decoding config file: %w", err))
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	logger := cfg.logger()

	backend, err := cfg.Backend.backend(cfg.SystemPrompt, logger)
	if err != nil {
		panic(err)
	}

	dbPath := filepath.Join(cfgPath, "store.db")
	boltDB, err := services.NewBoltDB(dbPath)
	if err != nil {
		panic(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	publisher := services.NewTranscriptPublisher(cfg.Kafka, metrics, logger)

	opts := []handlers.Option{
		handlers.WithMetrics(metrics),
		handlers.WithPublisher(publisher),
		handlers.WithClipboard(services.SystemClipboard{}),
	}
	if name, labels, ok := cfg.assistant(); ok {
		opts = append(opts, handlers.WithAssistant(name, labels...))
	}
	if cfg.Resume {
		opts = append(opts, handlers.WithResume())
	}
	if cfg.ExportPath != "" {
		opts = append(opts, handlers.WithExportPath(cfg.ExportPath))
	}
	if cfg.Realtime.TokenURL != "" {
		opts = append(opts, handlers.WithRealtime(
			realtime.NewTokenClient(cfg.Realtime.TokenURL),
			realtime.NewWebSocketDialer(cfg.Realtime.URL, cfg.Realtime.Model),
		))
		if cfg.Realtime.Voice != "" {
			voice, err := realtime.ParseVoice(cfg.Realtime.Voice)
			if err != nil {
				panic(err)
			}
			opts = append(opts, handlers.WithDefaultVoice(voice))
		}
	}

	m, err := handlers.NewMain(backend, boltDB, logger, opts...)
	if err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/messages", m.HandleMessages)
	mux.HandleFunc("/transcript", m.HandleTranscript)
	mux.HandleFunc("/transcript/download", m.HandleTranscriptDownload)
	mux.HandleFunc("/transcript/copy", m.HandleTranscriptCopy)
	mux.HandleFunc("/transcript/export", m.HandleTranscriptExport)
	mux.HandleFunc("/voice/start", m.HandleVoiceStart)
	mux.HandleFunc("/voice/stop", m.HandleVoiceStop)
	mux.HandleFunc("/captions", m.HandleCaptions)
	mux.HandleFunc("/sessions", m.HandleSessions)
	mux.HandleFunc("/sessions/{id}", m.HandleSessionTranscript)
	mux.HandleFunc("/sse", m.HandleSSE)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := m.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown main handler", slog.String("err", err.Error()))
		}
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close transcript publisher", slog.String("err", err.Error()))
		}
		if err := boltDB.Close(); err != nil {
			logger.Error("Failed to close store", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("err", err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
}
