package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"sifra/internal/analysis"
	"sifra/internal/api"
	"sifra/internal/cfg"
	"sifra/internal/common"
	"sifra/internal/llm"
	"sifra/internal/logging"
	"sifra/internal/metrics"
	"sifra/internal/ml"
	"sifra/internal/narrative"
	"sifra/internal/risk"
	"sifra/internal/storage"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	logCloser, err := logging.Setup(c.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("logging setup failed")
	}
	defer logCloser.Close()

	// Artifacts are validated here; a schema mismatch never reaches a request.
	bank, err := ml.LoadBank(c.ModelDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", c.ModelDir).Msg("model bank load failed")
	}

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	m.SetModelVersion(bank.Version())

	scorer, err := risk.NewScorer(bank, c.Weights)
	if err != nil {
		log.Fatal().Err(err).Msg("consensus scorer init failed")
	}
	explainer, err := risk.NewExplainer(bank, c.ReferenceSlot)
	if err != nil {
		log.Fatal().Err(err).Msg("attribution init failed")
	}

	client := llm.New(llm.Config{
		BaseURL:           c.LLMBaseURL,
		APIKey:            c.LLMAPIKey,
		Model:             c.LLMModel,
		Timeout:           c.LLMTimeout,
		MaxTokens:         c.LLMMaxTokens,
		RequestsPerSecond: c.LLMRequestsPerSecond,
		FailureThreshold:  uint32(c.LLMFailureThreshold),
		OpenTimeout:       c.LLMOpenTimeout,
	}, mw)
	agents := narrative.NewAgents(client, c.Temperatures)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	analyzer, err := analysis.New(bank, scorer, explainer, agents, analysis.Options{
		NarrativeTimeout: c.NarrativeTimeout,
		Store:            store,
		Metrics:          mw,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("analyzer init failed")
	}

	gin.SetMode(gin.ReleaseMode)
	deps := api.Deps{
		Analyzer:       analyzer,
		Agents:         agents,
		Models:         bank,
		Weights:        scorer.Weights(),
		Store:          store,
		Metrics:        mw,
		Gatherer:       prometheus.DefaultGatherer,
		CORSOrigins:    c.CORSOrigins,
		MaxBodyBytes:   c.MaxBodyBytes,
		MaxUploadBytes: c.MaxUploadBytes,
		ChatTimeout:    c.NarrativeTimeout,
	}

	srv := &http.Server{
		Addr:              c.Addr(),
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      c.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("llm_model", client.Model()).
			Str("store", c.StoreDriver).
			Msg("SIFRA listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	waitForShutdown(srv)
}

// initializeStorage opens the configured history backend. History is optional:
// a backend that fails to open is logged and the service runs without it.
func initializeStorage(c cfg.Settings) storage.Store {
	switch c.StoreDriver {
	case common.StoreBolt:
		store, err := storage.NewBolt(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Str("path", c.DataPath).Msg("bolt storage init failed, continuing without history")
			return nil
		}
		return withCache(store, c.HistoryCacheSize)
	case common.StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := storage.NewPostgres(ctx, c.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("postgres storage init failed, continuing without history")
			return nil
		}
		return withCache(store, c.HistoryCacheSize)
	default:
		log.Info().Msg("assessment history disabled")
		return nil
	}
}

func withCache(store storage.Store, size int) storage.Store {
	if size <= 0 {
		return store
	}
	cached, err := storage.NewCached(store, size)
	if err != nil {
		log.Warn().Err(err).Msg("history cache disabled")
		return store
	}
	return cached
}

func waitForShutdown(srv *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	timeout := shutdownTimeout(srv)
	log.Info().Dur("timeout", timeout).Msg("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
		return
	}
	log.Info().Msg("server stopped")
}

const minShutdownTimeout = 5 * time.Second

// shutdownTimeout is the write timeout, never less than minShutdownTimeout.
// Config validation keeps the write timeout at or above the narrative timeout.
func shutdownTimeout(srv *http.Server) time.Duration {
	if srv.WriteTimeout > minShutdownTimeout {
		return srv.WriteTimeout
	}
	return minShutdownTimeout
}
