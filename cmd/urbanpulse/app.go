package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/urban-pulse-etl/internal/adapter/anthropic"
	kafkaadapter "github.com/couchcryptid/urban-pulse-etl/internal/adapter/kafka"
	"github.com/couchcryptid/urban-pulse-etl/internal/adapter/openweather"
	"github.com/couchcryptid/urban-pulse-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/urban-pulse-etl/internal/config"
	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
	"github.com/couchcryptid/urban-pulse-etl/internal/observability"
	"github.com/couchcryptid/urban-pulse-etl/internal/orchestrate"
	"github.com/couchcryptid/urban-pulse-etl/internal/pipeline"
	"github.com/couchcryptid/urban-pulse-etl/internal/sensor"
	"github.com/couchcryptid/urban-pulse-etl/internal/sentiment"
)

// app holds every wired component for one CLI invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	store    *sqlite.Store
	pipeline *pipeline.Pipeline
	runner   *orchestrate.Runner
	closers  []io.Closer
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := observability.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			a.Close()
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append([]io.Closer{store}, a.closers...)
	if err := store.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	a.metrics = observability.NewMetrics()

	weather := openweather.NewClient(openweather.Options{
		APIKey:            cfg.API.OpenWeatherMapKey,
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		RequestsPerMinute: cfg.API.RequestsPerMinute,
		Geocode:           cfg.API.Geocode,
		GeocodeCacheSize:  cfg.API.GeocodeCacheSize,
	}, a.metrics, logger)

	var scorer sentiment.Scorer = sentiment.NewLexicon()
	if cfg.Sentiment.Provider == config.ProviderAnthropic {
		scorer = anthropic.NewClassifier(anthropic.Options{
			APIKey: cfg.Sentiment.AnthropicKey,
			Model:  cfg.Sentiment.Model,
		}, logger)
	}
	logger.Info("sentiment provider selected", "provider", cfg.Sentiment.Provider)

	transformer := pipeline.NewTransformer(transformOptions(cfg.Transform), logger)

	pipeOpts := []pipeline.Option{
		pipeline.WithCities(cfg.Cities...),
		pipeline.WithTexts(cfg.Sentiment.Texts...),
	}
	if cfg.Kafka.Enabled() {
		writer := kafkaadapter.NewWriter(cfg.Kafka, logger)
		a.closers = append([]io.Closer{writer}, a.closers...)
		pipeOpts = append(pipeOpts, pipeline.WithPublisher(writer))
		logger.Info("kafka publishing enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	a.pipeline = pipeline.New(pipeline.Sources{
		Weather:   weather,
		Sensor:    sensor.NewSimulator(),
		Sentiment: scorer,
	}, transformer, store, logger, a.metrics, pipeOpts...)

	a.runner = orchestrate.NewRunner(cfg.Schedule.Retries, cfg.Schedule.RetryDelay, logger, a.metrics)
	return a, nil
}

func transformOptions(t config.TransformConfig) domain.TransformOptions {
	return domain.TransformOptions{
		City:            t.City,
		Alignment:       t.Alignment,
		Tolerance:       t.Tolerance,
		SentimentFactor: t.SentimentFactor,
		DetectAnomalies: t.AnomalyDetection,
		Contamination:   t.Contamination,
		Seed:            t.Seed,
	}
}

// requireWeatherKey guards the commands that call OpenWeatherMap.
func (a *app) requireWeatherKey() error {
	if a.cfg.API.OpenWeatherMapKey == "" {
		return errors.New("api.openweathermap_key is required (set it in the config file or OPENWEATHERMAP_KEY)")
	}
	return nil
}

// cycle runs one orchestrated extract, load and transform under a run ledger
// entry, then applies retention when it is configured.
func (a *app) cycle(ctx context.Context) error {
	err := a.pipeline.Record(ctx, func(ctx context.Context, run *domain.Run) error {
		return a.runner.Run(ctx, orchestrate.ETLSteps(a.pipeline, run))
	})
	if err != nil {
		return err
	}
	if days := a.cfg.Database.RetentionDays; days > 0 {
		if _, err := a.pipeline.Sweep(ctx, days); err != nil {
			return fmt.Errorf("retention sweep: %w", err)
		}
	}
	return nil
}

// Close releases the publisher, the store and the log file in that order.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Error("close failed", "error", err)
		}
	}
}

// background runs fn in its own goroutine. The returned stop cancels fn's
// context and blocks until fn has returned.
func background(ctx context.Context, fn func(ctx context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// readiness is ready when every checker is.
type readiness []interface {
	CheckReadiness(ctx context.Context) error
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
