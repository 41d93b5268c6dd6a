package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
	"github.com/couchcryptid/urban-pulse-etl/internal/observability"
	"github.com/couchcryptid/urban-pulse-etl/internal/sentiment"
)

// WeatherFetcher returns current conditions for one city.
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, city string) (domain.WeatherReading, error)
}

// SensorReader returns one sensor reading.
type SensorReader interface {
	Read(ctx context.Context) (domain.SensorReading, error)
}

// Transformer derives stress samples from the raw tables.
type Transformer interface {
	Transform(ctx context.Context, tables domain.Tables) ([]domain.StressSample, error)
}

// Store persists raw rows, the derived table and the run ledger.
type Store interface {
	InsertWeather(ctx context.Context, r domain.WeatherReading) (int64, error)
	InsertSensor(ctx context.Context, r domain.SensorReading) (int64, error)
	InsertSocial(ctx context.Context, r domain.SocialRecord) (int64, error)
	Tables(ctx context.Context) (domain.Tables, error)
	ReplaceStress(ctx context.Context, samples []domain.StressSample) error
	Sweep(ctx context.Context, days int) (domain.SweepResult, error)
	StartRun(ctx context.Context) (domain.Run, error)
	FinishRun(ctx context.Context, run domain.Run) error
}

// Publisher forwards derived samples downstream. batchID keys the messages.
type Publisher interface {
	Publish(ctx context.Context, batchID string, samples []domain.StressSample) error
}

// Sources groups the three extractors.
type Sources struct {
	Weather   WeatherFetcher
	Sensor    SensorReader
	Sentiment sentiment.Scorer
}

// Extraction is the output of one extract stage. It serializes to JSON so the
// extract and load stages can run as separate processes.
type Extraction struct {
	Weather     []domain.WeatherReading `json:"weather"`
	Sensor      []domain.SensorReading  `json:"sensor"`
	Social      []domain.SocialRecord   `json:"social"`
	ExtractedAt time.Time               `json:"extracted_at"`
}

// LoadStats counts rows written by one load stage.
type LoadStats struct {
	Weather int `json:"weather"`
	Sensor  int `json:"sensor"`
	Social  int `json:"social"`
}

// Pipeline runs the extract, load and transform stages against a store.
type Pipeline struct {
	sources     Sources
	transformer Transformer
	store       Store
	publisher   Publisher
	cities      []string
	texts       []string
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCities sets the cities fetched on every extract.
func WithCities(cities ...string) Option {
	return func(p *Pipeline) { p.cities = cities }
}

// WithTexts replaces the built-in social sample texts.
func WithTexts(texts ...string) Option {
	return func(p *Pipeline) {
		if len(texts) > 0 {
			p.texts = texts
		}
	}
}

// WithPublisher forwards every derived sample after it is stored.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// New creates a Pipeline with the given stages and observability.
func New(src Sources, t Transformer, store Store, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		sources:     src,
		transformer: t,
		store:       store,
		texts:       sentiment.SampleTexts,
		logger:      logger,
		metrics:     metrics,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// CheckReadiness returns nil once a transform has completed, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a transform yet")
	}
	return nil
}

// Extract fetches weather for every city, reads the sensor once and
// classifies the social texts. A city whose fetch fails is logged and skipped;
// sensor and classifier failures abort the stage.
func (p *Pipeline) Extract(ctx context.Context) (Extraction, error) {
	ext := Extraction{ExtractedAt: domain.Now()}

	for _, city := range p.cities {
		reading, err := p.sources.Weather.FetchWeather(ctx, city)
		if err != nil {
			if ctx.Err() != nil {
				return Extraction{}, ctx.Err()
			}
			p.logger.Warn("weather fetch failed, skipping city", "city", city, "error", err)
			continue
		}
		ext.Weather = append(ext.Weather, reading)
	}

	reading, err := p.sources.Sensor.Read(ctx)
	if err != nil {
		return Extraction{}, fmt.Errorf("read sensor: %w", err)
	}
	ext.Sensor = append(ext.Sensor, reading)

	verdicts, err := p.sources.Sentiment.Score(ctx, p.texts)
	if err != nil {
		return Extraction{}, fmt.Errorf("score sentiment: %w", err)
	}
	if len(verdicts) != len(p.texts) {
		return Extraction{}, fmt.Errorf("score sentiment: got %d results for %d texts", len(verdicts), len(p.texts))
	}
	for i, text := range p.texts {
		ext.Social = append(ext.Social, domain.NewSocialRecord(text, verdicts[i]))
	}

	p.logger.Info("extract complete",
		"weather", len(ext.Weather),
		"sensor", len(ext.Sensor),
		"social", len(ext.Social),
		"cities_skipped", len(p.cities)-len(ext.Weather),
	)
	return ext, nil
}

// Load appends every extracted row to the raw tables. Each insert commits on
// its own; a failure leaves earlier rows in place.
func (p *Pipeline) Load(ctx context.Context, ext Extraction) (LoadStats, error) {
	var stats LoadStats

	for _, r := range ext.Weather {
		if _, err := p.store.InsertWeather(ctx, r); err != nil {
			p.logger.Error("load weather failed", "city", r.City, "error", err)
			return stats, err
		}
		stats.Weather++
	}
	p.metrics.RowsInserted.WithLabelValues("weather").Add(float64(stats.Weather))

	for _, r := range ext.Sensor {
		if _, err := p.store.InsertSensor(ctx, r); err != nil {
			p.logger.Error("load sensor failed", "error", err)
			return stats, err
		}
		stats.Sensor++
	}
	p.metrics.RowsInserted.WithLabelValues("sensor").Add(float64(stats.Sensor))

	for _, r := range ext.Social {
		if _, err := p.store.InsertSocial(ctx, r); err != nil {
			p.logger.Error("load social failed", "error", err)
			return stats, err
		}
		stats.Social++
	}
	p.metrics.RowsInserted.WithLabelValues("social").Add(float64(stats.Social))

	p.logger.Info("load complete", "weather", stats.Weather, "sensor", stats.Sensor, "social", stats.Social)
	return stats, nil
}

// Transform reads the raw tables back, derives the stress samples and
// replaces the derived table with them. Published samples get a fresh batch id.
func (p *Pipeline) Transform(ctx context.Context) ([]domain.StressSample, error) {
	return p.TransformBatch(ctx, uuid.NewString())
}

// TransformBatch is Transform with the publisher batch id supplied by the
// caller, normally the id of the surrounding run.
func (p *Pipeline) TransformBatch(ctx context.Context, batchID string) ([]domain.StressSample, error) {
	tables, err := p.store.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("read raw tables: %w", err)
	}

	samples, err := p.transformer.Transform(ctx, tables)
	if err != nil {
		return nil, err
	}

	if err := p.store.ReplaceStress(ctx, samples); err != nil {
		p.logger.Error("store stress samples failed", "error", err)
		return nil, err
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, batchID, samples); err != nil {
			return nil, fmt.Errorf("publish samples: %w", err)
		}
		p.metrics.SamplesPublished.Add(float64(len(samples)))
	}

	p.recordSamples(samples)
	p.ready.Store(true)
	return samples, nil
}

func (p *Pipeline) recordSamples(samples []domain.StressSample) {
	anomalies := 0
	for _, s := range samples {
		if s.Anomaly == domain.FlagAnomaly {
			anomalies++
		}
	}
	p.metrics.StressSamples.Set(float64(len(samples)))
	p.metrics.AnomaliesFlagged.Set(float64(anomalies))
	if len(samples) > 0 {
		p.metrics.LatestStress.Set(samples[len(samples)-1].UrbanStressIndex)
	}
	p.logger.Info("transform complete", "samples", len(samples), "anomalies", anomalies)
}

// Record wraps fn in a run ledger entry. fn fills in the row counts; Record
// sets the final status and error text and returns fn's error.
func (p *Pipeline) Record(ctx context.Context, fn func(ctx context.Context, run *domain.Run) error) error {
	run, err := p.store.StartRun(ctx)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	p.logger.Info("pipeline run started", "run_id", run.ID)

	runErr := fn(ctx, &run)

	run.Status = domain.RunSucceeded
	if runErr != nil {
		run.Status = domain.RunFailed
		run.Error = runErr.Error()
	}
	p.metrics.PipelineRuns.WithLabelValues(string(run.Status)).Inc()
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())

	// The ledger write must survive a cancelled run context.
	if err := p.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		p.logger.Error("finish run failed", "run_id", run.ID, "error", err)
		if runErr == nil {
			return fmt.Errorf("finish run: %w", err)
		}
	}

	if runErr != nil {
		p.logger.Error("pipeline run failed", "run_id", run.ID, "error", runErr)
		return runErr
	}
	p.logger.Info("pipeline run complete", "run_id", run.ID, "duration", time.Since(start),
		"weather", run.WeatherRows, "sensor", run.SensorRows, "social", run.SocialRows, "stress", run.StressRows)
	return nil
}

// Sweep removes raw rows older than the retention window.
func (p *Pipeline) Sweep(ctx context.Context, days int) (domain.SweepResult, error) {
	res, err := p.store.Sweep(ctx, days)
	if err != nil {
		return res, err
	}
	p.metrics.RowsSwept.WithLabelValues("weather").Add(float64(res.Weather))
	p.metrics.RowsSwept.WithLabelValues("sensor").Add(float64(res.Sensor))
	p.metrics.RowsSwept.WithLabelValues("social").Add(float64(res.Social))
	p.logger.Info("retention sweep complete", "days", days,
		"weather", res.Weather, "sensor", res.Sensor, "social", res.Social)
	return res, nil
}
