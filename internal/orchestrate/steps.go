package orchestrate

import (
	"context"

	"github.com/google/uuid"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
	"github.com/couchcryptid/urban-pulse-etl/internal/pipeline"
)

// Step names.
const (
	StepExtract   = "extract"
	StepLoad      = "load"
	StepTransform = "transform"
)

// ETL is the set of pipeline stages the orchestrator drives.
type ETL interface {
	Extract(ctx context.Context) (pipeline.Extraction, error)
	Load(ctx context.Context, ext pipeline.Extraction) (pipeline.LoadStats, error)
	TransformBatch(ctx context.Context, batchID string) ([]domain.StressSample, error)
}

// ETLSteps returns extract, load and transform as dependent steps sharing one
// extraction. When run is non-nil its row counts are filled in as the steps
// complete and its id becomes the batch id of the published samples.
func ETLSteps(etl ETL, run *domain.Run) []Step {
	var ext pipeline.Extraction
	if run == nil {
		run = &domain.Run{ID: uuid.NewString()}
	}
	return []Step{
		{Name: StepExtract, Run: func(ctx context.Context) error {
			var err error
			ext, err = etl.Extract(ctx)
			return err
		}},
		{Name: StepLoad, Run: func(ctx context.Context) error {
			stats, err := etl.Load(ctx, ext)
			run.WeatherRows += stats.Weather
			run.SensorRows += stats.Sensor
			run.SocialRows += stats.Social
			// A retry only inserts the rows that were not written yet.
			ext.Weather = ext.Weather[stats.Weather:]
			ext.Sensor = ext.Sensor[stats.Sensor:]
			ext.Social = ext.Social[stats.Social:]
			return err
		}},
		{Name: StepTransform, Run: func(ctx context.Context) error {
			samples, err := etl.TransformBatch(ctx, run.ID)
			run.StressRows = len(samples)
			return err
		}},
	}
}
