package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

// StressTransformer implements Transformer using domain.ComputeStress with
// fixed options.
type StressTransformer struct {
	opts   domain.TransformOptions
	logger *slog.Logger
}

// NewTransformer creates a StressTransformer.
func NewTransformer(opts domain.TransformOptions, logger *slog.Logger) *StressTransformer {
	return &StressTransformer{
		opts:   opts,
		logger: logger,
	}
}

func (t *StressTransformer) Transform(ctx context.Context, tables domain.Tables) ([]domain.StressSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.logger.Debug("aligning tables",
		"alignment", t.opts.Alignment,
		"city", t.opts.City,
		"weather", len(tables.Weather),
		"sensor", len(tables.Sensor),
		"social", len(tables.Social),
	)
	return domain.ComputeStress(tables, t.opts)
}
