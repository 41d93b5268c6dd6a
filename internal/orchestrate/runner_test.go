package orchestrate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
	"github.com/couchcryptid/urban-pulse-etl/internal/observability"
	"github.com/couchcryptid/urban-pulse-etl/internal/pipeline"
)

func testRunner(retries int, opts ...Option) *Runner {
	return NewRunner(retries, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting(), opts...)
}

func countingStep(name string, failures int, calls *[]string) Step {
	n := 0
	return Step{Name: name, Run: func(context.Context) error {
		*calls = append(*calls, name)
		n++
		if n <= failures {
			return errors.New(name + " failed")
		}
		return nil
	}}
}

func TestRunner_RunsStepsInOrder(t *testing.T) {
	var calls []string
	r := testRunner(1)

	err := r.Run(context.Background(), []Step{
		countingStep("extract", 0, &calls),
		countingStep("load", 0, &calls),
		countingStep("transform", 0, &calls),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"extract", "load", "transform"}, calls)
}

func TestRunner_RetriesThenSucceeds(t *testing.T) {
	var calls []string
	r := testRunner(2)

	err := r.Run(context.Background(), []Step{
		countingStep("extract", 2, &calls),
		countingStep("load", 0, &calls),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"extract", "extract", "extract", "load"}, calls)
	assert.InDelta(t, 2, testutil.ToFloat64(r.metrics.StepAttempts.WithLabelValues("extract", "error")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.metrics.StepAttempts.WithLabelValues("extract", "success")), 1e-9)
}

func TestRunner_StopsAfterExhaustedRetries(t *testing.T) {
	tests := []struct {
		retries  int
		attempts int
	}{
		{0, 1},
		{1, 2},
		{3, 4},
		{-2, 1},
	}

	for _, tt := range tests {
		var calls []string
		r := testRunner(tt.retries)

		err := r.Run(context.Background(), []Step{
			countingStep("extract", 0, &calls),
			countingStep("load", 100, &calls),
			countingStep("transform", 0, &calls),
		})

		var stepErr *StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, "load", stepErr.Step)
		assert.Equal(t, tt.attempts, stepErr.Attempts)
		assert.Contains(t, err.Error(), "load failed")

		loads := 0
		for _, c := range calls {
			if c == "load" {
				loads++
			}
			assert.NotEqual(t, "transform", c, "later step must not run")
		}
		assert.Equal(t, tt.attempts, loads)
	}
}

func TestRunner_CancelledContextNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	r := testRunner(5)

	err := r.Run(ctx, []Step{{Name: "extract", Run: func(context.Context) error {
		attempts++
		cancel()
		return context.Canceled
	}}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRunner_Schedule(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := testRunner(0, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cycles atomic.Int32
	ran := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- r.Schedule(ctx, time.Hour, func(context.Context) error {
			n := cycles.Add(1)
			ran <- struct{}{}
			if n == 2 {
				return errors.New("transient")
			}
			return nil
		})
	}()

	waitFor(t, ran) // immediate first cycle
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Hour)
	waitFor(t, ran)
	clock.Advance(time.Hour)
	waitFor(t, ran) // a failed cycle does not stop the schedule

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not stop after cancel")
	}
	assert.Equal(t, int32(3), cycles.Load())
}

func TestRunner_ScheduleInvalidInterval(t *testing.T) {
	err := testRunner(0).Schedule(context.Background(), 0, func(context.Context) error { return nil })
	require.Error(t, err)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cycle")
	}
}

// --- ETL steps ---

type fakeETL struct {
	loadFailures int
	loads        [][]domain.SocialRecord
	batchIDs     []string
}

func (f *fakeETL) Extract(context.Context) (pipeline.Extraction, error) {
	return pipeline.Extraction{
		Weather: []domain.WeatherReading{{City: "Toronto"}},
		Sensor:  []domain.SensorReading{{AirQualityIndex: 90}},
		Social:  []domain.SocialRecord{{Text: "a"}, {Text: "b"}},
	}, nil
}

func (f *fakeETL) Load(_ context.Context, ext pipeline.Extraction) (pipeline.LoadStats, error) {
	f.loads = append(f.loads, ext.Social)
	if f.loadFailures > 0 {
		f.loadFailures--
		// Weather and sensor land, then the social insert fails.
		return pipeline.LoadStats{Weather: len(ext.Weather), Sensor: len(ext.Sensor)}, errors.New("database is locked")
	}
	return pipeline.LoadStats{Weather: len(ext.Weather), Sensor: len(ext.Sensor), Social: len(ext.Social)}, nil
}

func (f *fakeETL) TransformBatch(_ context.Context, batchID string) ([]domain.StressSample, error) {
	f.batchIDs = append(f.batchIDs, batchID)
	return []domain.StressSample{{City: "Toronto"}}, nil
}

func TestETLSteps_FillsRunCounts(t *testing.T) {
	etl := &fakeETL{}
	var run domain.Run

	require.NoError(t, testRunner(1).Run(context.Background(), ETLSteps(etl, &run)))
	assert.Equal(t, 1, run.WeatherRows)
	assert.Equal(t, 1, run.SensorRows)
	assert.Equal(t, 2, run.SocialRows)
	assert.Equal(t, 1, run.StressRows)
}

func TestETLSteps_RetriedLoadSkipsWrittenRows(t *testing.T) {
	etl := &fakeETL{loadFailures: 1}
	var run domain.Run

	require.NoError(t, testRunner(1).Run(context.Background(), ETLSteps(etl, &run)))
	require.Len(t, etl.loads, 2)
	assert.Len(t, etl.loads[1], 2, "social rows are retried")
	assert.Equal(t, 1, run.WeatherRows, "weather is not inserted twice")
	assert.Equal(t, 1, run.SensorRows)
	assert.Equal(t, 2, run.SocialRows)
}

func TestETLSteps_TransformUsesRunID(t *testing.T) {
	etl := &fakeETL{}
	run := domain.Run{ID: "run-42"}

	require.NoError(t, testRunner(0).Run(context.Background(), ETLSteps(etl, &run)))
	assert.Equal(t, []string{"run-42"}, etl.batchIDs)
}

func TestETLSteps_NilRun(t *testing.T) {
	etl := &fakeETL{}
	require.NoError(t, testRunner(0).Run(context.Background(), ETLSteps(etl, nil)))
	require.Len(t, etl.batchIDs, 1)
	assert.NotEmpty(t, etl.batchIDs[0])
}
