package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

var day = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

func TestGenerate_StaysInRange(t *testing.T) {
	s := NewSimulator(WithSeed(1), WithLocation(time.UTC))

	for h := range 24 {
		for range 200 {
			r := s.Generate(day.Add(time.Duration(h) * time.Hour))
			assert.GreaterOrEqual(t, r.AirQualityIndex, MinAirQuality)
			assert.LessOrEqual(t, r.AirQualityIndex, MaxAirQuality)
			assert.GreaterOrEqual(t, r.NoiseLevel, MinNoise)
			assert.LessOrEqual(t, r.NoiseLevel, MaxNoise)
		}
	}
}

func TestGenerate_DiurnalShape(t *testing.T) {
	s := NewSimulator(WithSeed(2), WithLocation(time.UTC))

	mean := func(hour int) (aqi, noise float64) {
		const n = 500
		for range n {
			r := s.Generate(day.Add(time.Duration(hour) * time.Hour))
			aqi += float64(r.AirQualityIndex)
			noise += r.NoiseLevel
		}
		return aqi / n, noise / n
	}

	noonAQI, noonNoise := mean(12)
	midnightAQI, midnightNoise := mean(0)

	assert.InDelta(t, 150, noonAQI, 3)
	assert.InDelta(t, 50, midnightAQI, 3)
	assert.InDelta(t, 80, noonNoise, 2)
	assert.InDelta(t, 40, midnightNoise, 2)
}

func TestGenerate_NoiseRoundedToHundredths(t *testing.T) {
	s := NewSimulator(WithSeed(3))
	for range 50 {
		r := s.Generate(day.Add(7 * time.Hour))
		assert.InDelta(t, r.NoiseLevel, float64(int(r.NoiseLevel*100+0.5))/100, 1e-9)
	}
}

func TestGenerate_SeedIsReproducible(t *testing.T) {
	a := NewSimulator(WithSeed(9), WithLocation(time.UTC))
	b := NewSimulator(WithSeed(9), WithLocation(time.UTC))

	for h := range 24 {
		at := day.Add(time.Duration(h) * time.Hour)
		assert.Equal(t, a.Generate(at), b.Generate(at))
	}
}

func TestBaselines(t *testing.T) {
	tests := []struct {
		hour  float64
		aqi   float64
		noise float64
	}{
		{0, 50, 40},
		{6, 100, 60},
		{12, 150, 80},
		{18, 100, 60},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.aqi, AirQualityBaseline(tt.hour), 1e-9)
		assert.InDelta(t, tt.noise, NoiseBaseline(tt.hour), 1e-9)
	}
}

func TestRead_UsesDomainClock(t *testing.T) {
	at := day.Add(13*time.Hour + 30*time.Minute)
	domain.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { domain.SetClock(nil) })

	r, err := NewSimulator(WithSeed(4)).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, at, r.Timestamp)
}

func TestRead_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimulator().Read(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
