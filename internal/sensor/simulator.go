// Package sensor simulates an urban air-quality and noise sensor.
//
// Readings follow a diurnal pattern: air quality worsens toward midday and
// noise is lowest around midnight. Gaussian jitter is added and both values
// are clamped to their nominal ranges.
package sensor

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

// Nominal ranges for simulated values.
const (
	MinAirQuality = 0
	MaxAirQuality = 200
	MinNoise      = 20.0
	MaxNoise      = 100.0

	aqiBase     = 100.0
	aqiSwing    = 50.0
	aqiJitter   = 10.0
	noiseBase   = 60.0
	noiseSwing  = 20.0
	noiseJitter = 5.0
)

// Simulator produces synthetic sensor readings.
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	location *time.Location
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithSeed makes the jitter reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithLocation sets the time zone whose wall clock drives the diurnal cycle.
func WithLocation(loc *time.Location) Option {
	return func(s *Simulator) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewSimulator returns a simulator seeded from runtime entropy unless
// WithSeed is given.
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		location: time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Read returns one reading stamped with the current time.
func (s *Simulator) Read(ctx context.Context) (domain.SensorReading, error) {
	if err := ctx.Err(); err != nil {
		return domain.SensorReading{}, err
	}
	return s.Generate(domain.Now()), nil
}

// Generate returns a reading for the given instant.
func (s *Simulator) Generate(at time.Time) domain.SensorReading {
	h := hourOfDay(at.In(s.location))

	s.mu.Lock()
	aqiNoise := s.rng.NormFloat64() * aqiJitter
	dbNoise := s.rng.NormFloat64() * noiseJitter
	s.mu.Unlock()

	aqi := int(math.Round(AirQualityBaseline(h) + aqiNoise))
	db := math.Round((NoiseBaseline(h)+dbNoise)*100) / 100

	return domain.SensorReading{
		AirQualityIndex: min(max(aqi, MinAirQuality), MaxAirQuality),
		NoiseLevel:      math.Min(math.Max(db, MinNoise), MaxNoise),
		Timestamp:       at.UTC(),
	}
}

// AirQualityBaseline is the noise-free AQI at fractional hour h. It peaks at
// 150 at noon and bottoms out at 50 at midnight.
func AirQualityBaseline(h float64) float64 {
	return aqiBase + aqiSwing*math.Sin(math.Pi*(h-6)/12)
}

// NoiseBaseline is the noise-free decibel level at fractional hour h. It is
// 40 dB at midnight and 80 dB at noon.
func NoiseBaseline(h float64) float64 {
	return noiseBase - noiseSwing*math.Cos(2*math.Pi*h/24)
}

func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}
