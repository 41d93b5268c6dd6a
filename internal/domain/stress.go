package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/urban-pulse-etl/internal/anomaly"
)

// Index weights and normalization denominators.
const (
	WeightAirQuality = 0.4
	WeightNoise      = 0.3
	WeightSentiment  = 0.3

	MaxAirQualityIndex = 200.0
	MaxNoiseLevel      = 100.0
)

// ErrEmptyTable is returned when a raw table has no rows to align.
var ErrEmptyTable = errors.New("empty input table")

// Alignment policies.
const (
	AlignPositional = "positional"
	AlignNearest    = "nearest"
)

// Sentiment factor modes.
const (
	FactorLabel = "label" // NEGATIVE confidence is inverted
	FactorRaw   = "raw"   // classifier score used as-is
)

// TransformOptions controls ComputeStress.
type TransformOptions struct {
	// City restricts the weather table before alignment. Empty keeps every city.
	City string

	Alignment string        // AlignPositional (default) or AlignNearest
	Tolerance time.Duration // nearest-match window

	SentimentFactor string // FactorLabel (default) or FactorRaw

	DetectAnomalies bool
	Contamination   float64
	Seed            uint64
}

// alignedRow is one position across the three tables.
type alignedRow struct {
	weather WeatherReading
	sensor  SensorReading
	social  SocialRecord
}

// ComputeStress aligns the three raw tables, normalizes each feature and
// computes the urban stress index per aligned row. When anomaly detection is
// enabled every sample also carries an Anomaly or Normal flag.
func ComputeStress(t Tables, opts TransformOptions) ([]StressSample, error) {
	if err := requireRows(t); err != nil {
		return nil, err
	}

	if opts.City != "" {
		t.Weather = filterCity(t.Weather, opts.City)
		if len(t.Weather) == 0 {
			return nil, fmt.Errorf("%w: weather has no rows for city %q", ErrEmptyTable, opts.City)
		}
	}

	var rows []alignedRow
	switch opts.Alignment {
	case "", AlignPositional:
		rows = alignPositional(t)
	case AlignNearest:
		rows = alignNearest(t, opts.Tolerance)
	default:
		return nil, fmt.Errorf("unknown alignment %q", opts.Alignment)
	}

	factorOf := SentimentFactor
	switch opts.SentimentFactor {
	case "", FactorLabel:
	case FactorRaw:
		factorOf = rawSentimentFactor
	default:
		return nil, fmt.Errorf("unknown sentiment factor mode %q", opts.SentimentFactor)
	}

	samples := make([]StressSample, len(rows))
	for i, r := range rows {
		factor := factorOf(r.social.Label, r.social.Score)
		samples[i] = StressSample{
			Timestamp:       r.sensor.Timestamp,
			City:            r.weather.City,
			Temperature:     r.weather.Temperature,
			Humidity:        r.weather.Humidity,
			AirQualityIndex: r.sensor.AirQualityIndex,
			NoiseLevel:      r.sensor.NoiseLevel,
			SentimentFactor: factor,
			UrbanStressIndex: StressIndex(
				NormalizeAirQuality(r.sensor.AirQualityIndex),
				NormalizeNoise(r.sensor.NoiseLevel),
				factor,
			),
		}
	}

	if opts.DetectAnomalies && len(samples) > 0 {
		if err := flagAnomalies(samples, opts); err != nil {
			return nil, err
		}
	}

	return samples, nil
}

// NormalizeAirQuality maps an AQI reading onto [0, 1] for the nominal range.
func NormalizeAirQuality(aqi int) float64 {
	return float64(aqi) / MaxAirQualityIndex
}

// NormalizeNoise maps a decibel reading onto [0, 1] for the nominal range.
func NormalizeNoise(db float64) float64 {
	return db / MaxNoiseLevel
}

// StressIndex combines normalized features. Higher pollution and noise raise
// stress; higher sentiment lowers it.
func StressIndex(aqiNorm, noiseNorm, sentiment float64) float64 {
	return WeightAirQuality*aqiNorm + WeightNoise*noiseNorm + WeightSentiment*(1-sentiment)
}

// SentimentFactor converts a label confidence into a positivity in [0, 1].
// A confident NEGATIVE verdict is low positivity, not high.
func SentimentFactor(label string, score float64) float64 {
	factor := score
	if label == LabelNegative {
		factor = 1 - score
	}
	return clamp(factor, 0, 1)
}

func rawSentimentFactor(_ string, score float64) float64 {
	return clamp(score, 0, 1)
}

func requireRows(t Tables) error {
	switch {
	case len(t.Weather) == 0:
		return fmt.Errorf("%w: weather", ErrEmptyTable)
	case len(t.Sensor) == 0:
		return fmt.Errorf("%w: sensor", ErrEmptyTable)
	case len(t.Social) == 0:
		return fmt.Errorf("%w: social", ErrEmptyTable)
	}
	return nil
}

func filterCity(readings []WeatherReading, city string) []WeatherReading {
	out := make([]WeatherReading, 0, len(readings))
	for _, r := range readings {
		if r.City == city {
			out = append(out, r)
		}
	}
	return out
}

// alignPositional truncates every table to the shortest length.
func alignPositional(t Tables) []alignedRow {
	n := min(len(t.Weather), len(t.Sensor), len(t.Social))
	rows := make([]alignedRow, n)
	for i := range n {
		rows[i] = alignedRow{weather: t.Weather[i], sensor: t.Sensor[i], social: t.Social[i]}
	}
	return rows
}

// alignNearest anchors on sensor readings and pairs each with the closest
// weather and social rows within tolerance. Ties go to the earlier row.
func alignNearest(t Tables, tolerance time.Duration) []alignedRow {
	rows := make([]alignedRow, 0, len(t.Sensor))
	for _, s := range t.Sensor {
		wi := nearest(len(t.Weather), func(i int) time.Time { return t.Weather[i].Timestamp }, s.Timestamp, tolerance)
		si := nearest(len(t.Social), func(i int) time.Time { return t.Social[i].Timestamp }, s.Timestamp, tolerance)
		if wi < 0 || si < 0 {
			continue
		}
		rows = append(rows, alignedRow{weather: t.Weather[wi], sensor: s, social: t.Social[si]})
	}
	return rows
}

func nearest(n int, at func(int) time.Time, anchor time.Time, tolerance time.Duration) int {
	best := -1
	var bestGap time.Duration
	for i := range n {
		gap := at(i).Sub(anchor)
		if gap < 0 {
			gap = -gap
		}
		if gap > tolerance {
			continue
		}
		if best < 0 || gap < bestGap {
			best, bestGap = i, gap
		}
	}
	return best
}

func flagAnomalies(samples []StressSample, opts TransformOptions) error {
	features := make([][]float64, len(samples))
	for i, s := range samples {
		features[i] = []float64{float64(s.AirQualityIndex), s.NoiseLevel, s.SentimentFactor}
	}

	flags, err := anomaly.Detect(features, anomaly.Options{
		Contamination: opts.Contamination,
		Seed:          opts.Seed,
	})
	if err != nil {
		return fmt.Errorf("detect anomalies: %w", err)
	}

	for i, outlier := range flags {
		samples[i].Anomaly = FlagNormal
		if outlier {
			samples[i].Anomaly = FlagAnomaly
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
