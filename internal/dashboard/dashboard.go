// Package dashboard assembles the stored tables into a read-only view and
// renders it for a terminal or a browser.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

// DefaultBins matches the usual histogram default.
const DefaultBins = 10

// Source is the read side of the store.
type Source interface {
	Weather(ctx context.Context, city string) ([]domain.WeatherReading, error)
	Sensor(ctx context.Context) ([]domain.SensorReading, error)
	Social(ctx context.Context) ([]domain.SocialRecord, error)
	Stress(ctx context.Context) ([]domain.StressSample, error)
}

// Options narrows what Build collects.
type Options struct {
	City    string // restrict weather rows to one city
	MaxRows int    // keep only the newest rows per table; <= 0 keeps all
	Bins    int
}

// Bin is one histogram bucket covering [Lo, Hi). The last bin is closed.
type Bin struct {
	Lo    float64 `json:"lo"`
	Hi    float64 `json:"hi"`
	Count int     `json:"count"`
}

// LabelCount is the number of social rows with a given label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Point is one entry of the stress index time series.
type Point struct {
	Timestamp time.Time          `json:"timestamp"`
	Value     float64            `json:"value"`
	Anomaly   domain.AnomalyFlag `json:"anomaly,omitempty"`
}

// Dashboard is everything the presentation layer shows.
type Dashboard struct {
	GeneratedAt time.Time               `json:"generated_at"`
	City        string                  `json:"city,omitempty"`
	Weather     []domain.WeatherReading `json:"weather"`
	Sensor      []domain.SensorReading  `json:"sensor"`
	Social      []domain.SocialRecord   `json:"social"`
	Stress      []domain.StressSample   `json:"stress"`

	Temperature  []Bin        `json:"temperature_histogram"`
	AirQuality   []Bin        `json:"air_quality_histogram"`
	Sentiment    []LabelCount `json:"sentiment"`
	StressSeries []Point      `json:"stress_series"`
	Anomalies    int          `json:"anomalies"`

	Warnings []string `json:"warnings,omitempty"`
}

// Build reads the four tables and derives the charts. An empty table adds a
// warning; only read failures are errors.
func Build(ctx context.Context, src Source, opts Options) (*Dashboard, error) {
	bins := opts.Bins
	if bins <= 0 {
		bins = DefaultBins
	}

	weather, err := src.Weather(ctx, opts.City)
	if err != nil {
		return nil, fmt.Errorf("read weather: %w", err)
	}
	sensor, err := src.Sensor(ctx)
	if err != nil {
		return nil, fmt.Errorf("read sensor: %w", err)
	}
	social, err := src.Social(ctx)
	if err != nil {
		return nil, fmt.Errorf("read social: %w", err)
	}
	stress, err := src.Stress(ctx)
	if err != nil {
		return nil, fmt.Errorf("read urban_stress: %w", err)
	}

	d := &Dashboard{
		GeneratedAt: domain.Now(),
		City:        opts.City,
		Weather:     newest(weather, opts.MaxRows),
		Sensor:      newest(sensor, opts.MaxRows),
		Social:      newest(social, opts.MaxRows),
		Stress:      newest(stress, opts.MaxRows),
	}

	temps := make([]float64, len(weather))
	for i, w := range weather {
		temps[i] = w.Temperature
	}
	d.Temperature = Histogram(temps, bins)

	aqi := make([]float64, len(sensor))
	for i, s := range sensor {
		aqi[i] = float64(s.AirQualityIndex)
	}
	d.AirQuality = Histogram(aqi, bins)

	d.Sentiment = CountLabels(social)

	d.StressSeries = make([]Point, len(stress))
	for i, s := range stress {
		d.StressSeries[i] = Point{Timestamp: s.Timestamp, Value: s.UrbanStressIndex, Anomaly: s.Anomaly}
		if s.Anomaly == domain.FlagAnomaly {
			d.Anomalies++
		}
	}

	if len(weather) == 0 {
		if opts.City != "" {
			d.Warnings = append(d.Warnings, fmt.Sprintf("no weather data for %s", opts.City))
		} else {
			d.Warnings = append(d.Warnings, "no weather data")
		}
	}
	if len(sensor) == 0 {
		d.Warnings = append(d.Warnings, "no sensor data")
	}
	if len(social) == 0 {
		d.Warnings = append(d.Warnings, "no social data")
	}
	if len(stress) == 0 {
		d.Warnings = append(d.Warnings, "no urban stress data; run the transform step")
	}
	return d, nil
}

// Histogram splits values into equal-width bins between their min and max.
// Equal values share one bin of width 1 centered on them.
func Histogram(values []float64, bins int) []Bin {
	if len(values) == 0 || bins <= 0 {
		return nil
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}

	width := (hi - lo) / float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Lo: lo + float64(i)*width, Hi: lo + float64(i+1)*width}
	}
	out[bins-1].Hi = hi

	for _, v := range values {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}

// CountLabels tallies social rows per label, POSITIVE first then NEGATIVE,
// followed by any other label in order of appearance.
func CountLabels(rows []domain.SocialRecord) []LabelCount {
	counts := map[string]int{}
	order := []string{domain.LabelPositive, domain.LabelNegative}
	for _, r := range rows {
		if _, seen := counts[r.Label]; !seen && r.Label != domain.LabelPositive && r.Label != domain.LabelNegative {
			order = append(order, r.Label)
		}
		counts[r.Label]++
	}

	out := make([]LabelCount, 0, len(order))
	for _, label := range order {
		out = append(out, LabelCount{Label: label, Count: counts[label]})
	}
	return out
}

func newest[T any](rows []T, n int) []T {
	if n <= 0 || len(rows) <= n {
		return rows
	}
	return rows[len(rows)-n:]
}
