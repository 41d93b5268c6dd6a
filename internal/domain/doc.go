// Package domain models the Urban Pulse readings and computes the derived
// urban stress index.
//
// # Data Sources
//
// Three raw tables are populated independently on every pipeline run:
//
//	weather  one row per configured city, fetched from OpenWeatherMap in metric units
//	sensor   one synthetic air-quality/noise reading (see package sensor)
//	social   one classified row per sample text
//
// Because the tables grow at different rates they usually have different
// lengths, and nothing guarantees that row i of one table describes the same
// moment as row i of another.
//
// # Alignment
//
// The default policy is positional: n = min(len(weather), len(sensor), len(social))
// and each table is truncated to its first n rows. This is a simplification,
// not a join. Callers that care about locality set TransformOptions.City so the
// weather table is filtered before alignment.
//
// The nearest policy anchors on sensor rows and pairs each with the weather
// and social rows closest in time, inside a tolerance window. Anchors without
// a partner in both tables are dropped.
//
// # Index
//
//	aqi_n    = air_quality_index / 200
//	noise_n  = noise_level / 100
//	urban_stress_index = 0.4*aqi_n + 0.3*noise_n + 0.3*(1 - sentiment_factor)
//
// The classifier score is the confidence of its label, not a polarity, so the
// sentiment factor is the score for POSITIVE and 1-score for NEGATIVE, clamped
// to [0, 1]. See [SentimentFactor].
//
// # Anomalies
//
// When enabled, an isolation forest is refit over (air_quality_index,
// noise_level, sentiment_factor) on every call and the top contamination share
// of rows is flagged Anomaly.
package domain
