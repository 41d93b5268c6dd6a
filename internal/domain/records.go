package domain

import (
	"encoding/json"
	"time"
)

// Sentiment labels produced by the scorers.
const (
	LabelPositive = "POSITIVE"
	LabelNegative = "NEGATIVE"
)

// AnomalyFlag marks whether a stress sample was isolated as an outlier.
type AnomalyFlag string

const (
	FlagNormal  AnomalyFlag = "Normal"
	FlagAnomaly AnomalyFlag = "Anomaly"
)

// WeatherReading is one observation from the weather provider for a city.
type WeatherReading struct {
	ID          int64           `json:"id,omitempty"`
	City        string          `json:"city"`
	Temperature float64         `json:"temperature"`
	Humidity    float64         `json:"humidity"`
	Description string          `json:"description"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// SensorReading is one synthetic air-quality and noise measurement.
type SensorReading struct {
	ID              int64     `json:"id,omitempty"`
	AirQualityIndex int       `json:"air_quality_index"`
	NoiseLevel      float64   `json:"noise_level"`
	Timestamp       time.Time `json:"timestamp"`
}

// Sentiment is a classifier verdict for a single text.
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"` // confidence of Label, 0.0–1.0
}

// SocialRecord is a classified social-media snippet.
type SocialRecord struct {
	ID        int64     `json:"id,omitempty"`
	Text      string    `json:"text"`
	Label     string    `json:"label"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSocialRecord pairs a text with its sentiment, stamped with ingestion time.
func NewSocialRecord(text string, s Sentiment) SocialRecord {
	return SocialRecord{
		Text:      text,
		Label:     s.Label,
		Score:     s.Score,
		Timestamp: Now(),
	}
}

// StressSample is one aligned row of the derived urban stress table.
type StressSample struct {
	Timestamp        time.Time   `json:"timestamp"`
	City             string      `json:"city"`
	Temperature      float64     `json:"temperature"`
	Humidity         float64     `json:"humidity"`
	AirQualityIndex  int         `json:"air_quality_index"`
	NoiseLevel       float64     `json:"noise_level"`
	SentimentFactor  float64     `json:"sentiment_factor"`
	UrbanStressIndex float64     `json:"urban_stress_index"`
	Anomaly          AnomalyFlag `json:"anomaly,omitempty"`
}

// Tables holds the three raw tables read back from the store.
type Tables struct {
	Weather []WeatherReading
	Sensor  []SensorReading
	Social  []SocialRecord
}
