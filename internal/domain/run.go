package domain

import "time"

// RunStatus is the lifecycle state of a pipeline invocation.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run records one pipeline invocation in the run ledger.
type Run struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	Status      RunStatus `json:"status"`
	WeatherRows int       `json:"weather_rows"`
	SensorRows  int       `json:"sensor_rows"`
	SocialRows  int       `json:"social_rows"`
	StressRows  int       `json:"stress_rows"`
	Error       string    `json:"error,omitempty"`
}

// SweepResult counts rows removed per raw table by the retention sweep.
type SweepResult struct {
	Weather int64 `json:"weather"`
	Sensor  int64 `json:"sensor"`
	Social  int64 `json:"social"`
}

// Total is the number of rows removed across all tables.
func (r SweepResult) Total() int64 { return r.Weather + r.Sensor + r.Social }
