package openweather

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
	"github.com/couchcryptid/urban-pulse-etl/internal/observability"
)

const (
	testKey           = "test-key"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
	torontoBody       = `{"name":"Toronto","main":{"temp":21.4,"humidity":63},"weather":[{"description":"scattered clouds"}]}`
)

func testClient(baseURL string, timeout time.Duration) *Client {
	return NewClient(Options{
		APIKey:  testKey,
		BaseURL: baseURL,
		Timeout: timeout,
	}, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_FetchWeather_Success(t *testing.T) {
	now := time.Date(2025, time.May, 5, 9, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2.5/weather", r.URL.Path)
		assert.Equal(t, "Toronto", r.URL.Query().Get("q"))
		assert.Equal(t, testKey, r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(torontoBody))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	reading, err := c.FetchWeather(context.Background(), "Toronto")
	require.NoError(t, err)

	assert.Equal(t, "Toronto", reading.City)
	assert.InDelta(t, 21.4, reading.Temperature, 1e-9)
	assert.InDelta(t, 63, reading.Humidity, 1e-9)
	assert.Equal(t, "scattered clouds", reading.Description)
	assert.JSONEq(t, torontoBody, string(reading.RawPayload))
	assert.Equal(t, now, reading.Timestamp)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.WeatherRequests.WithLabelValues("success")), 1e-9)
}

func TestClient_FetchWeather_CityEscaped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "São Paulo,BR", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"main":{"temp":25,"humidity":70},"weather":[]}`))
	}))
	defer srv.Close()

	reading, err := testClient(srv.URL, 5*time.Second).FetchWeather(context.Background(), "São Paulo,BR")
	require.NoError(t, err)
	assert.Empty(t, reading.Description)
}

func TestClient_FetchWeather_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"cod":401,"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	_, err := c.FetchWeather(context.Background(), "Toronto")
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Toronto")
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.WeatherRequests.WithLabelValues("error")), 1e-9)
}

func TestClient_FetchWeather_CityNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 5*time.Second).FetchWeather(context.Background(), "Atlantis")
	require.ErrorIs(t, err, ErrFetchFailed)
}

func TestClient_FetchWeather_MissingMain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"weather":[{"description":"haze"}]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 5*time.Second).FetchWeather(context.Background(), "Toronto")
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "main")
}

func TestClient_FetchWeather_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 5*time.Second).FetchWeather(context.Background(), "Toronto")
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "decode")
}

func TestClient_FetchWeather_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 50*time.Millisecond).FetchWeather(context.Background(), "Toronto")
	require.ErrorIs(t, err, ErrFetchFailed)
}

func TestClient_FetchWeather_CancelledWhileRateLimited(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:0", RequestsPerMinute: 1},
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	// Drain the single burst token so the next call must wait a full minute.
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchWeather(ctx, "Toronto")
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "rate limit")
}
