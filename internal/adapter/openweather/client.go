// Package openweather fetches current conditions from the OpenWeatherMap API.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
	"github.com/couchcryptid/urban-pulse-etl/internal/observability"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://api.openweathermap.org"

// ErrFetchFailed wraps every failure to obtain a usable reading. Callers treat
// it as a skip, not a fatal error.
var ErrFetchFailed = errors.New("weather fetch failed")

// Client implements the weather fetcher over HTTP.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	geocoder   Geocoder
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Options configures NewClient.
type Options struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int

	// Geocode queries by coordinates resolved through the geocoding API
	// instead of by city name. Resolved cities are cached.
	Geocode          bool
	GeocodeCacheSize int
}

// NewClient creates an OpenWeatherMap client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	c := &Client{
		apiKey: opts.APIKey,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, 1),
		metrics: metrics,
		logger:  logger,
	}
	if opts.Geocode {
		c.geocoder = NewCachedGeocoder(c, opts.GeocodeCacheSize)
	}
	return c
}

// FetchWeather returns the current conditions for city in metric units.
func (c *Client) FetchWeather(ctx context.Context, city string) (domain.WeatherReading, error) {
	params := url.Values{
		"appid": {c.apiKey},
		"units": {"metric"},
	}
	if c.geocoder != nil {
		loc, err := c.geocoder.Geocode(ctx, city)
		if err != nil {
			c.metrics.WeatherRequests.WithLabelValues("error").Inc()
			return domain.WeatherReading{}, fmt.Errorf("%w: %s: %w", ErrFetchFailed, city, err)
		}
		params.Set("lat", formatCoord(loc.Lat))
		params.Set("lon", formatCoord(loc.Lon))
	} else {
		params.Set("q", city)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.WeatherReading{}, fmt.Errorf("%w: %s: rate limit: %w", ErrFetchFailed, city, err)
	}

	u := c.baseURL + "/data/2.5/weather?" + params.Encode()

	start := time.Now()
	reading, err := c.doRequest(ctx, u, city)
	c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		return domain.WeatherReading{}, fmt.Errorf("%w: %s: %w", ErrFetchFailed, city, err)
	}
	c.metrics.WeatherRequests.WithLabelValues("success").Inc()

	c.logger.Debug("weather fetched", "city", city, "temperature", reading.Temperature, "humidity", reading.Humidity)
	return reading, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, city string) (domain.WeatherReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.WeatherReading{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WeatherReading{}, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.WeatherReading{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.WeatherReading{}, fmt.Errorf("openweathermap API error: status %d: %s", resp.StatusCode, body)
	}

	var owm response
	if err := json.Unmarshal(body, &owm); err != nil {
		return domain.WeatherReading{}, fmt.Errorf("decode response: %w", err)
	}
	if owm.Main == nil {
		return domain.WeatherReading{}, errors.New("response has no main section")
	}

	reading := domain.WeatherReading{
		City:        city,
		Temperature: owm.Main.Temp,
		Humidity:    owm.Main.Humidity,
		RawPayload:  json.RawMessage(body),
		Timestamp:   domain.Now(),
	}
	if len(owm.Weather) > 0 {
		reading.Description = owm.Weather[0].Description
	}
	return reading, nil
}

// OpenWeatherMap API response types.

type response struct {
	Main    *mainSection `json:"main"`
	Weather []condition  `json:"weather"`
	Name    string       `json:"name"`
}

type mainSection struct {
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
}

type condition struct {
	Description string `json:"description"`
}
