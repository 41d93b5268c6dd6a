package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrUnknownCity is returned when the geocoding API has no match for a city.
var ErrUnknownCity = errors.New("unknown city")

// Location is a geocoded city.
type Location struct {
	Name    string  `json:"name"`
	State   string  `json:"state,omitempty"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Geocoder resolves a city name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, city string) (Location, error)
}

// Geocode resolves city with the direct geocoding endpoint, taking the first match.
func (c *Client) Geocode(ctx context.Context, city string) (Location, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Location{}, fmt.Errorf("rate limit: %w", err)
	}

	params := url.Values{
		"q":     {city},
		"limit": {"1"},
		"appid": {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/geo/1.0/direct?"+params.Encode(), nil)
	if err != nil {
		return Location{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Location{}, fmt.Errorf("openweathermap geocoding error: status %d: %s", resp.StatusCode, body)
	}

	var matches []Location
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return Location{}, fmt.Errorf("decode geocoding response: %w", err)
	}
	if len(matches) == 0 {
		return Location{}, fmt.Errorf("%w: %s", ErrUnknownCity, city)
	}

	c.logger.Debug("city geocoded", "city", city, "lat", matches[0].Lat, "lon", matches[0].Lon, "country", matches[0].Country)
	return matches[0], nil
}

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache.
type CachedGeocoder struct {
	inner Geocoder
	cache *lruCache
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner Geocoder, maxEntries int) *CachedGeocoder {
	return &CachedGeocoder{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

// Geocode returns the cached location for city, asking inner on a miss.
// Failures are not cached so a transient error is retried on the next call.
func (c *CachedGeocoder) Geocode(ctx context.Context, city string) (Location, error) {
	key := strings.ToLower(strings.TrimSpace(city))
	if loc, ok := c.cache.get(key); ok {
		return loc, nil
	}
	loc, err := c.inner.Geocode(ctx, city)
	if err != nil {
		return loc, err
	}
	c.cache.put(key, loc)
	return loc, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
