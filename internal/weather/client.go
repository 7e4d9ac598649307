// Package weather fetches ambient humidity from the OpenWeatherMap API and
// caches the last known value for the sensor sampler.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrNetworkUnavailable is returned when the weather API cannot be reached
// or answers with something unusable.
var ErrNetworkUnavailable = errors.New("weather api unavailable")

// DefaultBaseURL is the OpenWeatherMap current weather endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Client queries current conditions for a city.
type Client struct {
	baseURL string
	city    string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client. timeout bounds every request.
func NewClient(baseURL, city, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		city:    city,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type currentWeather struct {
	Main struct {
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
}

// Humidity returns the current relative humidity in percent.
func (c *Client) Humidity(ctx context.Context) (float64, error) {
	q := url.Values{
		"q":     []string{c.city},
		"appid": []string{c.apiKey},
		"units": []string{"imperial"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrNetworkUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetworkUnavailable, redact(err, c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrNetworkUnavailable, resp.StatusCode)
	}

	var cw currentWeather
	if err := json.NewDecoder(resp.Body).Decode(&cw); err != nil {
		return 0, fmt.Errorf("%w: decode: %v", ErrNetworkUnavailable, err)
	}
	if cw.Main.Humidity == nil {
		return 0, fmt.Errorf("%w: response has no humidity", ErrNetworkUnavailable)
	}
	h := *cw.Main.Humidity
	if h < 0 || h > 100 {
		return 0, fmt.Errorf("%w: humidity %.0f out of range", ErrNetworkUnavailable, h)
	}
	return h, nil
}

// redact keeps the API key out of logged URL errors.
func redact(err error, key string) error {
	var uerr *url.Error
	if key == "" || !errors.As(err, &uerr) {
		return err
	}
	return fmt.Errorf("%s %s: %v", uerr.Op, "<weather api>", uerr.Err)
}
