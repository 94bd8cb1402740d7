package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrUnresolved is returned when the service cannot produce a walking
// route between two addresses. Callers score around it rather than
// treating it as fatal.
var ErrUnresolved = errors.New("distance: route unresolved")

// Client resolves walking durations between two addresses.
type Client interface {
	WalkingSeconds(ctx context.Context, origin, destination string) (float64, error)
}

// GoogleClient implements Client against the Distance Matrix API.
type GoogleClient struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

func NewGoogleClient(endpoint, apiKey string) *GoogleClient {
	return &GoogleClient{Endpoint: endpoint, APIKey: apiKey, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

type matrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Duration struct {
				Value float64 `json:"value"`
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}

func (g *GoogleClient) WalkingSeconds(ctx context.Context, origin, destination string) (float64, error) {
	q := url.Values{}
	q.Set("origins", origin)
	q.Set("destinations", destination)
	q.Set("mode", "walking")
	q.Set("key", g.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var out matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Status != "OK" {
		return 0, fmt.Errorf("distance: matrix status %s", out.Status)
	}
	if len(out.Rows) == 0 || len(out.Rows[0].Elements) == 0 {
		return 0, ErrUnresolved
	}
	el := out.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, ErrUnresolved
	}
	return el.Duration.Value, nil
}
