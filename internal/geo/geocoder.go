package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AddressComponent is one structured piece of a geocoded address.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Result is a single geocoding verdict for a free-text address.
type Result struct {
	FormattedAddress  string             `json:"formatted_address"`
	Types             []string           `json:"types"`
	AddressComponents []AddressComponent `json:"address_components"`
	Location          LatLng             `json:"location"`
}

// PostalCode returns the postal_code component, or "" if absent.
func (r *Result) PostalCode() string {
	return r.component("postal_code")
}

// State returns the short administrative_area_level_1 component.
func (r *Result) State() string {
	return r.component("administrative_area_level_1")
}

func (r *Result) component(typ string) string {
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			if t == typ {
				if c.ShortName != "" {
					return c.ShortName
				}
				return c.LongName
			}
		}
	}
	return ""
}

// Client performs forward geocoding against the Google Geocoding API.
type Client struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{Endpoint: endpoint, APIKey: apiKey, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress  string             `json:"formatted_address"`
		Types             []string           `json:"types"`
		AddressComponents []AddressComponent `json:"address_components"`
		Geometry          struct {
			Location LatLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves an address. A nil result with nil error means the
// service found nothing; callers treat that the same as an unusable
// address.
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	switch out.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("geo: geocode status %s", out.Status)
	}
	if len(out.Results) == 0 {
		return nil, nil
	}
	first := out.Results[0]
	return &Result{
		FormattedAddress:  first.FormattedAddress,
		Types:             first.Types,
		AddressComponents: first.AddressComponents,
		Location:          first.Geometry.Location,
	}, nil
}
