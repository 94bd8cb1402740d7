package sanitize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// Filter cleans untrusted text before it is echoed into outbound
// messages. Rider-supplied names flow into templated replies, so they
// are filtered even though everything else in the template is ours.
type Filter interface {
	Sanitize(ctx context.Context, text string) string
}

// HTTPFilter calls the PurgoMalum JSON service. Any failure returns
// the input unchanged; sanitization must never block a reply.
type HTTPFilter struct {
	Endpoint string
	HTTP     *http.Client
}

func NewHTTPFilter(endpoint string) *HTTPFilter {
	return &HTTPFilter{Endpoint: endpoint, HTTP: &http.Client{Timeout: 3 * time.Second}}
}

type filterResponse struct {
	Result string `json:"result"`
}

func (f *HTTPFilter) Sanitize(ctx context.Context, text string) string {
	q := url.Values{}
	q.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return text
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return text
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return text
	}
	var out filterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Result == "" {
		return text
	}
	return out.Result
}

// Noop passes text through untouched; used in tests and local runs.
type Noop struct{}

func (Noop) Sanitize(ctx context.Context, text string) string { return text }
