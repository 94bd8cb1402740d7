package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the Google Translate v2 REST API for language
// detection and translation of conversation turns.
type Client struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{Endpoint: endpoint, APIKey: apiKey, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

type detectResponse struct {
	Data struct {
		Detections [][]struct {
			Language   string  `json:"language"`
			Confidence float64 `json:"confidence"`
		} `json:"detections"`
	} `json:"data"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

// DetectLanguage returns the detected ISO code and the service's
// confidence in it. Callers decide whether the confidence is enough.
func (c *Client) DetectLanguage(ctx context.Context, text string) (string, float64, error) {
	form := url.Values{}
	form.Set("q", text)
	form.Set("key", c.APIKey)

	var out detectResponse
	if err := c.post(ctx, c.Endpoint+"/detect", form, &out); err != nil {
		return "", 0, err
	}
	if len(out.Data.Detections) == 0 || len(out.Data.Detections[0]) == 0 {
		return "", 0, fmt.Errorf("translate: empty detection response")
	}
	d := out.Data.Detections[0][0]
	return d.Language, d.Confidence, nil
}

// Translate renders text into the target language. The service
// auto-detects the source, so an English-to-English call comes back
// unchanged; callers skip the round trip when they know the language.
func (c *Client) Translate(ctx context.Context, text, target string) (string, error) {
	if target == "" {
		return text, nil
	}
	form := url.Values{}
	form.Set("q", text)
	form.Set("target", target)
	form.Set("format", "text")
	form.Set("key", c.APIKey)

	var out translateResponse
	if err := c.post(ctx, c.Endpoint, form, &out); err != nil {
		return "", err
	}
	if len(out.Data.Translations) == 0 {
		return "", fmt.Errorf("translate: empty translation response")
	}
	return out.Data.Translations[0].TranslatedText, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("translate: status %d from %s", resp.StatusCode, endpoint)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
