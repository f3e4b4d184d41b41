package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/forest-guardian/index-composite/internal/properties"
)

const (
	DefaultProcessURL = "https://sh.dataspace.copernicus.eu/api/v1/process"
	maxPixels         = 2500
)

var (
	ErrUnauthorized   = errors.New("unauthorized access, check your client ID and secret")
	ErrMissingSecrets = errors.New("missing required environment variables: COPERNICUS_CLIENT_ID, COPERNICUS_CLIENT_SECRET, or COPERNICUS_TOKEN_URL")
)

const evalscript = `
    //VERSION=3
    function setup() {
      return {
        input: ["B04", "B03", "B08", "B11", "SCL"],
        output: {
          id: "default",
          bands: 5,
          sampleType: SampleType.FLOAT32,
        },
      }
    }

    function evaluatePixel(sample) {
      return [sample.B04, sample.B03, sample.B08, sample.B11, sample.SCL];
    }
  `

type ClientConfig struct {
	ProcessURL    string
	TokenURL      string
	ClientIDs     []string
	ClientSecrets []string
	Retries       int
	RetryDelay    time.Duration
}

// ConfigFromEnv reads the Copernicus credentials from the environment.
func ConfigFromEnv() ClientConfig {
	return ClientConfig{
		ProcessURL:    DefaultProcessURL,
		TokenURL:      properties.CopernicusTokenURL(),
		ClientIDs:     properties.CopernicusClientIDs(),
		ClientSecrets: properties.CopernicusClientSecrets(),
		Retries:       10,
		RetryDelay:    5 * time.Second,
	}
}

func (c ClientConfig) Validate() error {
	if len(c.ClientIDs) == 0 || len(c.ClientSecrets) == 0 || c.TokenURL == "" {
		return ErrMissingSecrets
	}
	if len(c.ClientIDs) != len(c.ClientSecrets) {
		return fmt.Errorf("mismatched number of client IDs and secrets")
	}
	return nil
}

// Client requests Sentinel-2 L2A rasters from the Copernicus process API.
type Client struct {
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ProcessURL == "" {
		cfg.ProcessURL = DefaultProcessURL
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	return &Client{cfg: cfg}, nil
}

func calculatePixels(distance float64, resolution float64) int {
	pixels := distance * (111_000.0 / resolution)
	if pixels < 1 {
		return 1
	}
	if pixels > maxPixels {
		return maxPixels
	}
	return int(pixels)
}

func requestPayload(startDate, endDate time.Time, bound orb.Bound) ([]byte, error) {
	geometry := geojson.NewGeometry(bound.ToPolygon())

	payload := map[string]any{
		"input": map[string]any{
			"bounds": map[string]any{
				"geometry": geometry,
			},
			"data": []map[string]any{
				{
					"dataFilter": map[string]any{
						"timeRange": map[string]string{
							"from": startDate.Format(time.RFC3339),
							"to":   endDate.Format(time.RFC3339),
						},
					},
					"type": "sentinel-2-l2a",
				},
			},
		},
		"output": map[string]any{
			"width":  calculatePixels(bound.Max.X()-bound.Min.X(), 10),
			"height": calculatePixels(bound.Max.Y()-bound.Min.Y(), 10),
			"responses": []map[string]any{
				{
					"identifier": "default",
					"format": map[string]string{
						"type": "image/tiff",
					},
				},
			},
		},
		"evalscript": evalscript,
		"mosaicking": "mostRecent",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}
	return body, nil
}

// RequestImage returns the GeoTIFF covering bound for [startDate, endDate).
// Each client credential pair is tried in turn.
func (c *Client) RequestImage(ctx context.Context, startDate, endDate time.Time, bound orb.Bound) ([]byte, error) {
	body, err := requestPayload(startDate, endDate, bound)
	if err != nil {
		return nil, err
	}

	for i, clientID := range c.cfg.ClientIDs {
		config := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: c.cfg.ClientSecrets[i],
			TokenURL:     c.cfg.TokenURL,
		}
		var content []byte
		content, err = c.post(ctx, config.Client(ctx), body)
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("image request failed", "client", i, "error", err)
	}
	return nil, err
}

func (c *Client) post(ctx context.Context, httpClient *http.Client, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ProcessURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		response, err := httpClient.Do(req)
		if err == nil {
			content, readErr := io.ReadAll(response.Body)
			response.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("failed to read response body: %w", readErr)
			case response.StatusCode == http.StatusOK:
				return content, nil
			case response.StatusCode == http.StatusForbidden:
				return nil, ErrUnauthorized
			default:
				lastErr = fmt.Errorf("status %d: %s", response.StatusCode, content)
			}
		} else {
			lastErr = err
		}

		slog.Debug("image request attempt failed", "attempt", attempt, "error", lastErr)
		if attempt == c.cfg.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
	return nil, fmt.Errorf("failed to request image after %d attempts: %w", c.cfg.Retries, lastErr)
}
