package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/autopilot-ops/extraction-store/internal/config"
	"github.com/autopilot-ops/extraction-store/internal/extraction"
)

// Client talks to the external extraction service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	log        *logrus.Entry
}

type extractResponse struct {
	Result       json.RawMessage `json:"result"`
	Confidence   *float64        `json:"confidence"`
	Success      bool            `json:"success"`
	LatencyMs    int64           `json:"latency_ms"`
	ErrorMessage string          `json:"error_message"`
}

type loggingTransport struct {
	log *logrus.Entry
}

func NewClient(logger *logrus.Logger, cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   120 * time.Second,
			Transport: &loggingTransport{log: logger.WithField("component", "extractor_transport")},
		},
		baseURL: cfg.ExtractorURL,
		token:   cfg.ExtractorToken,
		log:     logger.WithField("component", "extractor_client"),
	}
}

func (c *Client) ComputeExtraction(ctx context.Context, content []byte) (*extraction.Outcome, error) {
	url := fmt.Sprintf("%s/api/v1/extract", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", "ExtractionStore/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Error("Extract request failed")
		return nil, fmt.Errorf("extract request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.WithField("status_code", resp.StatusCode).Error("Extraction service returned an error")
		return nil, fmt.Errorf("extraction service returned status %d", resp.StatusCode)
	}

	var body extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.WithError(err).Error("Failed to decode extract response")
		return nil, fmt.Errorf("failed to decode extract response: %w", err)
	}

	return &extraction.Outcome{
		Result:       body.Result,
		Confidence:   body.Confidence,
		Success:      body.Success,
		LatencyMs:    body.LatencyMs,
		ErrorMessage: body.ErrorMessage,
	}, nil
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	log := t.log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		log.WithError(err).Error("HTTP request failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}
