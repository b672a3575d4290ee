package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/autopilot-ops/extraction-store/internal/config"
)

// Client asks the external workflow integration to create a side effect (a
// ticket) for a freshly extracted result.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	log        *logrus.Entry
}

type ticketResponse struct {
	Key string `json:"key"`
}

func NewClient(logger *logrus.Logger, cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.WorkflowURL,
		token:      cfg.WorkflowToken,
		log:        logger.WithField("component", "workflow_client"),
	}
}

func (c *Client) CreateSideEffect(ctx context.Context, result []byte) (string, error) {
	url := fmt.Sprintf("%s/api/v1/tickets", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(result))
	if err != nil {
		return "", fmt.Errorf("build ticket request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ExtractionStore/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ticket request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("workflow service returned status %d", resp.StatusCode)
	}

	var body ticketResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode ticket response: %w", err)
	}

	c.log.WithField("ticket_key", body.Key).Debug("Created ticket")
	return body.Key, nil
}
