// Package edc pulls validated clinical records from the data capture
// collaborator. The collaborator owns the capture UI and its REST
// transport; this client only consumes the export interface.
package edc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/diagnoml/platform/pkg/common/config"
	"github.com/diagnoml/platform/pkg/common/models"
)

type Client struct {
	baseURL    string
	studyOID   string
	httpClient *http.Client
}

// NewClient authenticates with OAuth2 client credentials when configured;
// without credentials it falls back to a plain client for development
// against the lab mock.
func NewClient(cfg *config.Config) *Client {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	if cfg.EDCClientID != "" {
		tokenURL := cfg.EDCTokenURL
		if tokenURL == "" {
			tokenURL = cfg.EDCBaseURL + "/oauth/token"
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.EDCClientID,
			ClientSecret: cfg.EDCClientSecret,
			TokenURL:     tokenURL,
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.EDCBaseURL,
		studyOID:   cfg.EDCStudyOID,
		httpClient: httpClient,
	}
}

// FetchValidatedRecords returns raw records validated since the given
// time, oldest first.
func (c *Client) FetchValidatedRecords(ctx context.Context, since time.Time) ([]models.RawRecord, error) {
	endpoint := fmt.Sprintf("%s/api/v1/studies/%s/records", c.baseURL, url.PathEscape(c.studyOID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching records from EDC: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("EDC returned status %d", resp.StatusCode)
	}

	var payload struct {
		Records []models.RawRecord `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding EDC response: %w", err)
	}
	return payload.Records, nil
}
