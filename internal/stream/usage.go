package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/poe-chat/chatd/internal/store"
)

type pointsHistory struct {
	Data []struct {
		CostPoints   float64 `json:"cost_points"`
		AppName      string  `json:"app_name"`
		CreationTime int64   `json:"creation_time"` // microseconds
	} `json:"data"`
}

// FetchUsage returns the most recent usage entry of the primary backend.
// A nil result with a nil error means no usage is available.
func FetchUsage(ctx context.Context, cfg Config) (*store.UsageMetadata, error) {
	if cfg.PrimaryKey == "" || cfg.UsageURL == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.UsageURL+"?limit=10", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.PrimaryKey)

	resp, err := cfg.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch usage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}

	var history pointsHistory
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("failed to decode usage: %w", err)
	}
	if len(history.Data) == 0 {
		return nil, nil
	}

	latest := history.Data[0]
	return &store.UsageMetadata{
		Points:    latest.CostPoints,
		AppName:   latest.AppName,
		Timestamp: latest.CreationTime / 1000,
	}, nil
}
