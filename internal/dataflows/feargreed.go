package dataflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dyike/ArenaGo/internal/models"
)

const DefaultFearGreedURL = "https://production.dataviz.cnn.io/index/fearandgreed/graphdata"

// FearGreedClient reads the CNN fear & greed index.
type FearGreedClient struct {
	client *resty.Client
	url    string
}

func NewFearGreedClient(url string, timeout time.Duration) *FearGreedClient {
	if url == "" {
		url = DefaultFearGreedURL
	}
	client := resty.New()
	client.SetTimeout(timeout)
	// the endpoint rejects non-browser agents
	client.SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	return &FearGreedClient{client: client, url: url}
}

func (fg *FearGreedClient) Index(ctx context.Context) (*models.FearGreed, error) {
	var out CNNFearGreed
	resp, err := fg.client.R().SetContext(ctx).SetResult(&out).
		ForceContentType("application/json").
		Get(fg.url)
	if err != nil {
		return nil, fmt.Errorf("fear greed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fear greed: status %d", resp.StatusCode())
	}
	score := out.FearAndGreed.Score
	if score <= 0 || score > 100 {
		return nil, fmt.Errorf("fear greed: %w", ErrNoData)
	}
	label := strings.TrimSpace(out.FearAndGreed.Rating)
	if label == "" {
		label = FearGreedLabel(score)
	}
	return &models.FearGreed{Score: score, Label: label}, nil
}

// FearGreedLabel maps a score to CNN's bands.
func FearGreedLabel(score float64) string {
	switch {
	case score < 25:
		return "extreme fear"
	case score < 45:
		return "fear"
	case score <= 55:
		return "neutral"
	case score <= 75:
		return "greed"
	default:
		return "extreme greed"
	}
}
