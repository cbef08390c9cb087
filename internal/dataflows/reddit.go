package dataflows

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultRedditBaseURL = "https://www.reddit.com"

// DefaultSubreddits are searched for ticker mentions.
var DefaultSubreddits = []string{"wallstreetbets", "stocks", "investing"}

// RedditClient handles Reddit API operations
type RedditClient struct {
	client     *resty.Client
	subreddits []string
}

// NewRedditClient creates a new Reddit client
func NewRedditClient(baseURL, userAgent string, timeout time.Duration) *RedditClient {
	if baseURL == "" {
		baseURL = DefaultRedditBaseURL
	}
	if userAgent == "" {
		userAgent = "ArenaGo/1.0"
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", userAgent)

	return &RedditClient{client: client, subreddits: DefaultSubreddits}
}

// HypeScore searches the last day of posts for the ticker and folds
// mention count and engagement into a 0..100 score.
func (rc *RedditClient) HypeScore(ctx context.Context, symbol string) (float64, error) {
	symbol = NormalizeSymbol(symbol)
	mention := regexp.MustCompile(`(?i)(^|[^A-Za-z])\$?` + regexp.QuoteMeta(symbol) + `([^A-Za-z]|$)`)

	var posts []RedditPostData
	var lastErr error
	for _, sub := range rc.subreddits {
		var out RedditResponse
		resp, err := rc.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"q":           symbol,
				"restrict_sr": "1",
				"sort":        "new",
				"t":           "day",
				"limit":       "100",
			}).
			SetResult(&out).
			ForceContentType("application/json").
			Get(fmt.Sprintf("/r/%s/search.json", sub))
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode() != 200 {
			lastErr = fmt.Errorf("reddit r/%s: status %d", sub, resp.StatusCode())
			continue
		}
		for _, child := range out.Data.Children {
			posts = append(posts, child.Data)
		}
	}
	if len(posts) == 0 && lastErr != nil {
		return 0, lastErr
	}
	return hypeFromPosts(posts, mention), nil
}

func hypeFromPosts(posts []RedditPostData, mention *regexp.Regexp) float64 {
	mentions := 0
	engagement := 0
	for _, p := range posts {
		if p.Stickied {
			continue
		}
		if !mention.MatchString(p.Title) && !mention.MatchString(p.Selftext) {
			continue
		}
		mentions++
		engagement += max(p.Score, 0) + p.NumComments
	}
	if mentions == 0 {
		return 0
	}
	// 4 points per mention, plus up to ~40 from log-scaled engagement.
	score := float64(mentions)*4 + math.Log10(1+float64(engagement))*10
	return math.Round(math.Min(100, score)*100) / 100
}
