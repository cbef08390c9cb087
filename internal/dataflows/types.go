package dataflows

// FinnhubQuote is the /quote payload. A zero current price means Finnhub
// does not know the symbol.
type FinnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	PercentChange float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// FinnhubNews represents news from Finnhub API
type FinnhubNews struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Image    string `json:"image"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// FinnhubCandles is the /stock/candle payload; Status is "ok" or "no_data".
type FinnhubCandles struct {
	Close     []float64 `json:"c"`
	High      []float64 `json:"h"`
	Low       []float64 `json:"l"`
	Open      []float64 `json:"o"`
	Volume    []float64 `json:"v"`
	Timestamp []int64   `json:"t"`
	Status    string    `json:"s"`
}

// RedditResponse represents the API response structure
type RedditResponse struct {
	Kind string `json:"kind"`
	Data struct {
		After    string        `json:"after"`
		Children []RedditChild `json:"children"`
		Dist     int           `json:"dist"`
	} `json:"data"`
}

// RedditChild represents a Reddit post wrapper
type RedditChild struct {
	Kind string         `json:"kind"`
	Data RedditPostData `json:"data"`
}

// RedditPostData represents Reddit post data from API
type RedditPostData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Stickied    bool    `json:"stickied"`
}

// StocktwitsStream is the symbol stream payload.
type StocktwitsStream struct {
	Messages []struct {
		ID       int64 `json:"id"`
		Entities struct {
			Sentiment *struct {
				Basic string `json:"basic"`
			} `json:"sentiment"`
		} `json:"entities"`
	} `json:"messages"`
}

// CNNFearGreed is the CNN dataviz fear & greed payload.
type CNNFearGreed struct {
	FearAndGreed struct {
		Score  float64 `json:"score"`
		Rating string  `json:"rating"`
	} `json:"fear_and_greed"`
}
