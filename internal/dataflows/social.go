package dataflows

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dyike/ArenaGo/internal/logging"
	"github.com/dyike/ArenaGo/internal/models"
)

type hypeSource interface {
	HypeScore(ctx context.Context, symbol string) (float64, error)
}

type bullBearSource interface {
	BullBear(ctx context.Context, symbol string) (float64, float64, error)
}

// SocialClient gathers Reddit and Stocktwits signals. Either source may
// fail on its own; the call errors only when both do.
type SocialClient struct {
	reddit     hypeSource
	stocktwits bullBearSource
	log        *logrus.Entry
}

func NewSocialClient(reddit hypeSource, stocktwits bullBearSource) *SocialClient {
	return &SocialClient{reddit: reddit, stocktwits: stocktwits, log: logging.For("social")}
}

func (s *SocialClient) Signals(ctx context.Context, symbol string) (*models.SocialSignals, error) {
	var (
		wg    sync.WaitGroup
		out   models.SocialSignals
		rErr  error
		stErr error
		hype  float64
		bull  float64
		bear  float64
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if s.reddit == nil {
			rErr = errors.New("reddit disabled")
			return
		}
		hype, rErr = s.reddit.HypeScore(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		if s.stocktwits == nil {
			stErr = errors.New("stocktwits disabled")
			return
		}
		bull, bear, stErr = s.stocktwits.BullBear(ctx, symbol)
	}()
	wg.Wait()

	if rErr == nil {
		out.RedditHype = &hype
	} else {
		s.log.WithError(rErr).WithField("symbol", symbol).Warn("reddit hype unavailable")
	}
	if stErr == nil {
		out.StocktwitsBull = &bull
		out.StocktwitsBear = &bear
	} else {
		s.log.WithError(stErr).WithField("symbol", symbol).Warn("stocktwits unavailable")
	}

	if rErr != nil && stErr != nil {
		return nil, errors.Join(rErr, stErr)
	}
	return &out, nil
}
