package gecko

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"exit-strategy-lab/internal/normalization"
)

// PageLimit is the most minute bars the provider returns per request.
const PageLimit = 500

type ohlcvResponse struct {
	Data struct {
		Attributes struct {
			OHLCVList []normalization.RawBar `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

// PagesFor returns how many full pages cover lookback.
func PagesFor(lookback time.Duration) int {
	return int(math.Ceil(lookback.Minutes() / PageLimit))
}

// MinuteBars returns up to limit one-minute bars ending before the Unix second
// before, newest first as the provider sends them.
func (c *Client) MinuteBars(ctx context.Context, network, pool string, before int64, limit int) ([]normalization.RawBar, error) {
	if limit <= 0 || limit > PageLimit {
		limit = PageLimit
	}

	path := fmt.Sprintf("/networks/%s/pools/%s/ohlcv/minute", url.PathEscape(network), url.PathEscape(pool))
	query := url.Values{
		"aggregate":        {"1"},
		"limit":            {strconv.Itoa(limit)},
		"before_timestamp": {strconv.FormatInt(before, 10)},
	}

	var resp ohlcvResponse
	if err := c.get(ctx, "ohlcv", path, query, &resp); err != nil {
		return nil, fmt.Errorf("minute bars %s/%s: %w", network, pool, err)
	}
	return resp.Data.Attributes.OHLCVList, nil
}

// FetchSince pages backwards from now until a page reaches cutoff (Unix
// seconds), the provider runs dry, or maxPages pages have been read.
// Each page's cursor is the oldest bar of the previous one; the overlap is
// removed by normalization.
func (c *Client) FetchSince(ctx context.Context, network, pool string, cutoff int64, maxPages int) ([]normalization.RawBar, error) {
	before := c.now().Unix()
	var all []normalization.RawBar

	for page := 0; page < maxPages; page++ {
		if page > 0 && c.pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pause):
			}
		}

		chunk, err := c.MinuteBars(ctx, network, pool, before, PageLimit)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			break
		}
		all = append(all, chunk...)

		oldest := int64(math.MaxInt64)
		for _, raw := range chunk {
			if ts, err := raw.Timestamp(); err == nil && ts < oldest {
				oldest = ts
			}
		}
		if oldest == math.MaxInt64 || oldest <= cutoff {
			break
		}
		before = oldest
	}

	c.logger.Debug("fetched minute bars",
		zap.String("network", network),
		zap.String("pool", pool),
		zap.Int("bars", len(all)),
	)
	return all, nil
}
