package gecko

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

type poolsResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Address string `json:"address"`
		} `json:"attributes"`
	} `json:"data"`
}

// TokenPools returns the pool addresses trading token on network, in provider
// order (most relevant first). Returns ErrNoPools when the token has none.
func (c *Client) TokenPools(ctx context.Context, network, token string) ([]string, error) {
	path := fmt.Sprintf("/networks/%s/tokens/%s/pools", url.PathEscape(network), url.PathEscape(token))
	query := url.Values{"page": {"1"}}

	var resp poolsResponse
	if err := c.get(ctx, "token_pools", path, query, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoPools
		}
		return nil, fmt.Errorf("token pools %s/%s: %w", network, token, err)
	}

	pools := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.Attributes.Address != "" {
			pools = append(pools, d.Attributes.Address)
		}
	}
	if len(pools) == 0 {
		return nil, ErrNoPools
	}
	return pools, nil
}
