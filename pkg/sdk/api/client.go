package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	sdkhttp "github.com/betbot/gomirror/pkg/sdk/http"
)

// Client talks to the public data-api and gamma-api endpoints. No auth.
type Client struct {
	data  *sdkhttp.Client
	gamma *sdkhttp.Client
}

// ActivityQuery controls /activity requests.
type ActivityQuery struct {
	User   string
	Limit  int
	Offset int
	Types  []string // defaults to TRADE only
}

// NewClient creates a client for the public market data APIs. Base URLs
// can be overridden with POLYMARKET_DATA_API_URL and
// POLYMARKET_GAMMA_API_URL.
func NewClient() *Client {
	dataURL := os.Getenv("POLYMARKET_DATA_API_URL")
	if dataURL == "" {
		dataURL = "https://data-api.polymarket.com"
	}
	gammaURL := os.Getenv("POLYMARKET_GAMMA_API_URL")
	if gammaURL == "" {
		gammaURL = "https://gamma-api.polymarket.com"
	}
	return &Client{
		data:  sdkhttp.NewClient(dataURL),
		gamma: sdkhttp.NewClient(gammaURL),
	}
}

// GetActivity fetches recent account activity from /activity.
func (c *Client) GetActivity(ctx context.Context, q ActivityQuery) ([]Activity, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	params := map[string]any{
		"limit": limit,
	}
	if q.Offset > 0 {
		params["offset"] = q.Offset
	}
	if q.User != "" {
		params["user"] = q.User
	}
	if len(q.Types) > 0 {
		params["type"] = strings.Join(q.Types, ",")
	} else {
		params["type"] = "TRADE"
	}

	var activity []Activity
	if err := c.data.Get(ctx, "/activity", &sdkhttp.RequestOptions{Params: params}, &activity); err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}
	return activity, nil
}

// GetMarketByToken looks up the gamma market that carries tokenID in its
// clob token list.
func (c *Client) GetMarketByToken(ctx context.Context, tokenID string) (*GammaMarket, error) {
	params := map[string]any{"clob_token_ids": tokenID}

	var markets []GammaMarket
	if err := c.gamma.Get(ctx, "/markets", &sdkhttp.RequestOptions{Params: params}, &markets); err != nil {
		return nil, fmt.Errorf("fetch gamma market: %w", err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("no market found for token %s", tokenID)
	}
	return &markets[0], nil
}

// TokenInfoFromGamma resolves the outcome label for tokenID by matching
// its position in the market's token list against the outcomes list.
func TokenInfoFromGamma(market *GammaMarket, tokenID string) *TokenInfo {
	info := &TokenInfo{
		TokenID:     tokenID,
		ConditionID: market.ConditionID,
		Title:       market.Question,
		Slug:        market.Slug,
		NegRisk:     market.NegRisk,
	}

	var outcomes []string
	if err := json.Unmarshal([]byte(market.Outcomes), &outcomes); err != nil {
		return info
	}

	var tokens []string
	if err := json.Unmarshal([]byte(market.ClobTokenIds), &tokens); err != nil {
		tokens = strings.Split(market.ClobTokenIds, ",")
	}

	for idx, id := range tokens {
		if strings.TrimSpace(id) == tokenID && idx < len(outcomes) {
			info.Outcome = outcomes[idx]
			break
		}
	}
	return info
}
