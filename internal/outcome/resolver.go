// Package outcome resolves outcome token ids to human-readable market
// metadata. Resolution is best effort: a trade is mirrored whether or not
// its label could be found.
package outcome

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/gomirror/internal/domain"
	"github.com/betbot/gomirror/pkg/sdk/api"
)

// gammaClient is the slice of api.Client the resolver needs.
type gammaClient interface {
	GetMarketByToken(ctx context.Context, tokenID string) (*api.GammaMarket, error)
}

// clobClient covers the CLOB lookups used by the fallback stages.
type clobClient interface {
	GetMarket(ctx context.Context, conditionID string) (*api.MarketInfo, error)
	GetOrderBook(ctx context.Context, tokenID string) (*api.OrderBook, error)
}

// Resolver caches token metadata for the life of the process. Hits are
// cached forever (labels never change); misses are not cached, so a market
// that appears in gamma later still resolves.
type Resolver struct {
	gamma gammaClient
	clob  clobClient
	log   *logrus.Logger

	mu    sync.RWMutex
	cache map[string]*api.TokenInfo
}

func NewResolver(gamma gammaClient, clob clobClient, log *logrus.Logger) *Resolver {
	return &Resolver{
		gamma: gamma,
		clob:  clob,
		log:   log,
		cache: make(map[string]*api.TokenInfo),
	}
}

// Resolve returns the token's market metadata, or ok=false when every
// lookup stage fails. It never returns an error: enrichment must not block
// mirroring.
func (r *Resolver) Resolve(ctx context.Context, tokenID string) (*api.TokenInfo, bool) {
	if tokenID == "" || tokenID == domain.SentinelAssetID {
		return nil, false
	}

	r.mu.RLock()
	if info, ok := r.cache[tokenID]; ok {
		r.mu.RUnlock()
		return info, true
	}
	r.mu.RUnlock()

	info := r.lookup(ctx, tokenID)
	if info == nil {
		return nil, false
	}

	r.mu.Lock()
	r.cache[tokenID] = info
	r.mu.Unlock()
	return info, true
}

// lookup walks the stages: gamma by token id, then CLOB market detail for
// a missing label, then the order book's market pointer when gamma has no
// record at all.
func (r *Resolver) lookup(ctx context.Context, tokenID string) *api.TokenInfo {
	market, err := r.gamma.GetMarketByToken(ctx, tokenID)
	if err == nil {
		info := api.TokenInfoFromGamma(market, tokenID)
		if info.Outcome == "" && info.ConditionID != "" {
			r.fillFromClobMarket(ctx, info, tokenID)
		}
		return info
	}
	r.log.Debugf("[outcome] gamma lookup failed for token %s: %v", shortToken(tokenID), err)

	book, err := r.clob.GetOrderBook(ctx, tokenID)
	if err != nil || book.Market == "" {
		r.log.Debugf("[outcome] book lookup failed for token %s: %v", shortToken(tokenID), err)
		return nil
	}

	info := &api.TokenInfo{TokenID: tokenID, ConditionID: book.Market}
	r.fillFromClobMarket(ctx, info, tokenID)
	if info.Outcome == "" && info.Title == "" {
		return nil
	}
	return info
}

func (r *Resolver) fillFromClobMarket(ctx context.Context, info *api.TokenInfo, tokenID string) {
	market, err := r.clob.GetMarket(ctx, info.ConditionID)
	if err != nil {
		r.log.Debugf("[outcome] clob market lookup failed for %s: %v", info.ConditionID, err)
		return
	}

	if info.Title == "" {
		info.Title = market.Question
	}
	if info.Slug == "" {
		info.Slug = market.MarketSlug
	}
	info.NegRisk = info.NegRisk || market.NegRisk
	for _, tok := range market.Tokens {
		if tok.TokenID == tokenID {
			info.Outcome = tok.Outcome
			return
		}
	}
}

func shortToken(tokenID string) string {
	if len(tokenID) <= 12 {
		return tokenID
	}
	return tokenID[:12] + ".."
}
