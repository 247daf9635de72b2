package feed

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/gomirror/internal/dedup"
	"github.com/betbot/gomirror/internal/domain"
	"github.com/betbot/gomirror/internal/metrics"
	"github.com/betbot/gomirror/pkg/sdk/api"
)

// ActivityClient is the slice of api.Client the poller needs.
type ActivityClient interface {
	GetActivity(ctx context.Context, q api.ActivityQuery) ([]api.Activity, error)
}

// Poller fetches the target's recent activity on a fixed cadence and emits
// trades the event stream has not already claimed. It is the fallback path
// when the websocket is down or the node drops a log.
type Poller struct {
	client    ActivityClient
	ledger    *dedup.Ledger
	target    string
	limit     int
	interval  time.Duration
	tolerance time.Duration
	onTrade   func(domain.Trade)
	log       *logrus.Logger

	// watermark is the newest activity timestamp already processed. It is
	// anchored by the first successful fetch, whose page is treated as
	// backlog; after that, entries older than watermark-tolerance are
	// recorded but not mirrored, so a backfilled page cannot replay
	// history.
	watermark time.Time
}

type PollerConfig struct {
	Target    string
	Limit     int
	Interval  time.Duration
	Tolerance time.Duration
}

func NewPoller(client ActivityClient, ledger *dedup.Ledger, cfg PollerConfig, onTrade func(domain.Trade), log *logrus.Logger) *Poller {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 5 * time.Second
	}
	return &Poller{
		client:    client,
		ledger:    ledger,
		target:    cfg.Target,
		limit:     cfg.Limit,
		interval:  cfg.Interval,
		tolerance: cfg.Tolerance,
		onTrade:   onTrade,
		log:       log,
	}
}

// Run polls until ctx is cancelled. Ticks are serialized: a slow fetch
// delays the next tick rather than overlapping it.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	metrics.PollCycles.Add(1)

	records, err := p.client.GetActivity(ctx, api.ActivityQuery{
		User:  p.target,
		Limit: p.limit,
	})
	if err != nil {
		// Skip the cycle; the next tick retries at the normal cadence.
		metrics.PollErrors.Add(1)
		p.log.Warnf("[poller] activity fetch failed: %v", err)
		return
	}

	if p.watermark.IsZero() {
		// The first page is pre-start backlog, not live flow. Record it
		// and anchor the watermark so history is never replayed as
		// orders.
		p.watermark = time.Now()
		for _, rec := range records {
			if !strings.EqualFold(rec.Type, "TRADE") {
				continue
			}
			p.ledger.Mark(domain.TradeID(rec.TransactionHash, rec.Asset))
			if ts := time.Unix(rec.Timestamp, 0); ts.After(p.watermark) {
				p.watermark = ts
			}
		}
		return
	}

	// Newest first so the watermark advances before older rows are seen.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})

	cutoff := p.watermark.Add(-p.tolerance)
	maxSeen := p.watermark

	for _, rec := range records {
		if !strings.EqualFold(rec.Type, "TRADE") {
			continue
		}
		ts := time.Unix(rec.Timestamp, 0)
		if ts.After(maxSeen) {
			maxSeen = ts
		}

		id := domain.TradeID(rec.TransactionHash, rec.Asset)
		if ts.Before(cutoff) {
			// Too old to act on. Record it so a later page cannot
			// resurrect it once the watermark context is gone.
			p.ledger.Mark(id)
			continue
		}
		if !p.ledger.Admit(id) {
			continue
		}

		p.emit(rec, id, ts)
	}

	p.watermark = maxSeen
}

// emit converts an activity record into a Trade. Poll records already
// carry their market metadata, so no resolver pass is needed.
func (p *Poller) emit(rec api.Activity, id string, ts time.Time) {
	side := domain.SideUnknown
	switch strings.ToUpper(rec.Side) {
	case "BUY":
		side = domain.SideBuy
	case "SELL":
		side = domain.SideSell
	}

	t := domain.Trade{
		ID:          id,
		Source:      domain.SourcePoll,
		Side:        side,
		TokenID:     rec.Asset,
		Price:       rec.Price.Float64(),
		Size:        rec.Size.Float64(),
		UsdcSize:    rec.UsdcSize.Float64(),
		TxHash:      strings.ToLower(rec.TransactionHash),
		ConditionID: rec.ConditionID,
		Title:       rec.Title,
		Outcome:     rec.Outcome,
		Trader:      rec.ProxyWallet,
		Timestamp:   ts,
	}

	if p.onTrade != nil {
		p.onTrade(t)
	}
}
