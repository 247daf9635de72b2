// Package watcher wires the feeds, dedup ledger, resolver and mirror into
// one pipeline and owns their lifecycle.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/gomirror/internal/dedup"
	"github.com/betbot/gomirror/internal/domain"
	"github.com/betbot/gomirror/internal/feed"
	"github.com/betbot/gomirror/internal/metrics"
	"github.com/betbot/gomirror/internal/mirror"
	"github.com/betbot/gomirror/internal/outcome"
	"github.com/betbot/gomirror/internal/report"
)

// mirrorQueueSize bounds in-flight handoff from the feeds to the single
// submission worker. A burst beyond this is dropped and counted rather
// than fanned out as unbounded concurrent orders.
const mirrorQueueSize = 64

// Config for the watcher pipeline.
type Config struct {
	Target        string
	WSURL         string
	WSBackupURL   string
	PollInterval  time.Duration
	PollLimit     int
	PollTolerance time.Duration
	DedupCapacity int
}

// Watcher owns the shared ledger and both feeds. All state is instance
// scoped so tests can run several watchers side by side.
type Watcher struct {
	cfg      Config
	ledger   *dedup.Ledger
	resolver *outcome.Resolver
	mirror   *mirror.Mirror
	stream   *feed.EventStream
	poller   *feed.Poller
	journal  *report.Writer // nil disables the CSV journal
	log      *logrus.Logger

	queue chan domain.Trade
	wg    sync.WaitGroup
}

// New assembles the pipeline. journal may be nil.
func New(cfg Config, pollClient feed.ActivityClient, resolver *outcome.Resolver, m *mirror.Mirror, journal *report.Writer, log *logrus.Logger) *Watcher {
	w := &Watcher{
		cfg:      cfg,
		ledger:   dedup.New(cfg.DedupCapacity),
		resolver: resolver,
		mirror:   m,
		journal:  journal,
		log:      log,
		queue:    make(chan domain.Trade, mirrorQueueSize),
	}

	w.stream = feed.NewEventStream(cfg.WSURL, cfg.WSBackupURL, cfg.Target, w.handleFill, log)
	w.poller = feed.NewPoller(pollClient, w.ledger, feed.PollerConfig{
		Target:    cfg.Target,
		Limit:     cfg.PollLimit,
		Interval:  cfg.PollInterval,
		Tolerance: cfg.PollTolerance,
	}, w.handleTrade, log)

	return w
}

// Run starts both feeds and the submission worker, and blocks until ctx is
// cancelled and the worker has drained.
func (w *Watcher) Run(ctx context.Context) {
	w.wg.Add(3)

	go func() {
		defer w.wg.Done()
		w.stream.Run(ctx)
	}()
	go func() {
		defer w.wg.Done()
		w.poller.Run(ctx)
	}()
	go func() {
		defer w.wg.Done()
		w.submitLoop(ctx)
	}()

	w.log.Infof("[watcher] mirroring trades of %s", w.cfg.Target)
	w.wg.Wait()
}

// handleFill is the event path: classify, dedup, enrich, enqueue.
func (w *Watcher) handleFill(ev domain.RawFillEvent) {
	t := domain.Classify(ev, w.cfg.Target)

	if t.Side == domain.SideUnknown {
		metrics.TradesUnknownSide.Add(1)
		w.log.Warnf("[watcher] unclassifiable fill in tx %s (maker=%s taker=%s), not mirroring",
			ev.TxHash, ev.MakerAssetID, ev.TakerAssetID)
		return
	}

	// AdmitFill claims the coarse tx:token key for the event path so the
	// poller skips this transaction, and refuses the fill when the poller
	// got there first.
	fineID := domain.FillID(ev.TxHash, ev.LogIndex, t.TokenID)
	if !w.ledger.AdmitFill(fineID, t.ID) {
		metrics.TradesDuplicate.Add(1)
		return
	}

	metrics.TradesDetected.Add(1)
	w.log.Infof("[watcher] event trade: %s %s %.2f @ %.4f (tx %s)",
		t.Side, shortID(t.TokenID), t.Size, t.Price, shortID(t.TxHash))

	w.enrich(&t)
	w.enqueue(t)
}

// handleTrade is the poll path; the poller has already deduped against the
// shared ledger and filtered stale rows.
func (w *Watcher) handleTrade(t domain.Trade) {
	if t.Side == domain.SideUnknown {
		metrics.TradesUnknownSide.Add(1)
		w.log.Warnf("[watcher] activity row with unknown side in tx %s, not mirroring", t.TxHash)
		return
	}

	metrics.TradesDetected.Add(1)
	w.log.Infof("[watcher] poll trade: %s %s %.2f @ %.4f (tx %s)",
		t.Side, shortID(t.TokenID), t.Size, t.Price, shortID(t.TxHash))

	// Poll rows carry title/outcome already; the resolver only fills the
	// neg-risk flag and whatever the record left blank.
	w.enrich(&t)
	w.enqueue(t)
}

// enrich decorates the trade with resolved market metadata. Failures leave
// the trade untouched; labels are nice to have, orders are not.
func (w *Watcher) enrich(t *domain.Trade) {
	info, ok := w.resolver.Resolve(context.Background(), t.TokenID)
	if !ok {
		return
	}
	if t.Title == "" {
		t.Title = info.Title
	}
	if t.Outcome == "" {
		t.Outcome = info.Outcome
	}
	if t.ConditionID == "" {
		t.ConditionID = info.ConditionID
	}
	t.NegRisk = info.NegRisk
}

func (w *Watcher) enqueue(t domain.Trade) {
	select {
	case w.queue <- t:
	default:
		metrics.MirrorQueueDrops.Add(1)
		w.log.Errorf("[watcher] mirror queue full, dropping trade %s", t.ID)
	}
}

// submitLoop is the single bounded consumer placing orders.
func (w *Watcher) submitLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case t := <-w.queue:
			w.submit(ctx, t)
		}
	}
}

// drain gives queued trades one last chance on shutdown, with a fresh
// short-lived context since the run context is already cancelled.
func (w *Watcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		select {
		case t := <-w.queue:
			w.submit(ctx, t)
		default:
			return
		}
	}
}

func (w *Watcher) submit(ctx context.Context, t domain.Trade) {
	res, err := w.mirror.Execute(ctx, t)
	if err != nil {
		metrics.MirrorFailures.Add(1)
		w.log.Errorf("[watcher] mirror failed for trade %s: %v", t.ID, err)
		return
	}

	metrics.TradesMirrored.Add(1)
	if res.DryRun {
		w.log.Infof("[watcher] dry run mirrored trade %s: %.2f @ %.4f", t.ID, res.Size, res.Price)
	} else {
		w.log.Infof("[watcher] mirrored trade %s: order=%s status=%s", t.ID, res.OrderID, res.Status)
	}

	if w.journal != nil {
		t.Price = res.Price
		t.Size = res.Size
		if err := w.journal.Append(t); err != nil {
			w.log.Warnf("[watcher] journal write failed: %v", err)
		}
	}
}

func shortID(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:10]
}
