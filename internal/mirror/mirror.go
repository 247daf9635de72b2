// Package mirror turns detected trades into CLOB orders.
package mirror

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gomirror/internal/domain"
	"github.com/betbot/gomirror/pkg/sdk/api"
)

// Tradable price band of the exchange. Prices snap to the 0.001 tick
// before clamping.
var (
	minPrice = decimal.NewFromFloat(0.01)
	maxPrice = decimal.NewFromFloat(0.99)
)

// orderPlacer is the slice of the CLOB client the mirror uses.
type orderPlacer interface {
	PlaceOrderFAK(ctx context.Context, tokenID string, side api.Side, size, price float64, negRisk bool) (*api.OrderResponse, error)
}

// Config shapes mirrored orders.
type Config struct {
	SizeMultiplier float64
	MinOrderUSDC   float64
	MaxOrderUSDC   float64 // 0 disables the cap
	DryRun         bool
}

// Result reports one mirroring attempt.
type Result struct {
	AttemptID string
	OrderID   string
	Status    string
	Price     float64
	Size      float64
	DryRun    bool
}

// Mirror submits fill-and-kill orders replicating the target's trades.
type Mirror struct {
	clob orderPlacer
	cfg  Config
	log  *logrus.Logger
}

func New(clob orderPlacer, cfg Config, log *logrus.Logger) *Mirror {
	if cfg.SizeMultiplier <= 0 {
		cfg.SizeMultiplier = 1.0
	}
	return &Mirror{clob: clob, cfg: cfg, log: log}
}

// Execute validates, normalizes and submits one trade. A failed submission
// is returned as an error and never retried here; the trade is already in
// the dedup ledger, so a retry would need operator intervention anyway.
func (m *Mirror) Execute(ctx context.Context, t domain.Trade) (*Result, error) {
	attemptID := uuid.NewString()
	entry := m.log.WithFields(logrus.Fields{
		"attempt": attemptID,
		"trade":   t.ID,
		"source":  t.Source,
	})

	side, err := orderSide(t.Side)
	if err != nil {
		return nil, err
	}
	if t.TokenID == "" || t.TokenID == domain.SentinelAssetID {
		return nil, fmt.Errorf("trade %s has no token leg", t.ID)
	}
	if t.Size <= 0 || t.Price <= 0 {
		return nil, fmt.Errorf("trade %s has non-positive size %.6f or price %.6f", t.ID, t.Size, t.Price)
	}

	price := normalizePrice(t.Price)
	size := normalizeSize(t.Size * m.cfg.SizeMultiplier)

	// Marketable buys under the exchange minimum are rejected outright,
	// so bump the size to the floor instead of losing the trade.
	if m.cfg.MinOrderUSDC > 0 && side == api.SideBuy {
		usdc := size * price
		if usdc < m.cfg.MinOrderUSDC {
			size = normalizeSizeUp(m.cfg.MinOrderUSDC / price)
			entry.Infof("[mirror] bumped size to %.2f to meet $%.2f minimum", size, m.cfg.MinOrderUSDC)
		}
	}
	if m.cfg.MaxOrderUSDC > 0 {
		if usdc := size * price; usdc > m.cfg.MaxOrderUSDC {
			size = normalizeSize(m.cfg.MaxOrderUSDC / price)
			entry.Infof("[mirror] capped size to %.2f for $%.2f max", size, m.cfg.MaxOrderUSDC)
		}
	}
	if size <= 0 {
		return nil, fmt.Errorf("trade %s normalized to zero size", t.ID)
	}

	entry = entry.WithFields(logrus.Fields{
		"side":  side,
		"token": t.TokenID,
		"price": price,
		"size":  size,
	})

	if m.cfg.DryRun {
		entry.Info("[mirror] dry run, order not sent")
		return &Result{AttemptID: attemptID, Price: price, Size: size, DryRun: true}, nil
	}

	resp, err := m.clob.PlaceOrderFAK(ctx, t.TokenID, side, size, price, t.NegRisk)
	if err != nil {
		entry.Errorf("[mirror] order submission failed: %v", err)
		return nil, fmt.Errorf("submit order for trade %s: %w", t.ID, err)
	}
	if !resp.Success {
		entry.Errorf("[mirror] order rejected: status=%s err=%s", resp.Status, resp.ErrorMsg)
		return nil, fmt.Errorf("order rejected for trade %s: %s", t.ID, resp.ErrorMsg)
	}

	entry.Infof("[mirror] order accepted: id=%s status=%s", resp.OrderID, resp.Status)
	return &Result{
		AttemptID: attemptID,
		OrderID:   resp.OrderID,
		Status:    resp.Status,
		Price:     price,
		Size:      size,
	}, nil
}

func orderSide(side domain.Side) (api.Side, error) {
	switch side {
	case domain.SideBuy:
		return api.SideBuy, nil
	case domain.SideSell:
		return api.SideSell, nil
	default:
		return "", fmt.Errorf("side %q cannot be mirrored", side)
	}
}

// normalizePrice snaps to the 0.001 tick (half-up) and clamps into the
// tradable [0.01, 0.99] band.
func normalizePrice(price float64) float64 {
	p := decimal.NewFromFloat(price).Round(3)
	if p.LessThan(minPrice) {
		p = minPrice
	}
	if p.GreaterThan(maxPrice) {
		p = maxPrice
	}
	out, _ := p.Float64()
	return out
}

// normalizeSize rounds half-up to the 0.01 token step.
func normalizeSize(size float64) float64 {
	out, _ := decimal.NewFromFloat(size).Round(2).Float64()
	return out
}

// normalizeSizeUp rounds up, used when meeting an exchange minimum.
func normalizeSizeUp(size float64) float64 {
	out, _ := decimal.NewFromFloat(size).RoundUp(2).Float64()
	return out
}
