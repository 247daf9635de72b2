package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gomirror/internal/domain"
	"github.com/betbot/gomirror/pkg/sdk/api"
)

type fakePlacer struct {
	lastToken string
	lastSide  api.Side
	lastSize  float64
	lastPrice float64
	lastNeg   bool
	calls     int

	resp *api.OrderResponse
	err  error
}

func (f *fakePlacer) PlaceOrderFAK(ctx context.Context, tokenID string, side api.Side, size, price float64, negRisk bool) (*api.OrderResponse, error) {
	f.calls++
	f.lastToken, f.lastSide, f.lastSize, f.lastPrice, f.lastNeg = tokenID, side, size, price, negRisk
	return f.resp, f.err
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func okResp() *api.OrderResponse {
	return &api.OrderResponse{Success: true, OrderID: "order-1", Status: "matched"}
}

func trade() domain.Trade {
	return domain.Trade{
		ID:      "0xabc:42",
		Source:  domain.SourceEvent,
		Side:    domain.SideBuy,
		TokenID: "42",
		Price:   0.4565,
		Size:    10.0,
	}
}

func TestExecuteNormalizesPriceAndSize(t *testing.T) {
	placer := &fakePlacer{resp: okResp()}
	m := New(placer, Config{SizeMultiplier: 1.0}, quietLog())

	res, err := m.Execute(context.Background(), trade())
	require.NoError(t, err)

	// 0.4565 snaps half-up to the 0.457 tick.
	assert.Equal(t, 0.457, placer.lastPrice)
	assert.Equal(t, 10.0, placer.lastSize)
	assert.Equal(t, "order-1", res.OrderID)
	assert.NotEmpty(t, res.AttemptID)
}

func TestExecuteClampsPriceBand(t *testing.T) {
	placer := &fakePlacer{resp: okResp()}
	m := New(placer, Config{}, quietLog())

	tr := trade()
	tr.Price = 0.0004
	_, err := m.Execute(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, 0.01, placer.lastPrice)

	tr.Price = 0.9999
	_, err = m.Execute(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, 0.99, placer.lastPrice)
}

func TestExecuteAppliesMultiplierAndMinimum(t *testing.T) {
	placer := &fakePlacer{resp: okResp()}
	m := New(placer, Config{SizeMultiplier: 0.1, MinOrderUSDC: 1.0}, quietLog())

	tr := trade()
	tr.Price = 0.5
	tr.Size = 4.0 // 0.4 tokens after multiplier = $0.20, below the minimum
	_, err := m.Execute(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, 2.0, placer.lastSize) // $1 / 0.50
}

func TestExecuteCapsNotional(t *testing.T) {
	placer := &fakePlacer{resp: okResp()}
	m := New(placer, Config{MaxOrderUSDC: 5.0}, quietLog())

	tr := trade()
	tr.Price = 0.5
	tr.Size = 100.0
	_, err := m.Execute(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, 10.0, placer.lastSize) // $5 / 0.50
}

func TestExecuteRejectsUnknownSide(t *testing.T) {
	placer := &fakePlacer{resp: okResp()}
	m := New(placer, Config{}, quietLog())

	tr := trade()
	tr.Side = domain.SideUnknown
	_, err := m.Execute(context.Background(), tr)
	require.Error(t, err)
	assert.Zero(t, placer.calls, "no order may be sent for an unknown side")
}

func TestExecuteRejectsInvalidTrades(t *testing.T) {
	placer := &fakePlacer{resp: okResp()}
	m := New(placer, Config{}, quietLog())

	for name, mut := range map[string]func(*domain.Trade){
		"no token":      func(tr *domain.Trade) { tr.TokenID = "" },
		"sentinel":      func(tr *domain.Trade) { tr.TokenID = domain.SentinelAssetID },
		"zero size":     func(tr *domain.Trade) { tr.Size = 0 },
		"zero price":    func(tr *domain.Trade) { tr.Price = 0 },
		"negative size": func(tr *domain.Trade) { tr.Size = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			tr := trade()
			mut(&tr)
			_, err := m.Execute(context.Background(), tr)
			require.Error(t, err)
		})
	}
	assert.Zero(t, placer.calls)
}

func TestExecuteSubmissionFailureSurfaces(t *testing.T) {
	placer := &fakePlacer{err: errors.New("connection reset")}
	m := New(placer, Config{}, quietLog())

	_, err := m.Execute(context.Background(), trade())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestExecuteRejectionWithoutSuccessFlag(t *testing.T) {
	placer := &fakePlacer{resp: &api.OrderResponse{Success: false, ErrorMsg: "not enough balance"}}
	m := New(placer, Config{}, quietLog())

	_, err := m.Execute(context.Background(), trade())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough balance")
}

func TestExecuteDryRun(t *testing.T) {
	placer := &fakePlacer{}
	m := New(placer, Config{DryRun: true}, quietLog())

	res, err := m.Execute(context.Background(), trade())
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Zero(t, placer.calls)
}

func TestExecutePassesNegRisk(t *testing.T) {
	placer := &fakePlacer{resp: okResp()}
	m := New(placer, Config{}, quietLog())

	tr := trade()
	tr.NegRisk = true
	_, err := m.Execute(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, placer.lastNeg)
}
