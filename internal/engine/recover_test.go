package engine_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/pyrabot/internal/broker"
	"github.com/web3guy0/pyrabot/internal/chain"
	"github.com/web3guy0/pyrabot/internal/engine"
	"github.com/web3guy0/pyrabot/internal/feed"
	"github.com/web3guy0/pyrabot/internal/risk"
	"github.com/web3guy0/pyrabot/internal/types"
)

// restart builds a fresh engine over the harness's existing store and
// broker, as process startup would.
func (h *harness) restart() *engine.Engine {
	return engine.New(h.cfg, h.store, h.sim, feed.Direct{Client: h.sim}, broker.NewPipCalculator(h.cfg.Symbols, 0.01), risk.NewPolicy(h.cfg), h.ledger, h.notes)
}

func TestRecoverRebuildsActiveChain(t *testing.T) {
	h := newHarness(t)
	c, err := h.eng.CreateChain(h.seedTrade())
	require.NoError(t, err)

	// Advance one level so recovery has real progress to restore.
	h.sim.SetPrice("XAUUSD", decimal.NewFromFloat(2002.0))
	require.NoError(t, h.eng.Tick(context.Background(), c.ChainID, h.openTrades(t)))
	require.Equal(t, 1, c.CurrentLevel)

	fresh := h.restart()
	n, err := fresh.Recover(h.openTrades(t))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := fresh.Chain(c.ChainID)
	require.True(t, ok)
	assert.Equal(t, 1, got.CurrentLevel)
	assert.Equal(t, chain.StatusActive, got.Status)
	assert.True(t, decimal.NewFromInt(10).Equal(got.TotalProfit))
	assert.ElementsMatch(t, c.ActiveOrders, got.ActiveOrders)

	// The creation-time schedule came back with the row.
	assert.Equal(t, 4, got.Schedule.MaxLevel())
	assert.True(t, decimal.NewFromInt(20).Equal(got.Schedule.Target(1)))

	// The recovered chain keeps climbing.
	h.sim.SetPrice("XAUUSD", decimal.NewFromFloat(2050.0))
	require.NoError(t, fresh.Tick(context.Background(), c.ChainID, h.openTrades(t)))
	assert.Equal(t, 2, got.CurrentLevel)
}

func TestRecoverSkipsTerminalChains(t *testing.T) {
	h := newHarness(t)
	c, err := h.eng.CreateChain(h.seedTrade())
	require.NoError(t, err)
	require.NoError(t, h.eng.Stop(c.ChainID, "shutdown"))

	fresh := h.restart()
	n, err := fresh.Recover(h.openTrades(t))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, ok := fresh.Chain(c.ChainID)
	assert.False(t, ok)
}

func TestRecoverClearsOrphans(t *testing.T) {
	h := newHarness(t)
	c, err := h.eng.CreateChain(h.seedTrade())
	require.NoError(t, err)

	// A live order tagged with a chain that never reached storage.
	orphan := h.seedTrade()
	orphan.ChainID = "PROFIT_XAUUSD_deadbeef"
	orphan.ProfitLevel = 2

	fresh := h.restart()
	trades := h.openTrades(t)
	n, err := fresh.Recover(trades)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The orphan lost its tag; the broker order itself is untouched.
	var orphanView *types.Trade
	for _, tr := range trades {
		if tr.TradeID == orphan.TradeID {
			orphanView = tr
		}
	}
	require.NotNil(t, orphanView)
	assert.Empty(t, orphanView.ChainID)
	assert.Equal(t, 0, orphanView.ProfitLevel)
	assert.Len(t, h.openTrades(t), 2)

	// The legitimate chain kept its membership.
	got, ok := fresh.Chain(c.ChainID)
	require.True(t, ok)
	assert.Len(t, got.ActiveOrders, 1)
}
