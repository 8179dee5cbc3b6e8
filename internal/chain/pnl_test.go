package chain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/pyrabot/internal/chain"
	"github.com/web3guy0/pyrabot/internal/config"
	"github.com/web3guy0/pyrabot/internal/types"
)

type staticFeed map[string]decimal.Decimal

func (f staticFeed) GetPrice(symbol string) decimal.Decimal { return f[symbol] }

func xauSymbols() map[string]config.SymbolConfig {
	return map[string]config.SymbolConfig{
		"XAUUSD": {PipSize: 0.1, PipValuePerStdLot: 10, Volatility: config.VolatilityMedium},
	}
}

func goldChain() *chain.Chain {
	return &chain.Chain{
		ChainID:   "PROFIT_XAUUSD_aabbccdd",
		Symbol:    "XAUUSD",
		Direction: types.DirectionBuy,
		Status:    chain.StatusActive,
		MaxLevel:  4,
		Schedule:  defaultSchedule(),
	}
}

func cohortTrade(id int64, chainID string, level int, entry float64, lot float64, direction string) *types.Trade {
	return &types.Trade{
		TradeID:     id,
		Symbol:      "XAUUSD",
		Direction:   direction,
		Entry:       decimal.NewFromFloat(entry),
		LotSize:     decimal.NewFromFloat(lot),
		Status:      types.TradeOpen,
		ChainID:     chainID,
		ProfitLevel: level,
	}
}

func TestCohortPnLBuy(t *testing.T) {
	eval := chain.NewEvaluator(xauSymbols())
	c := goldChain()
	trades := []*types.Trade{cohortTrade(100001, c.ChainID, 0, 2000.0, 0.05, types.DirectionBuy)}

	// 20 pips x $10/pip x 0.05 lots = $10
	pnl := eval.CohortPnL(c, trades, staticFeed{"XAUUSD": decimal.NewFromFloat(2002.0)})
	require.True(t, decimal.NewFromInt(10).Equal(pnl), "got %s", pnl)

	// 19 pips short of the move: $9.50
	pnl = eval.CohortPnL(c, trades, staticFeed{"XAUUSD": decimal.NewFromFloat(2001.9)})
	require.True(t, decimal.NewFromFloat(9.5).Equal(pnl), "got %s", pnl)
}

func TestCohortPnLSell(t *testing.T) {
	eval := chain.NewEvaluator(xauSymbols())
	c := goldChain()
	c.Direction = types.DirectionSell
	trades := []*types.Trade{cohortTrade(100002, c.ChainID, 0, 2000.0, 0.05, types.DirectionSell)}

	pnl := eval.CohortPnL(c, trades, staticFeed{"XAUUSD": decimal.NewFromFloat(1998.0)})
	assert.True(t, decimal.NewFromInt(10).Equal(pnl), "got %s", pnl)

	pnl = eval.CohortPnL(c, trades, staticFeed{"XAUUSD": decimal.NewFromFloat(2001.0)})
	assert.True(t, decimal.NewFromInt(-5).Equal(pnl), "got %s", pnl)
}

func TestCohortPnLSumsWholeCohort(t *testing.T) {
	eval := chain.NewEvaluator(xauSymbols())
	c := goldChain()
	c.CurrentLevel = 1
	trades := []*types.Trade{
		cohortTrade(100003, c.ChainID, 1, 2000.0, 0.05, types.DirectionBuy),
		cohortTrade(100004, c.ChainID, 1, 2001.0, 0.05, types.DirectionBuy),
		// Wrong level and foreign chain are excluded from the cohort.
		cohortTrade(100005, c.ChainID, 0, 1990.0, 0.05, types.DirectionBuy),
		cohortTrade(100006, "PROFIT_XAUUSD_ffffffff", 1, 1990.0, 0.05, types.DirectionBuy),
	}

	pnl := eval.CohortPnL(c, trades, staticFeed{"XAUUSD": decimal.NewFromFloat(2002.0)})
	// $10 + $5
	assert.True(t, decimal.NewFromInt(15).Equal(pnl), "got %s", pnl)
}

func TestCohortPnLMatchesUntaggedActiveOrders(t *testing.T) {
	eval := chain.NewEvaluator(xauSymbols())
	c := goldChain()
	c.CurrentLevel = 1
	c.ActiveOrders = []int64{100010, 100011}

	// Broker lost the tags; membership in ActiveOrders still counts.
	trades := []*types.Trade{
		cohortTrade(100010, "", 0, 2000.0, 0.05, types.DirectionBuy),
		cohortTrade(100011, "", 0, 2000.0, 0.05, types.DirectionBuy),
		cohortTrade(100012, "", 0, 2000.0, 0.05, types.DirectionBuy),
	}

	pnl := eval.CohortPnL(c, trades, staticFeed{"XAUUSD": decimal.NewFromFloat(2002.0)})
	assert.True(t, decimal.NewFromInt(20).Equal(pnl), "got %s", pnl)
}

func TestCohortPnLZeroCases(t *testing.T) {
	eval := chain.NewEvaluator(xauSymbols())
	c := goldChain()

	// Empty cohort.
	assert.True(t, eval.CohortPnL(c, nil, staticFeed{"XAUUSD": decimal.NewFromFloat(2002)}).IsZero())

	// Price unavailable: zero even though entries suggest profit.
	trades := []*types.Trade{cohortTrade(100007, c.ChainID, 0, 1900.0, 0.05, types.DirectionBuy)}
	assert.True(t, eval.CohortPnL(c, trades, staticFeed{}).IsZero())

	// Closed trades never count.
	trades[0].Status = types.TradeClosed
	assert.True(t, eval.CohortPnL(c, trades, staticFeed{"XAUUSD": decimal.NewFromFloat(2002)}).IsZero())
}
