package risk_test

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/pyrabot/internal/config"
	"github.com/web3guy0/pyrabot/internal/risk"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Symbols = map[string]config.SymbolConfig{
		"XAUUSD": {PipSize: 0.1, PipValuePerStdLot: 10, Volatility: config.VolatilityMedium},
		"GBPJPY": {PipSize: 0.01, PipValuePerStdLot: 10, Volatility: config.VolatilityHigh},
	}
	return cfg
}

func freshLedger(t *testing.T) *risk.Ledger {
	t.Helper()
	return risk.OpenLedger(filepath.Join(t.TempDir(), "stats.json"))
}

func TestLotForBalance(t *testing.T) {
	p := risk.NewPolicy(testConfig())

	cases := []struct {
		balance float64
		want    float64
	}{
		{4000, 0.05},  // below lowest tier: minimum
		{5000, 0.05},  // exact tier
		{9999, 0.05},  // still in 5000 tier
		{10000, 0.10}, // next tier
		{26000, 0.25},
		{250000, 1.00}, // above the top tier
	}
	for _, tc := range cases {
		got := p.LotForBalance(decimal.NewFromFloat(tc.balance))
		assert.True(t, decimal.NewFromFloat(tc.want).Equal(got),
			"balance %v: want %v got %s", tc.balance, tc.want, got)
	}
}

func TestLotForBalanceManualOverride(t *testing.T) {
	cfg := testConfig()
	cfg.ManualLots = map[int]float64{12345: 0.33}
	p := risk.NewPolicy(cfg)

	got := p.LotForBalance(decimal.NewFromFloat(12345.67))
	assert.True(t, decimal.NewFromFloat(0.33).Equal(got), "got %s", got)

	// Non-matching integer balance falls back to tiers.
	got = p.LotForBalance(decimal.NewFromFloat(12346))
	assert.True(t, decimal.NewFromFloat(0.10).Equal(got), "got %s", got)
}

func TestTierForBalance(t *testing.T) {
	p := risk.NewPolicy(testConfig())

	assert.Equal(t, 5000, p.TierForBalance(decimal.NewFromInt(100)))
	assert.Equal(t, 5000, p.TierForBalance(decimal.NewFromInt(9999)))
	assert.Equal(t, 25000, p.TierForBalance(decimal.NewFromInt(30000)))
	assert.Equal(t, 100000, p.TierForBalance(decimal.NewFromInt(500000)))
}

func TestEstimateCohortRisk(t *testing.T) {
	p := risk.NewPolicy(testConfig())

	// MEDIUM: 75 pips x $10 x 0.05 lots x 2 orders = $75
	got := p.EstimateCohortRisk("XAUUSD", decimal.NewFromFloat(0.05), 2, decimal.Zero)
	assert.True(t, decimal.NewFromInt(75).Equal(got), "got %s", got)

	// 40% reduction tightens the estimate: 75 * 0.6 * 10 * 0.05 * 2 = $45
	got = p.EstimateCohortRisk("XAUUSD", decimal.NewFromFloat(0.05), 2, decimal.NewFromInt(40))
	assert.True(t, decimal.NewFromInt(45).Equal(got), "got %s", got)

	// HIGH volatility symbol uses 100 pips.
	got = p.EstimateCohortRisk("GBPJPY", decimal.NewFromFloat(0.10), 1, decimal.Zero)
	assert.True(t, decimal.NewFromInt(100).Equal(got), "got %s", got)

	// Unknown symbol: zero.
	assert.True(t, p.EstimateCohortRisk("EURUSD", decimal.NewFromFloat(0.05), 2, decimal.Zero).IsZero())
}

func TestValidateDualOrderRisk(t *testing.T) {
	p := risk.NewPolicy(testConfig())
	ledger := freshLedger(t)
	balance := decimal.NewFromInt(10000)
	lot := decimal.NewFromFloat(0.05)

	d := p.ValidateDualOrderRisk(ledger, balance, "XAUUSD", lot)
	assert.True(t, d.Allowed, d.Reason)

	// Push daily loss close to the 10000-tier cap of 500: 450 + 75 > 500.
	require.NoError(t, ledger.RecordTrade(decimal.NewFromInt(-450)))
	d = p.ValidateDualOrderRisk(ledger, balance, "XAUUSD", lot)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "daily loss cap")
}

func TestValidateDualOrderRiskLifetimeCap(t *testing.T) {
	p := risk.NewPolicy(testConfig())
	ledger := freshLedger(t)

	// Lifetime loss accumulates across days; 1950 + 75 > 2000 while the
	// daily counter alone would still pass.
	require.NoError(t, ledger.RecordTrade(decimal.NewFromInt(-1950)))
	require.NoError(t, ledger.ResetDaily())

	d := p.ValidateDualOrderRisk(ledger, decimal.NewFromInt(10000), "XAUUSD", decimal.NewFromFloat(0.05))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "lifetime loss cap")
}

func TestValidateDualOrderRiskDisabled(t *testing.T) {
	cfg := testConfig()
	off := false
	cfg.DualOrder.Enabled = &off
	p := risk.NewPolicy(cfg)

	d := p.ValidateDualOrderRisk(freshLedger(t), decimal.NewFromInt(100), "XAUUSD", decimal.NewFromInt(1))
	assert.True(t, d.Allowed)
}

func TestChainCohortRisk(t *testing.T) {
	cfg := testConfig()
	p := risk.NewPolicy(cfg)

	// Level 2: 4 orders, 25% reduction. 75*0.75 pips x $10 x 0.05 x 4 = $112.50
	r := p.ChainCohortRisk(cfg.ProfitBooking, 2, decimal.NewFromFloat(0.05), "XAUUSD")
	assert.Equal(t, 4, r.OrderCount)
	assert.True(t, decimal.NewFromFloat(0.2).Equal(r.TotalLotSize), "got %s", r.TotalLotSize)
	assert.True(t, decimal.NewFromFloat(112.5).Equal(r.TotalRisk), "got %s", r.TotalRisk)

	// Past the schedule: empty projection.
	r = p.ChainCohortRisk(cfg.ProfitBooking, 9, decimal.NewFromFloat(0.05), "XAUUSD")
	assert.Equal(t, 0, r.OrderCount)
	assert.True(t, r.TotalRisk.IsZero())
}
