package risk_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/pyrabot/internal/config"
	"github.com/web3guy0/pyrabot/internal/risk"
)

func TestLedgerRecordTrade(t *testing.T) {
	l := freshLedger(t)

	require.NoError(t, l.RecordTrade(decimal.NewFromInt(25)))
	require.NoError(t, l.RecordTrade(decimal.NewFromInt(-40)))
	require.NoError(t, l.RecordTrade(decimal.NewFromInt(-10)))

	s := l.Snapshot()
	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 1, s.WinningTrades)
	assert.True(t, decimal.NewFromInt(25).Equal(s.DailyProfit), "got %s", s.DailyProfit)
	assert.True(t, decimal.NewFromInt(50).Equal(s.DailyLoss), "got %s", s.DailyLoss)
	assert.True(t, decimal.NewFromInt(50).Equal(s.LifetimeLoss), "got %s", s.LifetimeLoss)
}

func TestLedgerPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")

	l := risk.OpenLedger(path)
	require.NoError(t, l.RecordTrade(decimal.NewFromInt(-100)))
	require.NoError(t, l.RecordTrade(decimal.NewFromInt(30)))

	reopened := risk.OpenLedger(path)
	s := reopened.Snapshot()
	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 1, s.WinningTrades)
	assert.True(t, decimal.NewFromInt(100).Equal(s.DailyLoss))
	assert.True(t, decimal.NewFromInt(100).Equal(s.LifetimeLoss))
	assert.True(t, decimal.NewFromInt(30).Equal(s.DailyProfit))
}

func TestLedgerCorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	l := risk.OpenLedger(path)
	s := l.Snapshot()
	assert.Equal(t, 0, s.TotalTrades)
	assert.True(t, s.DailyLoss.IsZero())
	assert.True(t, s.LifetimeLoss.IsZero())
}

func TestLedgerRollDay(t *testing.T) {
	l := freshLedger(t)
	require.NoError(t, l.RecordTrade(decimal.NewFromInt(-60)))
	require.NoError(t, l.RecordTrade(decimal.NewFromInt(15)))

	// Same day: nothing changes.
	require.NoError(t, l.RollDay(time.Now()))
	s := l.Snapshot()
	assert.True(t, decimal.NewFromInt(60).Equal(s.DailyLoss))

	// Next day: daily counters reset, lifetime survives.
	require.NoError(t, l.RollDay(time.Now().Add(24*time.Hour)))
	s = l.Snapshot()
	assert.True(t, s.DailyLoss.IsZero())
	assert.True(t, s.DailyProfit.IsZero())
	assert.True(t, decimal.NewFromInt(60).Equal(s.LifetimeLoss))
	assert.Equal(t, 2, s.TotalTrades)
}

func TestLedgerCanTrade(t *testing.T) {
	l := freshLedger(t)
	limits := config.RiskTier{DailyLossLimit: 100, MaxTotalLoss: 300}

	assert.True(t, l.CanTrade(limits))

	require.NoError(t, l.RecordTrade(decimal.NewFromInt(-100)))
	assert.False(t, l.CanTrade(limits), "daily cap reached")

	require.NoError(t, l.ResetDaily())
	assert.True(t, l.CanTrade(limits))

	require.NoError(t, l.RecordTrade(decimal.NewFromInt(-90)))
	require.NoError(t, l.RecordTrade(decimal.NewFromInt(-110)))
	require.NoError(t, l.ResetDaily())
	assert.False(t, l.CanTrade(limits), "lifetime cap reached")

	require.NoError(t, l.ResetLifetime())
	assert.True(t, l.CanTrade(limits))
}

func TestLedgerWinRate(t *testing.T) {
	l := freshLedger(t)
	require.NoError(t, l.RecordTrade(decimal.NewFromInt(10)))
	require.NoError(t, l.RecordTrade(decimal.NewFromInt(20)))
	require.NoError(t, l.RecordTrade(decimal.NewFromInt(-5)))
	require.NoError(t, l.RecordTrade(decimal.NewFromInt(-5)))

	s := l.Snapshot()
	assert.True(t, decimal.NewFromInt(50).Equal(s.WinRate), "got %s", s.WinRate)
}
