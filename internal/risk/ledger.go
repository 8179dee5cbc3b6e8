package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/pyrabot/internal/config"
)

// Ledger is the process-global, persisted side of the risk governor:
// daily P/L, lifetime loss and trade counters. Every mutator persists
// synchronously so a crash never loses a recorded trade.
type Ledger struct {
	mu   sync.Mutex
	path string

	date          string // YYYY-MM-DD, UTC
	dailyLoss     decimal.Decimal
	dailyProfit   decimal.Decimal
	lifetimeLoss  decimal.Decimal
	totalTrades   int
	winningTrades int
}

// Stats is a read-only snapshot of the ledger.
type Stats struct {
	Date          string
	DailyLoss     decimal.Decimal
	DailyProfit   decimal.Decimal
	LifetimeLoss  decimal.Decimal
	TotalTrades   int
	WinningTrades int
	WinRate       decimal.Decimal // percent
}

// statsFile is the on-disk shape. Plain floats so the file stays
// readable by the tooling that already consumes data/stats.json.
type statsFile struct {
	Date          string  `json:"date"`
	DailyLoss     float64 `json:"daily_loss"`
	DailyProfit   float64 `json:"daily_profit"`
	LifetimeLoss  float64 `json:"lifetime_loss"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// OpenLedger loads the ledger from path. A missing or corrupt file
// resets all counters to zero for the current date.
func OpenLedger(path string) *Ledger {
	l := &Ledger{
		path: path,
		date: dayKey(time.Now()),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Stats file unreadable, resetting")
		}
		return l
	}

	var sf statsFile
	if err := json.Unmarshal(data, &sf); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Stats file corrupted, resetting")
		return l
	}

	l.lifetimeLoss = decimal.NewFromFloat(sf.LifetimeLoss)
	l.totalTrades = sf.TotalTrades
	l.winningTrades = sf.WinningTrades
	if sf.Date == l.date {
		l.dailyLoss = decimal.NewFromFloat(sf.DailyLoss)
		l.dailyProfit = decimal.NewFromFloat(sf.DailyProfit)
	}
	return l
}

// RecordTrade folds a realised P/L into the counters and persists.
// Positive pnl grows daily profit and the win count; anything else adds
// its magnitude to both daily and lifetime loss.
func (l *Ledger) RecordTrade(pnl decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalTrades++
	if pnl.IsPositive() {
		l.dailyProfit = l.dailyProfit.Add(pnl)
		l.winningTrades++
	} else {
		l.dailyLoss = l.dailyLoss.Add(pnl.Abs())
		l.lifetimeLoss = l.lifetimeLoss.Add(pnl.Abs())
	}
	return l.persistLocked()
}

// RollDay zeroes the daily counters when the stored date differs from
// today. Lifetime counters survive.
func (l *Ledger) RollDay(today time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := dayKey(today)
	if l.date == key {
		return nil
	}
	log.Info().Str("from", l.date).Str("to", key).Msg("New trading day, rolling daily counters")
	l.date = key
	l.dailyLoss = decimal.Zero
	l.dailyProfit = decimal.Zero
	return l.persistLocked()
}

// CanTrade reports whether neither the daily nor the lifetime loss cap
// of the tier is exhausted.
func (l *Ledger) CanTrade(limits config.RiskTier) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lifetimeLoss.Cmp(decimal.NewFromFloat(limits.MaxTotalLoss)) >= 0 {
		log.Warn().Str("lifetime_loss", l.lifetimeLoss.StringFixed(2)).Msg("Lifetime loss limit reached")
		return false
	}
	if l.dailyLoss.Cmp(decimal.NewFromFloat(limits.DailyLossLimit)) >= 0 {
		log.Warn().Str("daily_loss", l.dailyLoss.StringFixed(2)).Msg("Daily loss limit reached")
		return false
	}
	return true
}

// Losses returns (daily loss, daily profit, lifetime loss).
func (l *Ledger) Losses() (daily, profit, lifetime decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dailyLoss, l.dailyProfit, l.lifetimeLoss
}

// Snapshot returns a copy of all counters with the derived win rate.
func (l *Ledger) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	winRate := decimal.Zero
	if l.totalTrades > 0 {
		winRate = decimal.NewFromInt(int64(l.winningTrades)).
			Div(decimal.NewFromInt(int64(l.totalTrades))).
			Mul(decimal.NewFromInt(100))
	}
	return Stats{
		Date:          l.date,
		DailyLoss:     l.dailyLoss,
		DailyProfit:   l.dailyProfit,
		LifetimeLoss:  l.lifetimeLoss,
		TotalTrades:   l.totalTrades,
		WinningTrades: l.winningTrades,
		WinRate:       winRate,
	}
}

// ResetDaily zeroes the daily counters.
func (l *Ledger) ResetDaily() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dailyLoss = decimal.Zero
	l.dailyProfit = decimal.Zero
	return l.persistLocked()
}

// ResetLifetime zeroes the lifetime loss counter.
func (l *Ledger) ResetLifetime() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lifetimeLoss = decimal.Zero
	return l.persistLocked()
}

// persistLocked writes the stats file atomically (tmp + rename).
// Callers hold l.mu.
func (l *Ledger) persistLocked() error {
	sf := statsFile{
		Date:          l.date,
		DailyLoss:     l.dailyLoss.InexactFloat64(),
		DailyProfit:   l.dailyProfit.InexactFloat64(),
		LifetimeLoss:  l.lifetimeLoss.InexactFloat64(),
		TotalTrades:   l.totalTrades,
		WinningTrades: l.winningTrades,
	}
	data, err := json.MarshalIndent(sf, "", "    ")
	if err != nil {
		return fmt.Errorf("ledger: marshal stats: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("ledger: create stats dir: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("ledger: write stats: %w", err)
	}
	return os.Rename(tmp, l.path)
}
