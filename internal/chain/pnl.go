package chain

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/pyrabot/internal/config"
	"github.com/web3guy0/pyrabot/internal/types"
)

// PriceFeed supplies the current price for a symbol. A zero price means
// the feed has no quote; callers must not act on it.
type PriceFeed interface {
	GetPrice(symbol string) decimal.Decimal
}

// Evaluator computes unrealised cohort P/L from live prices. It holds
// only symbol geometry and performs no I/O besides the single price read.
type Evaluator struct {
	symbols map[string]config.SymbolConfig
}

// NewEvaluator builds an evaluator over the configured symbols.
func NewEvaluator(symbols map[string]config.SymbolConfig) *Evaluator {
	return &Evaluator{symbols: symbols}
}

// CohortPnL returns the combined unrealised P/L in dollars of the
// chain's current-level cohort. It returns zero when the cohort is
// empty, the price is unavailable, or the symbol is unknown; a zero
// here never counts as a target hit since targets are strictly positive.
func (e *Evaluator) CohortPnL(c *Chain, openTrades []*types.Trade, feed PriceFeed) decimal.Decimal {
	cohort := CohortTrades(c, openTrades)
	if len(cohort) == 0 {
		return decimal.Zero
	}

	current := feed.GetPrice(c.Symbol)
	if !current.IsPositive() {
		return decimal.Zero
	}

	sc, ok := e.symbols[c.Symbol]
	if !ok {
		return decimal.Zero
	}
	pipSize := decimal.NewFromFloat(sc.PipSize)
	pipValueStd := decimal.NewFromFloat(sc.PipValuePerStdLot)

	total := decimal.Zero
	for _, t := range cohort {
		var diff decimal.Decimal
		if t.Direction == types.DirectionBuy {
			diff = current.Sub(t.Entry)
		} else {
			diff = t.Entry.Sub(current)
		}
		pips := diff.Div(pipSize)
		total = total.Add(pips.Mul(pipValueStd).Mul(t.LotSize))
	}
	return total
}

// CohortTrades filters openTrades down to the chain's current-level
// cohort. ActiveOrders is the authoritative membership list (replaced
// wholesale at every level-up); chain tags on the trade are an
// equivalent match for brokers that annotate positions themselves.
func CohortTrades(c *Chain, openTrades []*types.Trade) []*types.Trade {
	member := make(map[int64]bool, len(c.ActiveOrders))
	for _, id := range c.ActiveOrders {
		member[id] = true
	}

	var cohort []*types.Trade
	for _, t := range openTrades {
		if !t.IsOpen() {
			continue
		}
		if member[t.TradeID] || (t.ChainID == c.ChainID && t.ProfitLevel == c.CurrentLevel) {
			cohort = append(cohort, t)
		}
	}
	return cohort
}
