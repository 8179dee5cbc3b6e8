package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Trade directions as the broker bridge reports them.
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// OrderTypeProfitTrail marks the seed order (Order B) that starts a
// profit-compounding chain. Any other order type never enters a chain.
const OrderTypeProfitTrail = "PROFIT_TRAIL"

// Trade statuses.
const (
	TradeOpen   = "open"
	TradeClosed = "closed"
)

// Trade represents a broker order as seen by the engine. Chain-tagged
// trades carry ChainID and ProfitLevel; everything else leaves them zero.
type Trade struct {
	TradeID   int64
	Symbol    string
	Direction string // "buy" or "sell"
	Entry     decimal.Decimal
	SL        decimal.Decimal
	TP        decimal.Decimal
	LotSize   decimal.Decimal
	Strategy  string
	OrderType string
	Status    string // "open" or "closed"
	OpenTime  time.Time

	// Chain membership (zero values when untagged)
	ChainID     string
	ProfitLevel int

	// Captured at entry for SL bookkeeping
	OriginalEntry      decimal.Decimal
	OriginalSLDistance decimal.Decimal
}

// IsOpen reports whether the trade is still live at the broker.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeOpen
}
