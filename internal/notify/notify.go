package notify

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Notifier is the outbound message sink. Implementations must be safe
// for concurrent use; the engine calls Send from per-chain goroutines.
type Notifier interface {
	Send(text string) error
}

// LevelUp carries everything the level-up broadcast needs.
type LevelUp struct {
	ChainID       string
	FromLevel     int
	ToLevel       int
	ProfitBooked  decimal.Decimal
	OrdersClosed  int
	OrdersPlaced  int
	NextTarget    decimal.Decimal
	NextReduction decimal.Decimal
}

// FormatLevelUp renders the level-up broadcast. Field order and dollar
// precision are fixed; downstream tooling parses this text.
func FormatLevelUp(e LevelUp) string {
	return fmt.Sprintf(
		"🔁 PROFIT BOOKING LEVEL UP!\n"+
			"Chain: %s\n"+
			"Level: %d → %d\n"+
			"Profit Booked: $%s\n"+
			"Orders Closed: %d\n"+
			"Orders Placed: %d\n"+
			"Next Target: $%s\n"+
			"SL Reduction: %s%%",
		e.ChainID,
		e.FromLevel,
		e.ToLevel,
		e.ProfitBooked.StringFixed(2),
		e.OrdersClosed,
		e.OrdersPlaced,
		e.NextTarget.StringFixed(2),
		e.NextReduction.String(),
	)
}

// Discard is a Notifier that drops every message. Used when no sink is
// configured.
type Discard struct{}

// Send implements Notifier.
func (Discard) Send(string) error { return nil }
