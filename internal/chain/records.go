package chain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the durable record of one placed order within a chain.
type Order struct {
	OrderID      int64
	ChainID      string
	Level        int
	ProfitTarget decimal.Decimal
	SLReduction  int
	State        string // OPEN, CLOSED_TARGET, CLOSED_STOP, CLOSED_MANUAL
}

// Event is one append-only progression record: the level-up that closed
// cohort FromLevel and opened cohort ToLevel.
type Event struct {
	ChainID      string
	FromLevel    int
	ToLevel      int
	ProfitBooked decimal.Decimal
	OrdersClosed int
	OrdersPlaced int
	Ts           time.Time
}
