package notify_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/web3guy0/pyrabot/internal/notify"
)

func TestFormatLevelUp(t *testing.T) {
	got := notify.FormatLevelUp(notify.LevelUp{
		ChainID:       "PROFIT_XAUUSD_a1b2c3d4",
		FromLevel:     0,
		ToLevel:       1,
		ProfitBooked:  decimal.NewFromFloat(10.5),
		OrdersClosed:  1,
		OrdersPlaced:  2,
		NextTarget:    decimal.NewFromInt(20),
		NextReduction: decimal.NewFromInt(10),
	})

	want := "🔁 PROFIT BOOKING LEVEL UP!\n" +
		"Chain: PROFIT_XAUUSD_a1b2c3d4\n" +
		"Level: 0 → 1\n" +
		"Profit Booked: $10.50\n" +
		"Orders Closed: 1\n" +
		"Orders Placed: 2\n" +
		"Next Target: $20.00\n" +
		"SL Reduction: 10%"
	assert.Equal(t, want, got)
}

func TestDiscardSwallows(t *testing.T) {
	assert.NoError(t, notify.Discard{}.Send("anything"))
}
