package broker

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/pyrabot/internal/config"
	"github.com/web3guy0/pyrabot/internal/types"
)

// PipCalculator derives stop-loss and take-profit prices from symbol
// geometry. The stop distance starts from the symbol's volatility
// estimate, is capped so the worst case stays within riskPercent of the
// balance for the given lot, and then tightened by slAdjustment.
type PipCalculator struct {
	symbols     map[string]config.SymbolConfig
	riskPercent decimal.Decimal
}

// NewPipCalculator builds a calculator risking at most riskPercent
// (e.g. 0.01 for 1%) of balance per order.
func NewPipCalculator(symbols map[string]config.SymbolConfig, riskPercent float64) *PipCalculator {
	return &PipCalculator{
		symbols:     symbols,
		riskPercent: decimal.NewFromFloat(riskPercent),
	}
}

func volatilityPips(volatility string) decimal.Decimal {
	switch volatility {
	case config.VolatilityLow:
		return decimal.NewFromInt(50)
	case config.VolatilityHigh:
		return decimal.NewFromInt(100)
	default:
		return decimal.NewFromInt(75)
	}
}

// StopLoss returns the stop price and its distance from price.
// slAdjustment of 1.0 keeps the full distance; 0.9 tightens it by 10%.
func (p *PipCalculator) StopLoss(symbol string, price decimal.Decimal, direction string, lot, balance, slAdjustment decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	sc, ok := p.symbols[symbol]
	if !ok {
		return decimal.Zero, decimal.Zero
	}
	pipSize := decimal.NewFromFloat(sc.PipSize)
	pipValue := decimal.NewFromFloat(sc.PipValuePerStdLot)

	pips := volatilityPips(sc.Volatility)

	// Cap the distance so a stop-out costs at most riskPercent of balance.
	if lot.IsPositive() && balance.IsPositive() {
		maxPips := balance.Mul(p.riskPercent).Div(pipValue.Mul(lot))
		if maxPips.Cmp(pips) < 0 {
			pips = maxPips
		}
	}

	distance := pips.Mul(pipSize).Mul(slAdjustment)
	if direction == types.DirectionBuy {
		return price.Sub(distance), distance
	}
	return price.Add(distance), distance
}

// TakeProfit mirrors the stop distance on the profit side scaled by the
// reward:risk ratio.
func (p *PipCalculator) TakeProfit(price, sl decimal.Decimal, direction string, rrRatio decimal.Decimal) decimal.Decimal {
	distance := price.Sub(sl).Abs().Mul(rrRatio)
	if direction == types.DirectionBuy {
		return price.Add(distance)
	}
	return price.Sub(distance)
}
