package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/pyrabot/internal/config"
)

// Policy is the stateless side of the risk governor: balance tiers, lot
// sizing and projected-loss estimation. All methods are deterministic
// over the config captured at construction.
type Policy struct {
	tiers       map[int]config.RiskTier
	fixedLots   map[int]float64
	manualLots  map[int]float64
	symbols     map[string]config.SymbolConfig
	dualEnabled bool
}

// Decision is the outcome of a risk validation.
type Decision struct {
	Allowed bool
	Reason  string
}

// CohortRisk describes the projected exposure of one chain level.
type CohortRisk struct {
	TotalRisk    decimal.Decimal
	OrderCount   int
	TotalLotSize decimal.Decimal
	SLReduction  decimal.Decimal
}

// NewPolicy builds a policy from config.
func NewPolicy(cfg *config.Config) *Policy {
	return &Policy{
		tiers:       cfg.RiskTiers,
		fixedLots:   cfg.FixedLotSizes,
		manualLots:  cfg.ManualLots,
		symbols:     cfg.Symbols,
		dualEnabled: cfg.DualOrder.Enabled == nil || *cfg.DualOrder.Enabled,
	}
}

// minLot is the floor when no tier matches the balance.
var minLot = decimal.NewFromFloat(0.05)

// LotForBalance returns the lot size for an account balance. Manual
// overrides (keyed by integer balance) win; otherwise the highest tier
// at or below the balance decides; otherwise the minimum.
func (p *Policy) LotForBalance(balance decimal.Decimal) decimal.Decimal {
	if lot, ok := p.manualLots[int(balance.IntPart())]; ok {
		return decimal.NewFromFloat(lot)
	}
	for _, tier := range config.TierOrder {
		if balance.Cmp(decimal.NewFromInt(int64(tier))) >= 0 {
			if lot, ok := p.fixedLots[tier]; ok {
				return decimal.NewFromFloat(lot)
			}
		}
	}
	return minLot
}

// TierForBalance returns the highest tier at or below the balance,
// with 5000 as the floor.
func (p *Policy) TierForBalance(balance decimal.Decimal) int {
	for _, tier := range config.TierOrder {
		if balance.Cmp(decimal.NewFromInt(int64(tier))) >= 0 {
			return tier
		}
	}
	return 5000
}

// TierLimits returns the loss caps for a tier.
func (p *Policy) TierLimits(tier int) (config.RiskTier, bool) {
	t, ok := p.tiers[tier]
	return t, ok
}

// slPipsEstimate is the conservative stop distance per volatility class.
func slPipsEstimate(volatility string) decimal.Decimal {
	switch volatility {
	case config.VolatilityLow:
		return decimal.NewFromInt(50)
	case config.VolatilityHigh:
		return decimal.NewFromInt(100)
	default:
		return decimal.NewFromInt(75)
	}
}

// EstimateCohortRisk projects the dollar loss of a cohort stopping out:
// sl pips (volatility estimate, reduced) x pip value x lot x multiplier.
func (p *Policy) EstimateCohortRisk(symbol string, lot decimal.Decimal, multiplier int, slReduction decimal.Decimal) decimal.Decimal {
	sc, ok := p.symbols[symbol]
	if !ok {
		return decimal.Zero
	}
	adj := decimal.NewFromInt(1).Sub(slReduction.Div(decimal.NewFromInt(100)))
	pips := slPipsEstimate(sc.Volatility).Mul(adj)
	pipValue := decimal.NewFromFloat(sc.PipValuePerStdLot)
	return pips.Mul(pipValue).Mul(lot).Mul(decimal.NewFromInt(int64(multiplier)))
}

// ValidateDualOrderRisk checks whether the account can absorb a 2x
// cohort stopping out at the tier's SL estimate without breaching the
// daily or lifetime loss caps.
func (p *Policy) ValidateDualOrderRisk(ledger *Ledger, balance decimal.Decimal, symbol string, lot decimal.Decimal) Decision {
	if !p.dualEnabled {
		return Decision{Allowed: true, Reason: "dual orders disabled"}
	}

	tier := p.TierForBalance(balance)
	limits, ok := p.tiers[tier]
	if !ok {
		return Decision{Reason: fmt.Sprintf("no risk limits for tier %d", tier)}
	}
	if _, ok := p.symbols[symbol]; !ok {
		return Decision{Reason: fmt.Sprintf("no symbol config for %s", symbol)}
	}

	expected := p.EstimateCohortRisk(symbol, lot, 2, decimal.Zero)
	daily, _, lifetime := ledger.Losses()

	if daily.Add(expected).Cmp(decimal.NewFromFloat(limits.DailyLossLimit)) > 0 {
		return Decision{Reason: fmt.Sprintf("daily loss cap would be exceeded: $%s > $%v",
			daily.Add(expected).StringFixed(2), limits.DailyLossLimit)}
	}
	if lifetime.Add(expected).Cmp(decimal.NewFromFloat(limits.MaxTotalLoss)) > 0 {
		return Decision{Reason: fmt.Sprintf("lifetime loss cap would be exceeded: $%s > $%v",
			lifetime.Add(expected).StringFixed(2), limits.MaxTotalLoss)}
	}

	return Decision{Allowed: true, Reason: "dual order risk validation passed"}
}

// ChainCohortRisk projects exposure for a chain level given its base
// lot: order count, total lots and stopped-out dollar risk.
func (p *Policy) ChainCohortRisk(pb config.ProfitBookingConfig, level int, baseLot decimal.Decimal, symbol string) CohortRisk {
	if level < 0 || level >= len(pb.Multipliers) {
		return CohortRisk{}
	}
	count := pb.Multipliers[level]
	reduction := decimal.Zero
	if level < len(pb.SLReductions) {
		reduction = decimal.NewFromFloat(pb.SLReductions[level])
	}
	return CohortRisk{
		TotalRisk:    p.EstimateCohortRisk(symbol, baseLot, count, reduction),
		OrderCount:   count,
		TotalLotSize: baseLot.Mul(decimal.NewFromInt(int64(count))),
		SLReduction:  reduction,
	}
}
