package chain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/pyrabot/internal/config"
)

// Status of a profit-booking chain. Terminal statuses are absorbing:
// once COMPLETED, STOPPED or FAULTED a chain never transitions again.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusStopped   Status = "STOPPED"
	StatusFaulted   Status = "FAULTED"
)

// Terminal reports whether s is an absorbing status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusStopped || s == StatusFaulted
}

// Order states persisted per chain order.
const (
	OrderOpen         = "OPEN"
	OrderClosedTarget = "CLOSED_TARGET"
	OrderClosedStop   = "CLOSED_STOP"
	OrderClosedManual = "CLOSED_MANUAL"
)

// Schedule is the immutable per-level triple captured at chain creation.
// All three vectors have length MaxLevel()+1. It is persisted with the
// chain row so that recovery replays the schedule the chain was created
// under, not whatever the config says today.
type Schedule struct {
	ProfitTargets []decimal.Decimal `json:"profit_targets"`
	Multipliers   []int             `json:"multipliers"`
	SLReductions  []decimal.Decimal `json:"sl_reductions"`
}

// ScheduleFromConfig snapshots the profit booking config into a Schedule.
func ScheduleFromConfig(pb config.ProfitBookingConfig) Schedule {
	s := Schedule{
		ProfitTargets: make([]decimal.Decimal, len(pb.ProfitTargets)),
		Multipliers:   make([]int, len(pb.Multipliers)),
		SLReductions:  make([]decimal.Decimal, len(pb.SLReductions)),
	}
	for i, t := range pb.ProfitTargets {
		s.ProfitTargets[i] = decimal.NewFromFloat(t)
	}
	copy(s.Multipliers, pb.Multipliers)
	for i, r := range pb.SLReductions {
		s.SLReductions[i] = decimal.NewFromFloat(r)
	}
	return s
}

// MaxLevel returns the highest level index the schedule covers.
func (s Schedule) MaxLevel() int {
	return len(s.Multipliers) - 1
}

// Target returns the profit target for level, or zero when out of range.
func (s Schedule) Target(level int) decimal.Decimal {
	if level < 0 || level >= len(s.ProfitTargets) {
		return decimal.Zero
	}
	return s.ProfitTargets[level]
}

// Multiplier returns the cohort size for level, defaulting to 1.
func (s Schedule) Multiplier(level int) int {
	if level < 0 || level >= len(s.Multipliers) {
		return 1
	}
	return s.Multipliers[level]
}

// Reduction returns the SL reduction percent for level, or zero.
func (s Schedule) Reduction(level int) decimal.Decimal {
	if level < 0 || level >= len(s.SLReductions) {
		return decimal.Zero
	}
	return s.SLReductions[level]
}

// Validate enforces the schedule invariants: fixed equal lengths,
// strictly positive targets and multipliers, reductions in [0,100).
func (s Schedule) Validate() error {
	n := len(s.Multipliers)
	if n == 0 {
		return fmt.Errorf("chain: empty schedule")
	}
	if len(s.ProfitTargets) != n || len(s.SLReductions) != n {
		return fmt.Errorf("chain: schedule length mismatch (targets=%d multipliers=%d reductions=%d)",
			len(s.ProfitTargets), n, len(s.SLReductions))
	}
	for i, t := range s.ProfitTargets {
		if !t.IsPositive() {
			return fmt.Errorf("chain: profit target[%d] must be > 0", i)
		}
	}
	for i, m := range s.Multipliers {
		if m <= 0 {
			return fmt.Errorf("chain: multiplier[%d] must be > 0", i)
		}
	}
	hundred := decimal.NewFromInt(100)
	for i, r := range s.SLReductions {
		if r.IsNegative() || r.Cmp(hundred) >= 0 {
			return fmt.Errorf("chain: sl reduction[%d] must be in [0,100)", i)
		}
	}
	return nil
}

// Metadata captured from the seed trade at chain creation.
type Metadata struct {
	Strategy      string          `json:"strategy"`
	OriginalEntry decimal.Decimal `json:"original_entry"`
	OriginalSL    decimal.Decimal `json:"original_sl"`
	OriginalTP    decimal.Decimal `json:"original_tp"`
}

// Chain is the in-memory chain entity. All mutation happens inside the
// engine under the chain's lock; everything here is plain state.
type Chain struct {
	ChainID      string
	Symbol       string
	Direction    string
	BaseLot      decimal.Decimal
	CurrentLevel int
	MaxLevel     int
	TotalProfit  decimal.Decimal
	ActiveOrders []int64
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Schedule     Schedule
	Metadata     Metadata
}

// Transition moves the chain to next, enforcing that terminal statuses
// are absorbing.
func (c *Chain) Transition(next Status) error {
	if c.Status.Terminal() {
		return fmt.Errorf("chain %s: illegal transition %s -> %s", c.ChainID, c.Status, next)
	}
	c.Status = next
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// AtMaxLevel reports whether the chain has nowhere left to climb.
func (c *Chain) AtMaxLevel() bool {
	return c.CurrentLevel >= c.MaxLevel
}

// CohortSize returns the expected number of open orders at the current
// level per the schedule.
func (c *Chain) CohortSize() int {
	return c.Schedule.Multiplier(c.CurrentLevel)
}
