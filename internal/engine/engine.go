package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/pyrabot/internal/broker"
	"github.com/web3guy0/pyrabot/internal/chain"
	"github.com/web3guy0/pyrabot/internal/config"
	"github.com/web3guy0/pyrabot/internal/notify"
	"github.com/web3guy0/pyrabot/internal/risk"
	"github.com/web3guy0/pyrabot/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHAIN ENGINE - pyramid profit compounding
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Seed (PROFIT_TRAIL) → CreateChain → Tick → target hit → LevelUp:
//   close cohort L, open multipliers[L+1] orders under a tightened stop,
//   persist, notify. Repeat until max level.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Store is the persistence contract the engine consumes.
type Store interface {
	SaveChain(*chain.Chain) error
	SaveOrder(chain.Order) error
	AppendEvent(chain.Event) error
	LoadActiveChains() ([]*chain.Chain, error)
	LoadOrdersForChain(chainID, state string) ([]chain.Order, error)
}

// PipCalculator derives SL/TP prices for the next cohort.
type PipCalculator interface {
	StopLoss(symbol string, price decimal.Decimal, direction string, lot, balance, slAdjustment decimal.Decimal) (slPrice, slDistance decimal.Decimal)
	TakeProfit(price, sl decimal.Decimal, direction string, rrRatio decimal.Decimal) decimal.Decimal
}

// maxLevelUpFaults is how many consecutive pre-commit level-up failures
// move a chain to FAULTED.
const maxLevelUpFaults = 3

// entry pairs a chain with its lock and fault counter. Every mutating
// operation on the chain runs under entry.mu; operations on different
// chains proceed in parallel.
type entry struct {
	mu     sync.Mutex
	chain  *chain.Chain
	faults int
}

// Engine owns all active chains and serialises mutations per chain.
type Engine struct {
	enabled  bool
	schedule config.ProfitBookingConfig
	rrRatio  decimal.Decimal

	store    Store
	broker   broker.Client
	feed     chain.PriceFeed
	pip      PipCalculator
	policy   *risk.Policy
	ledger   *risk.Ledger
	eval     *chain.Evaluator
	notifier notify.Notifier

	mu     sync.RWMutex
	chains map[string]*entry
}

// New creates the chain engine.
func New(cfg *config.Config, st Store, br broker.Client, feed chain.PriceFeed, pip PipCalculator, policy *risk.Policy, ledger *risk.Ledger, notifier notify.Notifier) *Engine {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Engine{
		enabled:  cfg.ProfitBooking.Enabled == nil || *cfg.ProfitBooking.Enabled,
		schedule: cfg.ProfitBooking,
		rrRatio:  decimal.NewFromFloat(cfg.RRRatio),
		store:    st,
		broker:   br,
		feed:     feed,
		pip:      pip,
		policy:   policy,
		ledger:   ledger,
		eval:     chain.NewEvaluator(cfg.Symbols),
		notifier: notifier,
		chains:   make(map[string]*entry),
	}
}

// CreateChain starts a chain from a PROFIT_TRAIL seed trade. The chain
// and its seed order row reach stable storage before the chain becomes
// visible; on any persistence failure nothing is registered.
func (e *Engine) CreateChain(seed *types.Trade) (*chain.Chain, error) {
	if !e.enabled {
		return nil, ErrDisabled
	}
	if seed.OrderType != types.OrderTypeProfitTrail {
		return nil, ErrNotProfitTrail
	}

	sched := chain.ScheduleFromConfig(e.schedule)
	if err := sched.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid schedule: %w", err)
	}

	id := uuid.New()
	now := time.Now().UTC()
	c := &chain.Chain{
		ChainID:      fmt.Sprintf("PROFIT_%s_%s", seed.Symbol, hex.EncodeToString(id[:])[:8]),
		Symbol:       seed.Symbol,
		Direction:    seed.Direction,
		BaseLot:      seed.LotSize,
		CurrentLevel: 0,
		MaxLevel:     e.schedule.MaxLevel,
		TotalProfit:  decimal.Zero,
		Status:       chain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		Schedule:     sched,
		Metadata: chain.Metadata{
			Strategy:      seed.Strategy,
			OriginalEntry: seed.Entry,
			OriginalSL:    seed.SL,
			OriginalTP:    seed.TP,
		},
	}
	if seed.TradeID != 0 {
		c.ActiveOrders = []int64{seed.TradeID}
	}

	if err := e.store.SaveChain(c); err != nil {
		return nil, err
	}
	if seed.TradeID != 0 {
		if err := e.store.SaveOrder(chain.Order{
			OrderID:      seed.TradeID,
			ChainID:      c.ChainID,
			Level:        0,
			ProfitTarget: sched.Target(0),
			SLReduction:  int(sched.Reduction(0).IntPart()),
			State:        chain.OrderOpen,
		}); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	e.chains[c.ChainID] = &entry{chain: c}
	e.mu.Unlock()

	seed.ChainID = c.ChainID
	seed.ProfitLevel = 0

	log.Info().
		Str("chain_id", c.ChainID).
		Str("symbol", c.Symbol).
		Str("direction", c.Direction).
		Str("base_lot", c.BaseLot.String()).
		Msg("✅ Profit booking chain created")
	return c, nil
}

// Tick is the single monitoring step for one chain. It evaluates the
// current cohort's unrealised P/L and triggers a level-up when the
// level's target is reached (>=, not >).
//
// openTrades is read-only here: the supervisor shares one snapshot
// across parallel per-chain ticks, so nothing under Tick may write a
// trade field.
func (e *Engine) Tick(ctx context.Context, chainID string, openTrades []*types.Trade) error {
	ent, ok := e.lookup(chainID)
	if !ok {
		return ErrChainNotFound
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	c := ent.chain

	if c.Status != chain.StatusActive {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.AtMaxLevel() {
		return e.complete(c)
	}

	pnl := e.eval.CohortPnL(c, openTrades, e.feed)
	target := c.Schedule.Target(c.CurrentLevel)
	if pnl.Cmp(target) < 0 {
		return nil
	}

	log.Info().
		Str("chain_id", c.ChainID).
		Int("level", c.CurrentLevel).
		Str("pnl", pnl.StringFixed(2)).
		Str("target", target.StringFixed(2)).
		Msg("✅ Profit target reached")

	return e.levelUp(ctx, ent, openTrades, pnl)
}

// complete finishes a chain that has climbed past its last level.
func (e *Engine) complete(c *chain.Chain) error {
	prev := c.Status
	if err := c.Transition(chain.StatusCompleted); err != nil {
		return err
	}
	if err := e.store.SaveChain(c); err != nil {
		c.Status = prev
		return err
	}
	log.Info().Str("chain_id", c.ChainID).Int("level", c.CurrentLevel).Msg("✅ Chain completed, max level reached")
	return nil
}

// levelUp executes the L → L+1 transition. Caller holds ent.mu.
//
// Partial failures are deliberate non-aborts: individual close failures
// leave orders behind for reconciliation, individual placement failures
// shrink the cohort. Only a dead price feed, a risk block, zero
// placements or a persistence failure abort before commit.
func (e *Engine) levelUp(ctx context.Context, ent *entry, openTrades []*types.Trade, pnl decimal.Decimal) error {
	c := ent.chain
	from := c.CurrentLevel
	next := from + 1

	log.Info().
		Str("chain_id", c.ChainID).
		Int("from", from).
		Int("expected_close", c.Schedule.Multiplier(from)).
		Int("expected_open", c.Schedule.Multiplier(next)).
		Msg("Level-up starting")

	// Risk gate before anything is touched at the broker. A blocked
	// chain stays ACTIVE at its level and retries once the caps free up.
	if err := e.ledger.RollDay(time.Now()); err != nil {
		log.Error().Err(err).Msg("Day rollover not persisted")
	}
	if limits, ok := e.policy.TierLimits(e.policy.TierForBalance(e.broker.GetBalance())); ok && !e.ledger.CanTrade(limits) {
		log.Warn().Str("chain_id", c.ChainID).Msg("Risk governor blocked next cohort")
		return ErrRiskBlocked
	}

	// Close the current cohort. Continue past individual failures.
	ordersClosed := 0
	for _, t := range chain.CohortTrades(c, openTrades) {
		price := e.feed.GetPrice(t.Symbol)
		if !price.IsPositive() {
			log.Warn().Int64("ticket", t.TradeID).Msg("No price for cohort close, skipping")
			continue
		}
		if err := e.broker.CloseOrder(t.TradeID, price); err != nil {
			log.Error().Err(err).Int64("ticket", t.TradeID).Msg("Cohort close failed")
			continue
		}
		ordersClosed++
		if err := e.store.SaveOrder(chain.Order{
			OrderID:      t.TradeID,
			ChainID:      c.ChainID,
			Level:        from,
			ProfitTarget: c.Schedule.Target(from),
			SLReduction:  int(c.Schedule.Reduction(from).IntPart()),
			State:        chain.OrderClosedTarget,
		}); err != nil {
			log.Error().Err(err).Int64("ticket", t.TradeID).Msg("Order close not persisted")
		}
	}

	if err := ctx.Err(); err != nil {
		return e.fault(ent, err)
	}

	// Next-cohort parameters. Balance is re-read here so lot sizing sees
	// the just-booked profit.
	balance := e.broker.GetBalance()
	price := e.feed.GetPrice(c.Symbol)
	if !price.IsPositive() {
		log.Error().Str("chain_id", c.ChainID).Str("symbol", c.Symbol).Msg("Price unavailable, level-up aborted")
		return e.fault(ent, ErrPriceUnavailable)
	}

	lot := e.policy.LotForBalance(balance)
	reduction := c.Schedule.Reduction(next)
	slAdj := decimal.NewFromInt(1).Sub(reduction.Div(decimal.NewFromInt(100)))
	slPrice, _ := e.pip.StopLoss(c.Symbol, price, c.Direction, lot, balance, slAdj)
	tpPrice := e.pip.TakeProfit(price, slPrice, c.Direction, e.rrRatio)

	if err := ctx.Err(); err != nil {
		return e.fault(ent, err)
	}

	// Open the next cohort. Failed placements are skipped, not rolled back.
	strategy := c.Metadata.Strategy
	if strategy == "" {
		strategy = "LOGIC1"
	}
	comment := fmt.Sprintf("%s_PROFIT_L%d", strategy, next)

	var newIDs []int64
	for i := 0; i < c.Schedule.Multiplier(next); i++ {
		id, err := e.broker.PlaceOrder(c.Symbol, c.Direction, lot, price, slPrice, tpPrice, comment)
		if err != nil {
			log.Error().Err(err).Str("chain_id", c.ChainID).Int("slot", i).Msg("Placement failed, skipping")
			continue
		}
		newIDs = append(newIDs, id)
		if err := e.store.SaveOrder(chain.Order{
			OrderID:      id,
			ChainID:      c.ChainID,
			Level:        next,
			ProfitTarget: c.Schedule.Target(next),
			SLReduction:  int(reduction.IntPart()),
			State:        chain.OrderOpen,
		}); err != nil {
			log.Error().Err(err).Int64("ticket", id).Msg("Order row not persisted")
		}
	}

	if len(newIDs) == 0 {
		log.Error().Str("chain_id", c.ChainID).Msg("Every placement failed, chain faulted")
		e.markFaulted(c, "no orders placed")
		return ErrNoOrdersPlaced
	}

	// Commit the transition: chain row first, then the event (a stored
	// event must never be ahead of its chain row).
	prevLevel, prevOrders, prevProfit, prevUpdated := c.CurrentLevel, c.ActiveOrders, c.TotalProfit, c.UpdatedAt
	c.CurrentLevel = next
	c.ActiveOrders = newIDs
	c.TotalProfit = c.TotalProfit.Add(pnl)
	c.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveChain(c); err != nil {
		c.CurrentLevel, c.ActiveOrders, c.TotalProfit, c.UpdatedAt = prevLevel, prevOrders, prevProfit, prevUpdated
		return e.fault(ent, err)
	}
	if err := e.store.AppendEvent(chain.Event{
		ChainID:      c.ChainID,
		FromLevel:    from,
		ToLevel:      next,
		ProfitBooked: pnl,
		OrdersClosed: ordersClosed,
		OrdersPlaced: len(newIDs),
		Ts:           c.UpdatedAt,
	}); err != nil {
		log.Error().Err(err).Str("chain_id", c.ChainID).Msg("Progression event not persisted")
	}
	ent.faults = 0

	if err := e.ledger.RecordTrade(pnl); err != nil {
		log.Error().Err(err).Msg("Booked profit not recorded in ledger")
	}

	if err := e.notifier.Send(notify.FormatLevelUp(notify.LevelUp{
		ChainID:       c.ChainID,
		FromLevel:     from,
		ToLevel:       next,
		ProfitBooked:  pnl,
		OrdersClosed:  ordersClosed,
		OrdersPlaced:  len(newIDs),
		NextTarget:    c.Schedule.Target(next),
		NextReduction: reduction,
	})); err != nil {
		log.Error().Err(err).Msg("Level-up notification failed")
	}

	log.Info().
		Str("chain_id", c.ChainID).
		Int("from", from).
		Int("to", next).
		Str("profit", pnl.StringFixed(2)).
		Int("closed", ordersClosed).
		Int("placed", len(newIDs)).
		Msg("✅ Profit booking executed")
	return nil
}

// fault counts a failed level-up attempt; the third consecutive one
// moves the chain to FAULTED and excludes it from future ticks.
func (e *Engine) fault(ent *entry, cause error) error {
	ent.faults++
	if ent.faults >= maxLevelUpFaults {
		e.markFaulted(ent.chain, cause.Error())
	}
	return cause
}

func (e *Engine) markFaulted(c *chain.Chain, reason string) {
	if err := c.Transition(chain.StatusFaulted); err != nil {
		return
	}
	if err := e.store.SaveChain(c); err != nil {
		log.Error().Err(err).Str("chain_id", c.ChainID).Msg("Faulted status not persisted")
	}
	log.Error().Str("chain_id", c.ChainID).Str("reason", reason).Msg("Chain faulted")
}

// Stop marks a chain STOPPED and persists it. Outstanding broker orders
// are left open on purpose: they keep their SL/TP and the surrounding
// system decides their fate.
func (e *Engine) Stop(chainID, reason string) error {
	ent, ok := e.lookup(chainID)
	if !ok {
		return ErrChainNotFound
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	c := ent.chain

	if c.Status.Terminal() {
		return nil
	}
	prev := c.Status
	if err := c.Transition(chain.StatusStopped); err != nil {
		return err
	}
	if err := e.store.SaveChain(c); err != nil {
		c.Status = prev
		return err
	}
	log.Info().Str("chain_id", chainID).Str("reason", reason).Msg("Chain stopped")
	return nil
}

// StopAll stops every active chain.
func (e *Engine) StopAll(reason string) {
	for _, id := range e.ActiveChainIDs() {
		if err := e.Stop(id, reason); err != nil {
			log.Error().Err(err).Str("chain_id", id).Msg("Stop failed")
		}
	}
}

// Chain returns a registered chain by id.
func (e *Engine) Chain(chainID string) (*chain.Chain, bool) {
	ent, ok := e.lookup(chainID)
	if !ok {
		return nil, false
	}
	return ent.chain, true
}

// ActiveChainIDs returns the ids of all chains currently ACTIVE.
func (e *Engine) ActiveChainIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.chains))
	for id, ent := range e.chains {
		if ent.chain.Status == chain.StatusActive {
			ids = append(ids, id)
		}
	}
	return ids
}

// ValidateChainState sweeps the chain's recorded orders against broker
// truth, logging a warning for every recorded order no longer open.
// Returns false when the chain is not registered.
func (e *Engine) ValidateChainState(chainID string, openTrades []*types.Trade) bool {
	ent, ok := e.lookup(chainID)
	if !ok {
		return false
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	c := ent.chain

	open := make(map[int64]bool, len(openTrades))
	for _, t := range openTrades {
		if t.IsOpen() {
			open[t.TradeID] = true
		}
	}
	for _, id := range c.ActiveOrders {
		if !open[id] {
			log.Warn().Str("chain_id", c.ChainID).Int64("ticket", id).Msg("Chain has missing order")
		}
	}
	return true
}

func (e *Engine) lookup(chainID string) (*entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ent, ok := e.chains[chainID]
	return ent, ok
}
