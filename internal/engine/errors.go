package engine

import "errors"

// Error kinds the engine distinguishes. Transient conditions
// (ErrPriceUnavailable, broker timeouts) count toward fault escalation;
// persistence failures abort the operation without mutating in-memory
// state; the rest are caller mistakes.
var (
	ErrDisabled         = errors.New("engine: profit booking disabled")
	ErrNotProfitTrail   = errors.New("engine: seed trade is not PROFIT_TRAIL")
	ErrChainNotFound    = errors.New("engine: chain not found")
	ErrPriceUnavailable = errors.New("engine: price unavailable")
	ErrRiskBlocked      = errors.New("engine: risk governor blocked new cohort")
	ErrNoOrdersPlaced   = errors.New("engine: no orders placed for next level")
)
