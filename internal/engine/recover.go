package engine

import (
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/pyrabot/internal/chain"
	"github.com/web3guy0/pyrabot/internal/types"
)

// Recover rebuilds in-memory chains after a restart. Persisted ACTIVE
// rows supply the chain state (including the creation-time schedule);
// cohort membership comes from the chain's persisted OPEN order rows
// and from broker-side chain tags, both intersected with the live open
// trades. Open trades tagged with a chain id that no longer resolves
// are orphans: their tag is cleared so nothing acts on a dead chain.
//
// Returns the number of chains recovered.
func (e *Engine) Recover(openTrades []*types.Trade) (int, error) {
	chains, err := e.store.LoadActiveChains()
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	for _, c := range chains {
		recorded := make(map[int64]bool)
		rows, err := e.store.LoadOrdersForChain(c.ChainID, chain.OrderOpen)
		if err != nil {
			log.Error().Err(err).Str("chain_id", c.ChainID).Msg("Order rows unreadable, falling back to trade tags")
		}
		for _, row := range rows {
			recorded[row.OrderID] = true
		}

		var orders []int64
		for _, t := range openTrades {
			if !t.IsOpen() {
				continue
			}
			if !recorded[t.TradeID] && t.ChainID != c.ChainID {
				continue
			}
			orders = append(orders, t.TradeID)
			// Re-stamp so downstream consumers see membership even when
			// the broker lost the tag.
			t.ChainID = c.ChainID
			t.ProfitLevel = c.CurrentLevel
		}
		c.ActiveOrders = orders
		e.chains[c.ChainID] = &entry{chain: c}
		log.Info().
			Str("chain_id", c.ChainID).
			Int("level", c.CurrentLevel).
			Int("orders", len(orders)).
			Msg("✅ Chain recovered")
	}
	e.mu.Unlock()

	e.clearOrphans(openTrades)

	log.Info().Int("chains", len(chains)).Msg("Chain recovery complete")
	return len(chains), nil
}

// clearOrphans strips chain tags from open trades whose chain is not
// registered. Broker orders themselves are untouched.
func (e *Engine) clearOrphans(openTrades []*types.Trade) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, t := range openTrades {
		if t.ChainID == "" {
			continue
		}
		if _, ok := e.chains[t.ChainID]; ok {
			continue
		}
		log.Warn().
			Int64("ticket", t.TradeID).
			Str("chain_id", t.ChainID).
			Msg("Cleared orphaned order from missing chain")
		t.ChainID = ""
		t.ProfitLevel = 0
	}
}
