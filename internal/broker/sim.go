package broker

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/pyrabot/internal/types"
)

// Simulator is a broker that never leaves the process. Orders get
// synthetic tickets in [100000, 999999] and fills are instant at the
// requested price. Selected at wiring time when simulate_orders is set;
// the engine itself never branches on simulation.
type Simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	prices  map[string]decimal.Decimal
	balance decimal.Decimal
	trades  map[int64]*types.Trade

	// Failure injection for tests: tickets the next PlaceOrder calls
	// should reject, consumed in order.
	rejectNext int
}

// NewSimulator creates a simulated broker with the given balance.
func NewSimulator(balance decimal.Decimal) *Simulator {
	log.Info().Str("balance", balance.StringFixed(2)).Msg("Simulated broker initialized")
	return &Simulator{
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		prices:  make(map[string]decimal.Decimal),
		balance: balance,
		trades:  make(map[int64]*types.Trade),
	}
}

// SetPrice sets the quote returned for a symbol.
func (s *Simulator) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// SetBalance overrides the account balance.
func (s *Simulator) SetBalance(balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
}

// RejectNextOrders makes the next n PlaceOrder calls fail.
func (s *Simulator) RejectNextOrders(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext = n
}

// AddTrade registers an externally created trade (e.g. a seed order).
func (s *Simulator) AddTrade(t *types.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[t.TradeID] = t
}

// NextTicket returns an unused synthetic ticket id.
func (s *Simulator) NextTicket() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextTicketLocked()
}

func (s *Simulator) nextTicketLocked() int64 {
	for {
		ticket := int64(100000 + s.rng.Intn(900000))
		if _, taken := s.trades[ticket]; !taken {
			return ticket
		}
	}
}

// GetPrice implements Client.
func (s *Simulator) GetPrice(symbol string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prices[symbol]
}

// GetBalance implements Client.
func (s *Simulator) GetBalance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// PlaceOrder implements Client with an instant fill.
func (s *Simulator) PlaceOrder(symbol, side string, lot, price, sl, tp decimal.Decimal, comment string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rejectNext > 0 {
		s.rejectNext--
		return 0, fmt.Errorf("sim: order rejected")
	}

	ticket := s.nextTicketLocked()
	s.trades[ticket] = &types.Trade{
		TradeID:   ticket,
		Symbol:    symbol,
		Direction: side,
		Entry:     price,
		SL:        sl,
		TP:        tp,
		LotSize:   lot,
		Status:    types.TradeOpen,
		OpenTime:  time.Now().UTC(),
	}
	log.Debug().
		Int64("ticket", ticket).
		Str("symbol", symbol).
		Str("side", side).
		Str("comment", comment).
		Msg("Simulated order placed")
	return ticket, nil
}

// CloseOrder implements Client.
func (s *Simulator) CloseOrder(orderID int64, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[orderID]
	if !ok {
		return fmt.Errorf("sim: unknown ticket %d", orderID)
	}
	if t.Status != types.TradeOpen {
		return fmt.Errorf("sim: ticket %d already closed", orderID)
	}
	t.Status = types.TradeClosed
	return nil
}

// OpenTrades implements Client. Returned trades are copies, like the
// live bridge builds fresh objects per listing: callers may read the
// snapshot concurrently with CloseOrder mutating the originals.
func (s *Simulator) OpenTrades() ([]*types.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open []*types.Trade
	for _, t := range s.trades {
		if t.Status == types.TradeOpen {
			cp := *t
			open = append(open, &cp)
		}
	}
	return open, nil
}
