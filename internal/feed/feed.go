package feed

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/pyrabot/internal/broker"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRICE FEED - cached quotes for the chain engine
// ═══════════════════════════════════════════════════════════════════════════════

const pollInterval = 1 * time.Second

// Poller keeps a cache of broker quotes, refreshed on a fixed cadence,
// so a tick never blocks on the bridge for a price read. A missing or
// stale-zero quote stays zero; callers must not act on zero.
type Poller struct {
	mu      sync.RWMutex
	client  broker.Client
	symbols []string
	prices  map[string]decimal.Decimal
	running bool
	stopCh  chan struct{}
}

// NewPoller creates a feed polling the given symbols.
func NewPoller(client broker.Client, symbols []string) *Poller {
	return &Poller{
		client:  client,
		symbols: symbols,
		prices:  make(map[string]decimal.Decimal),
		stopCh:  make(chan struct{}),
	}
}

// Start begins polling.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.pollLoop()
	log.Info().Dur("interval", pollInterval).Strs("symbols", p.symbols).Msg("Price feed started")
}

// Stop stops polling.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	close(p.stopCh)
	log.Info().Msg("Price feed stopped")
}

// GetPrice returns the cached quote for symbol, zero when unknown.
func (p *Poller) GetPrice(symbol string) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prices[symbol]
}

func (p *Poller) pollLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	p.fetch()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.fetch()
		}
	}
}

func (p *Poller) fetch() {
	for _, sym := range p.symbols {
		price := p.client.GetPrice(sym)
		p.mu.Lock()
		p.prices[sym] = price
		p.mu.Unlock()
	}
}

// Direct reads straight through to the broker on every call. Used with
// the simulated broker, where a read is just a map lookup.
type Direct struct {
	Client broker.Client
}

// GetPrice implements the feed contract.
func (d Direct) GetPrice(symbol string) decimal.Decimal {
	return d.Client.GetPrice(symbol)
}
