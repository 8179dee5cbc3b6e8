package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/pyrabot/internal/types"
)

// Client is the broker contract the engine consumes. A zero price from
// GetPrice means no quote is available.
type Client interface {
	GetPrice(symbol string) decimal.Decimal
	GetBalance() decimal.Decimal
	PlaceOrder(symbol, side string, lot, price, sl, tp decimal.Decimal, comment string) (int64, error)
	CloseOrder(orderID int64, price decimal.Decimal) error
	OpenTrades() ([]*types.Trade, error)
}

const bridgeTimeout = 5 * time.Second

// Bridge talks to an MT5 REST bridge over HTTP. All calls carry the
// bridge timeout; an exceeded timeout counts as the operation failing.
type Bridge struct {
	baseURL    string
	httpClient *http.Client
}

// NewBridge creates a live broker client against the bridge URL.
func NewBridge(baseURL string) *Bridge {
	log.Info().Str("url", baseURL).Msg("Broker bridge client initialized")
	return &Bridge{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: bridgeTimeout},
	}
}

type priceResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type accountResponse struct {
	Balance float64 `json:"balance"`
}

type orderRequest struct {
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Lot     float64 `json:"lot"`
	Price   float64 `json:"price"`
	SL      float64 `json:"sl"`
	TP      float64 `json:"tp"`
	Comment string  `json:"comment"`
}

type orderResponse struct {
	Ticket int64 `json:"ticket"`
}

type bridgeTrade struct {
	Ticket      int64   `json:"ticket"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Entry       float64 `json:"entry"`
	SL          float64 `json:"sl"`
	TP          float64 `json:"tp"`
	Lot         float64 `json:"lot"`
	Comment     string  `json:"comment"`
	ChainID     string  `json:"chain_id"`
	ProfitLevel int     `json:"profit_level"`
	OpenTime    int64   `json:"open_time"`
}

// GetPrice fetches the current quote. Returns zero on any failure.
func (b *Bridge) GetPrice(symbol string) decimal.Decimal {
	var resp priceResponse
	if err := b.get("/price?symbol="+url.QueryEscape(symbol), &resp); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Price fetch failed")
		return decimal.Zero
	}
	return decimal.NewFromFloat(resp.Price)
}

// GetBalance fetches the account balance. Returns zero on failure.
func (b *Bridge) GetBalance() decimal.Decimal {
	var resp accountResponse
	if err := b.get("/account", &resp); err != nil {
		log.Warn().Err(err).Msg("Balance fetch failed")
		return decimal.Zero
	}
	return decimal.NewFromFloat(resp.Balance)
}

// PlaceOrder submits a market order and returns the broker ticket.
func (b *Bridge) PlaceOrder(symbol, side string, lot, price, sl, tp decimal.Decimal, comment string) (int64, error) {
	req := orderRequest{
		Symbol:  symbol,
		Side:    side,
		Lot:     lot.InexactFloat64(),
		Price:   price.InexactFloat64(),
		SL:      sl.InexactFloat64(),
		TP:      tp.InexactFloat64(),
		Comment: comment,
	}
	var resp orderResponse
	if err := b.post("/orders", req, &resp); err != nil {
		return 0, fmt.Errorf("broker: place order: %w", err)
	}
	log.Info().
		Int64("ticket", resp.Ticket).
		Str("symbol", symbol).
		Str("side", side).
		Str("lot", lot.String()).
		Msg("Order placed")
	return resp.Ticket, nil
}

// CloseOrder closes an open position at the given price.
func (b *Bridge) CloseOrder(orderID int64, price decimal.Decimal) error {
	body := map[string]float64{"price": price.InexactFloat64()}
	if err := b.post(fmt.Sprintf("/orders/%d/close", orderID), body, nil); err != nil {
		return fmt.Errorf("broker: close order %d: %w", orderID, err)
	}
	return nil
}

// OpenTrades lists live open positions, the broker's source of truth
// for reconciliation.
func (b *Bridge) OpenTrades() ([]*types.Trade, error) {
	var raw []bridgeTrade
	if err := b.get("/trades", &raw); err != nil {
		return nil, fmt.Errorf("broker: list trades: %w", err)
	}
	trades := make([]*types.Trade, len(raw))
	for i, t := range raw {
		trades[i] = &types.Trade{
			TradeID:     t.Ticket,
			Symbol:      t.Symbol,
			Direction:   t.Side,
			Entry:       decimal.NewFromFloat(t.Entry),
			SL:          decimal.NewFromFloat(t.SL),
			TP:          decimal.NewFromFloat(t.TP),
			LotSize:     decimal.NewFromFloat(t.Lot),
			Status:      types.TradeOpen,
			ChainID:     t.ChainID,
			ProfitLevel: t.ProfitLevel,
			OpenTime:    time.Unix(t.OpenTime, 0).UTC(),
		}
	}
	return trades, nil
}

func (b *Bridge) get(path string, out any) error {
	resp, err := b.httpClient.Get(b.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (b *Bridge) post(path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Post(b.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
