package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/pyrabot/internal/chain"
)

// Store persists chains, per-order chain membership and progression
// events. Backend is chosen by DSN: postgres:// URLs open Postgres,
// anything else is treated as a sqlite path (":memory:" included).
type Store struct {
	db *gorm.DB
}

// Models

// ChainRow is the chains table. The schedule and seed metadata are
// serialised JSON so recovery replays the schedule the chain was
// created under rather than the current config.
type ChainRow struct {
	ChainID      string `gorm:"primaryKey"`
	Symbol       string
	Direction    string
	BaseLot      decimal.Decimal `gorm:"type:decimal(10,2)"`
	CurrentLevel int
	MaxLevel     int
	TotalProfit  decimal.Decimal `gorm:"type:decimal(20,2)"`
	Status       string          `gorm:"index"`
	Schedule     string
	Metadata     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ChainRow) TableName() string { return "chains" }

// ChainOrderRow is the chain_orders table.
type ChainOrderRow struct {
	OrderID      int64  `gorm:"primaryKey;autoIncrement:false"`
	ChainID      string `gorm:"index"`
	Level        int
	ProfitTarget decimal.Decimal `gorm:"type:decimal(20,2)"`
	SLReduction  int
	State        string `gorm:"index"`
}

func (ChainOrderRow) TableName() string { return "chain_orders" }

// ChainEventRow is the append-only chain_events table.
type ChainEventRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	ChainID      string `gorm:"index"`
	FromLevel    int
	ToLevel      int
	ProfitBooked decimal.Decimal `gorm:"type:decimal(20,2)"`
	OrdersClosed int
	OrdersPlaced int
	Ts           time.Time
}

func (ChainEventRow) TableName() string { return "chain_events" }

// Open connects to the backend named by dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		log.Info().Msg("Chain store connected (PostgreSQL)")
	} else {
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("store: create db dir: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("store: open sqlite: %w", err)
		}
		// sqlite supports one writer, and a second pooled connection to
		// ":memory:" would be a different database entirely.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
		log.Info().Str("path", dsn).Msg("Chain store initialized (SQLite)")
	}

	if err := db.AutoMigrate(&ChainRow{}, &ChainOrderRow{}, &ChainEventRow{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveChain upserts a chain by chain_id.
func (s *Store) SaveChain(c *chain.Chain) error {
	row, err := toChainRow(c)
	if err != nil {
		return err
	}
	if err := s.db.Save(row).Error; err != nil {
		return fmt.Errorf("store: save chain %s: %w", c.ChainID, err)
	}
	return nil
}

// SaveOrder upserts a chain order by order_id.
func (s *Store) SaveOrder(o chain.Order) error {
	row := ChainOrderRow{
		OrderID:      o.OrderID,
		ChainID:      o.ChainID,
		Level:        o.Level,
		ProfitTarget: o.ProfitTarget,
		SLReduction:  o.SLReduction,
		State:        o.State,
	}
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("store: save order %d: %w", o.OrderID, err)
	}
	return nil
}

// AppendEvent records a progression event. Append-only.
func (s *Store) AppendEvent(e chain.Event) error {
	row := ChainEventRow{
		ChainID:      e.ChainID,
		FromLevel:    e.FromLevel,
		ToLevel:      e.ToLevel,
		ProfitBooked: e.ProfitBooked,
		OrdersClosed: e.OrdersClosed,
		OrdersPlaced: e.OrdersPlaced,
		Ts:           e.Ts,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("store: append event for %s: %w", e.ChainID, err)
	}
	return nil
}

// LoadActiveChains returns every chain with status ACTIVE, rebuilt from
// its persisted row including the creation-time schedule.
func (s *Store) LoadActiveChains() ([]*chain.Chain, error) {
	var rows []ChainRow
	if err := s.db.Where("status = ?", string(chain.StatusActive)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: load active chains: %w", err)
	}
	chains := make([]*chain.Chain, 0, len(rows))
	for _, row := range rows {
		c, err := fromChainRow(row)
		if err != nil {
			log.Error().Err(err).Str("chain_id", row.ChainID).Msg("Skipping unreadable chain row")
			continue
		}
		chains = append(chains, c)
	}
	return chains, nil
}

// LoadOrdersForChain returns the chain's orders in the given state.
func (s *Store) LoadOrdersForChain(chainID, state string) ([]chain.Order, error) {
	var rows []ChainOrderRow
	if err := s.db.Where("chain_id = ? AND state = ?", chainID, state).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: load orders for %s: %w", chainID, err)
	}
	orders := make([]chain.Order, len(rows))
	for i, row := range rows {
		orders[i] = chain.Order{
			OrderID:      row.OrderID,
			ChainID:      row.ChainID,
			Level:        row.Level,
			ProfitTarget: row.ProfitTarget,
			SLReduction:  row.SLReduction,
			State:        row.State,
		}
	}
	return orders, nil
}

// LoadEventsForChain returns the chain's progression events, oldest first.
func (s *Store) LoadEventsForChain(chainID string) ([]chain.Event, error) {
	var rows []ChainEventRow
	if err := s.db.Where("chain_id = ?", chainID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: load events for %s: %w", chainID, err)
	}
	events := make([]chain.Event, len(rows))
	for i, row := range rows {
		events[i] = chain.Event{
			ChainID:      row.ChainID,
			FromLevel:    row.FromLevel,
			ToLevel:      row.ToLevel,
			ProfitBooked: row.ProfitBooked,
			OrdersClosed: row.OrdersClosed,
			OrdersPlaced: row.OrdersPlaced,
			Ts:           row.Ts,
		}
	}
	return events, nil
}

// LoadChain returns one chain row by id regardless of status.
func (s *Store) LoadChain(chainID string) (*chain.Chain, error) {
	var row ChainRow
	if err := s.db.First(&row, "chain_id = ?", chainID).Error; err != nil {
		return nil, fmt.Errorf("store: load chain %s: %w", chainID, err)
	}
	return fromChainRow(row)
}

func toChainRow(c *chain.Chain) (*ChainRow, error) {
	sched, err := json.Marshal(c.Schedule)
	if err != nil {
		return nil, fmt.Errorf("store: marshal schedule for %s: %w", c.ChainID, err)
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("store: marshal metadata for %s: %w", c.ChainID, err)
	}
	return &ChainRow{
		ChainID:      c.ChainID,
		Symbol:       c.Symbol,
		Direction:    c.Direction,
		BaseLot:      c.BaseLot,
		CurrentLevel: c.CurrentLevel,
		MaxLevel:     c.MaxLevel,
		TotalProfit:  c.TotalProfit,
		Status:       string(c.Status),
		Schedule:     string(sched),
		Metadata:     string(meta),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}, nil
}

func fromChainRow(row ChainRow) (*chain.Chain, error) {
	var sched chain.Schedule
	if err := json.Unmarshal([]byte(row.Schedule), &sched); err != nil {
		return nil, fmt.Errorf("store: unmarshal schedule for %s: %w", row.ChainID, err)
	}
	var meta chain.Metadata
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("store: unmarshal metadata for %s: %w", row.ChainID, err)
		}
	}
	return &chain.Chain{
		ChainID:      row.ChainID,
		Symbol:       row.Symbol,
		Direction:    row.Direction,
		BaseLot:      row.BaseLot,
		CurrentLevel: row.CurrentLevel,
		MaxLevel:     row.MaxLevel,
		TotalProfit:  row.TotalProfit,
		Status:       chain.Status(row.Status),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		Schedule:     sched,
		Metadata:     meta,
	}, nil
}
