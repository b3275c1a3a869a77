package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/infra"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	tradeHistoryTable      = "trade_history"
	paperTradeHistoryTable = "paper_trade_history"
)

// Storage persists market data and trade history through gorm.
type Storage struct {
	db         *gorm.DB
	orderTable string
}

var _ domain.MarketDataStore = (*Storage)(nil)

// NewStorage opens the database selected by cfg.Database.Driver and migrates the schema.
func NewStorage(cfg *infra.Config) (*Storage, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	return Open(dialector, cfg.App.Live)
}

// Open connects with an explicit dialector. live selects the order history table.
func Open(dialector gorm.Dialector, live bool) (*Storage, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.TickerBar{}, &domain.Level1Quote{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	for _, table := range []string{tradeHistoryTable, paperTradeHistoryTable} {
		if err := db.Table(table).AutoMigrate(&domain.OrderRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate %s: %w", table, err)
		}
	}

	s := &Storage{db: db, orderTable: paperTradeHistoryTable}
	if live {
		s.orderTable = tradeHistoryTable
	}
	return s, nil
}

func dialectorFor(cfg *infra.Config) (gorm.Dialector, error) {
	db := cfg.Database
	switch db.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
			db.User, db.Password, db.Host, db.Port, db.Name)
		return mysql.Open(dsn), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(db.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
		return sqlite.Open(db.SQLitePath), nil
	default:
		return nil, &domain.ConfigError{Field: "database.driver", Err: fmt.Errorf("unsupported driver %q", db.Driver)}
	}
}

// OrderTable is the trade history table orders are written to.
func (s *Storage) OrderTable() string { return s.orderTable }

// SaveTickerBars bulk inserts bars; rows already stored are ignored.
func (s *Storage) SaveTickerBars(ctx context.Context, bars []domain.TickerBar) error {
	if len(bars) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&bars).Error
}

// SaveLevel1 inserts a quote; a duplicate (instrument, timestamp) is ignored.
func (s *Storage) SaveLevel1(ctx context.Context, quote domain.Level1Quote) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&quote).Error
}

// SaveOrder appends to the live or paper trade history.
func (s *Storage) SaveOrder(ctx context.Context, rec domain.OrderRecord) error {
	rec.ID = 0
	return s.db.WithContext(ctx).Table(s.orderTable).Create(&rec).Error
}

// ClearPaperOrders empties the paper trade history, done at startup in paper mode.
func (s *Storage) ClearPaperOrders(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Table(paperTradeHistoryTable).Where("1 = 1").Delete(&domain.OrderRecord{})
	return res.RowsAffected, res.Error
}

// Orders returns the stored history of the given table, oldest first.
func (s *Storage) Orders(ctx context.Context, table string) ([]domain.OrderRecord, error) {
	var recs []domain.OrderRecord
	err := s.db.WithContext(ctx).Table(table).Order("id").Find(&recs).Error
	return recs, err
}

// CountTickerBars and CountLevel1 report row counts.
func (s *Storage) CountTickerBars(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.TickerBar{}).Count(&n).Error
	return n, err
}

func (s *Storage) CountLevel1(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Level1Quote{}).Count(&n).Error
	return n, err
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
