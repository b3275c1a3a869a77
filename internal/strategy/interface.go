package strategy

import (
	"ndax_bridge/internal/domain"

	"github.com/shopspring/decimal"
)

// Action represents a decision made by the strategy
type Action struct {
	Side         domain.Side
	InstrumentID int64
	Price        decimal.Decimal
	Qty          decimal.Decimal
}

// Strategy is the interface that all trading strategies must implement.
// It is called synchronously by the Engine.
type Strategy interface {
	// OnTicker is called for every ticker bar received.
	// It returns a list of Actions to be executed.
	OnTicker(bar domain.TickerBar) []Action
}
