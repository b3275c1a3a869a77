package strategy

import (
	"fmt"

	"ndax_bridge/internal/domain"

	"github.com/shopspring/decimal"
)

// SMACrossStrategy implements a simple SMA Crossover strategy on bar closes.
// It is stateful and deterministic.
// Prices are kept in a ring buffer sized to the long period.
type SMACrossStrategy struct {
	instrumentID int64
	shortPeriod  int
	longPeriod   int
	qty          decimal.Decimal

	// State (Ring Buffer)
	prices []decimal.Decimal
	head   int             // Current write position
	count  int             // Number of elements filled
	sum    decimal.Decimal // Running sum over the long period

	primed       bool
	prevShortSMA decimal.Decimal
	prevLongSMA  decimal.Decimal
}

// NewSMACrossStrategy creates a new instance.
func NewSMACrossStrategy(instrumentID int64, shortPeriod, longPeriod int, qty decimal.Decimal) (*SMACrossStrategy, error) {
	if shortPeriod <= 0 || shortPeriod >= longPeriod {
		return nil, fmt.Errorf("sma cross: short period %d must be positive and less than long period %d", shortPeriod, longPeriod)
	}
	if !qty.IsPositive() {
		return nil, fmt.Errorf("sma cross: order quantity must be positive, got %s", qty)
	}
	return &SMACrossStrategy{
		instrumentID: instrumentID,
		shortPeriod:  shortPeriod,
		longPeriod:   longPeriod,
		qty:          qty,
		prices:       make([]decimal.Decimal, longPeriod),
		sum:          decimal.Zero,
	}, nil
}

// OnTicker processes a bar and generates cross signals.
func (s *SMACrossStrategy) OnTicker(bar domain.TickerBar) []Action {
	// 1. Filter by instrument
	if bar.InstrumentID != s.instrumentID {
		return nil
	}

	price := bar.Close

	// 2. Update price history.
	// When full, head points at the oldest value.
	if s.count == s.longPeriod {
		s.sum = s.sum.Sub(s.prices[s.head])
	}
	s.prices[s.head] = price
	s.sum = s.sum.Add(price)
	s.head = (s.head + 1) % s.longPeriod
	if s.count < s.longPeriod {
		s.count++
	}

	// 3. Check if we have enough data
	if s.count < s.longPeriod {
		return nil
	}

	// 4. Calculate SMAs
	currLongSMA := s.sum.Div(decimal.NewFromInt(int64(s.longPeriod)))
	currShortSMA := s.calculateShortSMA()

	var actions []Action

	// 5. Check for Cross
	if s.primed {
		// Golden Cross: Short goes above Long
		if s.prevShortSMA.LessThanOrEqual(s.prevLongSMA) && currShortSMA.GreaterThan(currLongSMA) {
			actions = append(actions, s.action(domain.SideBuy, price))
		}

		// Dead Cross: Short goes below Long
		if s.prevShortSMA.GreaterThanOrEqual(s.prevLongSMA) && currShortSMA.LessThan(currLongSMA) {
			actions = append(actions, s.action(domain.SideSell, price))
		}
	}

	// 6. Update State
	s.prevShortSMA = currShortSMA
	s.prevLongSMA = currLongSMA
	s.primed = true

	return actions
}

func (s *SMACrossStrategy) action(side domain.Side, price decimal.Decimal) Action {
	return Action{
		Side:         side,
		InstrumentID: s.instrumentID,
		Price:        price,
		Qty:          s.qty,
	}
}

// calculateShortSMA walks backwards from head over the short period.
func (s *SMACrossStrategy) calculateShortSMA() decimal.Decimal {
	sum := decimal.Zero
	idx := s.head
	for i := 0; i < s.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum = sum.Add(s.prices[idx])
	}
	return sum.Div(decimal.NewFromInt(int64(s.shortPeriod)))
}
