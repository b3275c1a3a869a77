package service

import (
	"sort"
	"sync"

	"ndax_bridge/internal/domain"

	"github.com/shopspring/decimal"
)

// QuoteBook keeps the latest level1 quote and ticker bar per instrument.
type QuoteBook struct {
	mu     sync.RWMutex
	quotes map[int64]domain.Level1Quote
	bars   map[int64]domain.TickerBar
}

// NewQuoteBook creates an empty book.
func NewQuoteBook() *QuoteBook {
	return &QuoteBook{
		quotes: make(map[int64]domain.Level1Quote),
		bars:   make(map[int64]domain.TickerBar),
	}
}

// Update stores q unless a newer quote for the instrument is already held.
func (b *QuoteBook) Update(q domain.Level1Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.quotes[q.InstrumentID]; ok && cur.TimestampMs > q.TimestampMs {
		return
	}
	b.quotes[q.InstrumentID] = q
}

// UpdateBars records the most recent bar of each instrument in bars.
func (b *QuoteBook) UpdateBars(bars []domain.TickerBar) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, bar := range bars {
		if cur, ok := b.bars[bar.InstrumentID]; ok && cur.TimestampMs > bar.TimestampMs {
			continue
		}
		b.bars[bar.InstrumentID] = bar
	}
}

// Get returns the latest quote for an instrument.
func (b *QuoteBook) Get(instrumentID int64) (domain.Level1Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	q, ok := b.quotes[instrumentID]
	return q, ok
}

// LastClose returns the close of the latest bar for an instrument.
func (b *QuoteBook) LastClose(instrumentID int64) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bar, ok := b.bars[instrumentID]
	return bar.Close, ok
}

// All returns every quote sorted by instrument id.
func (b *QuoteBook) All() []domain.Level1Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]domain.Level1Quote, 0, len(b.quotes))
	for _, q := range b.quotes {
		result = append(result, q)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].InstrumentID < result[j].InstrumentID
	})
	return result
}

// Mid is the midpoint of the latest best bid and ask.
func (b *QuoteBook) Mid(instrumentID int64) (decimal.Decimal, bool) {
	q, ok := b.Get(instrumentID)
	if !ok || q.BestBid.IsZero() || q.BestAsk.IsZero() {
		return decimal.Zero, false
	}
	return q.BestBid.Add(q.BestAsk).Div(decimal.NewFromInt(2)), true
}
