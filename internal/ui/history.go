package ui

import (
	"sort"
	"sync"

	"ndax_bridge/internal/domain"
)

// Tick is the direction of a price relative to the previous quote.
type Tick int

const (
	TickFlat Tick = iota
	TickUp
	TickDown
)

// Row is one instrument line of the dashboard.
type Row struct {
	Quote   domain.BroadcastQuote
	BidTick Tick
	AskTick Tick
}

// History keeps the latest quote and a bounded bid/ask series per instrument.
type History struct {
	maxLen int

	mu     sync.RWMutex
	rows   map[int64]Row
	bids   map[int64][]float64
	asks   map[int64][]float64
	symbol map[int64]string
}

// NewHistory creates a history keeping maxLen points per series.
func NewHistory(maxLen int) *History {
	if maxLen <= 0 {
		maxLen = maxHistorySize
	}
	return &History{
		maxLen: maxLen,
		rows:   make(map[int64]Row),
		bids:   make(map[int64][]float64),
		asks:   make(map[int64][]float64),
		symbol: make(map[int64]string),
	}
}

// Add records q and returns its row.
func (h *History) Add(q domain.BroadcastQuote) Row {
	h.mu.Lock()
	defer h.mu.Unlock()

	row := Row{Quote: q}
	if prev, ok := h.rows[q.InstrumentID]; ok {
		row.BidTick = tick(prev.Quote.BestBid, q.BestBid)
		row.AskTick = tick(prev.Quote.BestAsk, q.BestAsk)
	}
	h.rows[q.InstrumentID] = row
	h.symbol[q.InstrumentID] = q.TickerSymbol
	h.bids[q.InstrumentID] = h.push(h.bids[q.InstrumentID], q.BestBid)
	h.asks[q.InstrumentID] = h.push(h.asks[q.InstrumentID], q.BestAsk)
	return row
}

func (h *History) push(series []float64, v float64) []float64 {
	if len(series) >= h.maxLen {
		series = series[1:]
	}
	return append(series, v)
}

func tick(prev, cur float64) Tick {
	switch {
	case cur > prev:
		return TickUp
	case cur < prev:
		return TickDown
	default:
		return TickFlat
	}
}

// Rows returns the latest row of every instrument, sorted by instrument id.
func (h *History) Rows() []Row {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rows := make([]Row, 0, len(h.rows))
	for _, r := range h.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Quote.InstrumentID < rows[j].Quote.InstrumentID
	})
	return rows
}

// Series returns copies of the bid and ask series of an instrument.
func (h *History) Series(instrumentID int64) (bids, asks []float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	bids = append([]float64(nil), h.bids[instrumentID]...)
	asks = append([]float64(nil), h.asks[instrumentID]...)
	return bids, asks
}
