package ui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ndax_bridge/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBroadcast(t *testing.T) {
	q, err := DecodeBroadcast([]byte(`{"action":"lvl1","data":{"timestamp_ms":1,"tkr_id":3,"tkr":"BTCUSD","best_bid":100.5,"best_ask":101}}`))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSD", q.TickerSymbol)
	assert.Equal(t, 100.5, q.BestBid)

	var me *domain.MalformedMessageError
	_, err = DecodeBroadcast([]byte(`{"action":"tkr","data":{}}`))
	assert.ErrorAs(t, err, &me)
	_, err = DecodeBroadcast([]byte(`garbage`))
	assert.ErrorAs(t, err, &me)
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)

	row := h.Add(domain.BroadcastQuote{InstrumentID: 3, BestBid: 100, BestAsk: 101})
	assert.Equal(t, TickFlat, row.BidTick)

	row = h.Add(domain.BroadcastQuote{InstrumentID: 3, BestBid: 101, BestAsk: 100.5})
	assert.Equal(t, TickUp, row.BidTick)
	assert.Equal(t, TickDown, row.AskTick)

	h.Add(domain.BroadcastQuote{InstrumentID: 1, BestBid: 5, BestAsk: 6})
	h.Add(domain.BroadcastQuote{InstrumentID: 3, BestBid: 102, BestAsk: 103})
	h.Add(domain.BroadcastQuote{InstrumentID: 3, BestBid: 103, BestAsk: 104})

	rows := h.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].Quote.InstrumentID)

	bids, asks := h.Series(3)
	assert.Equal(t, []float64{101, 102, 103}, bids, "series is bounded")
	assert.Equal(t, []float64{100.5, 103, 104}, asks)
}

func TestFeed_Run(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"lvl1","data":{"tkr_id":3,"tkr":"BTCUSD","best_bid":100.5}}`))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	out := make(chan domain.BroadcastQuote, 4)
	feed := NewFeed("ws" + strings.TrimPrefix(srv.URL, "http"))

	err := feed.Run(context.Background(), out)
	var ce *domain.ConnectionError
	require.ErrorAs(t, err, &ce, "server going away ends the feed")
	assert.Equal(t, "read", ce.Op)

	var got []domain.BroadcastQuote
	for q := range out {
		got = append(got, q)
	}
	require.Len(t, got, 1)
	assert.Equal(t, 100.5, got[0].BestBid)
}

func TestFeed_DialFailure(t *testing.T) {
	out := make(chan domain.BroadcastQuote)
	err := NewFeed("ws://127.0.0.1:1").Run(context.Background(), out)
	var ce *domain.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "dial", ce.Op)

	_, open := <-out
	assert.False(t, open)
}
