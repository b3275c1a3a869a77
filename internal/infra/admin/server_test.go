package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/engine"
	"ndax_bridge/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	authenticated bool
}

func (f fakeSession) IsAuthenticated() bool { return f.authenticated }

func (f fakeSession) Subscriptions() []domain.Subscription {
	return []domain.Subscription{{InstrumentID: 3, Kind: domain.SubscriptionLevel1}}
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Endpoints(t *testing.T) {
	book := service.NewQuoteBook()
	book.Update(domain.Level1Quote{
		TimestampMs:  1700000000123,
		InstrumentID: 3,
		BestBid:      decimal.RequireFromString("100.5"),
		BestAsk:      decimal.RequireFromString("101"),
		TickerSymbol: "BTCUSD",
	})

	s := NewServer("127.0.0.1:0", Sources{
		Session:     fakeSession{authenticated: true},
		Quotes:      book,
		Engine:      func() engine.State { return engine.State{BarsSeen: 4} },
		QueueDepths: func() map[string]int { return map[string]int{"market_data": 2} },
		Subscribers: func() int { return 1 },
	})

	testCases := []struct {
		name         string
		path         string
		wantStatus   int
		bodyContains string
	}{
		{"health", "/sys/health", http.StatusOK, `"UP"`},
		{"ready", "/sys/ready", http.StatusOK, `"level1:3"`},
		{"metrics", "/sys/metrics", http.StatusOK, `"market_data":2`},
		{"quotes", "/sys/quotes", http.StatusOK, `"best_bid":100.5`},
		{"quote", "/sys/quotes/3", http.StatusOK, `"best_bid":"100.5"`},
		{"quote missing", "/sys/quotes/9", http.StatusNotFound, "no quote"},
		{"quote bad id", "/sys/quotes/abc", http.StatusBadRequest, "integer"},
		{"engine", "/sys/engine", http.StatusOK, `"bars_seen":4`},
		{"pprof", "/debug/pprof/cmdline", http.StatusOK, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, tc.path)
			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tc.bodyContains)
		})
	}
}

func TestServer_NotReady(t *testing.T) {
	s := NewServer("127.0.0.1:0", Sources{Session: fakeSession{}})

	w := do(t, s, "/sys/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, s, "/sys/quotes")
	require.Equal(t, http.StatusOK, w.Code)
	var quotes []domain.BroadcastQuote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quotes))
	assert.Empty(t, quotes)

	assert.Equal(t, http.StatusNotFound, do(t, s, "/sys/engine").Code)
}
