package ndax

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/event"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testCred = domain.Credential{
	APIKey:    "test-key",
	Secret:    "test-secret",
	UserID:    42,
	AccountID: 7,
	OMSID:     1,
}

// fakeExchange is a minimal NDAX gateway. It answers AuthenticateUser and
// LogOut and records every request it receives.
type fakeExchange struct {
	t        *testing.T
	srv      *httptest.Server
	authOK   bool
	received chan Frame

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	ready   chan struct{}
}

func newFakeExchange(t *testing.T, authOK bool) *fakeExchange {
	t.Helper()
	f := &fakeExchange{
		t:        t,
		authOK:   authOK,
		received: make(chan Frame, 64),
		ready:    make(chan struct{}),
	}

	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		close(f.ready)

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame Frame
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			f.received <- frame

			switch frame.N {
			case nameAuthenticate:
				f.reply(MsgReply, nameAuthenticate, map[string]any{"Authenticated": f.authOK, "errormsg": ""})
			case nameLogOut:
				f.reply(MsgReply, nameLogOut, map[string]any{"result": true})
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeExchange) uri() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

// reply writes a frame to the connected client.
func (f *fakeExchange) reply(m int, name string, payload any) {
	o, err := json.Marshal(payload)
	require.NoError(f.t, err)
	f.writeRaw(frameBytes(f.t, m, name, string(o)))
}

func (f *fakeExchange) writeRaw(b []byte) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// dropConnection closes the server side without a close handshake.
func (f *fakeExchange) dropConnection() {
	<-f.ready
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn.Close()
}

// next waits for the next request frame.
func (f *fakeExchange) next() Frame {
	f.t.Helper()
	select {
	case frame := <-f.received:
		return frame
	case <-time.After(2 * time.Second):
		f.t.Fatal("timed out waiting for a request frame")
		return Frame{}
	}
}

func frameBytes(t *testing.T, m int, name, o string) []byte {
	t.Helper()
	b, err := json.Marshal(Frame{M: m, I: 1, N: name, O: o})
	require.NoError(t, err)
	return b
}

// connectedSession dials ex and optionally authenticates.
func connectedSession(t *testing.T, ex *fakeExchange, authenticate bool) (*Session, *event.Fabric) {
	t.Helper()
	ctx := context.Background()
	fabric := event.NewFabric(event.DefaultCapacity)

	s := NewSession(ex.uri(), testCred)
	require.NoError(t, s.Connect(ctx))
	t.Cleanup(func() { s.Close() })

	if authenticate {
		require.NoError(t, s.Authenticate(ctx, fabric.MarketData))
		ex.next() // AuthenticateUser
	}
	return s, fabric
}

// getWithin pulls one envelope or fails the test.
func getWithin(t *testing.T, q *event.Queue) event.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, err := q.Get(ctx)
	require.NoError(t, err, "waiting on %s", q.Name())
	return env
}

// decodePayload unmarshals a request frame's "o" into a generic map.
func decodePayload(t *testing.T, frame Frame) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(frame.O), &m))
	return m
}
