package ndax

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/event"
	"ndax_bridge/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout      = 10 * time.Second
	defaultTickerInterval = 60
)

// Conn is the subset of *websocket.Conn the session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session owns the single connection to the exchange.
// Writes are serialized; exactly one goroutine (the dispatcher) reads.
type Session struct {
	uri            string
	cred           domain.Credential
	signer         *Signer
	dialer         *websocket.Dialer
	tickerInterval int

	mu      sync.RWMutex
	conn    Conn
	writeMu sync.Mutex

	authenticated atomic.Bool
	closed        atomic.Bool
	closeOnce     sync.Once

	// Request ids start at the creation second and only grow.
	seq atomic.Int64

	subMu sync.Mutex
	subs  map[domain.Subscription]struct{}

	logger *slog.Logger
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithTickerInterval sets the SubscribeTicker bar interval in seconds.
func WithTickerInterval(sec int) SessionOption {
	return func(s *Session) {
		if sec > 0 {
			s.tickerInterval = sec
		}
	}
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) SessionOption {
	return func(s *Session) { s.dialer = d }
}

// NewSession creates an unconnected session.
func NewSession(uri string, cred domain.Credential, opts ...SessionOption) *Session {
	s := &Session{
		uri:            uri,
		cred:           cred,
		signer:         NewSigner(cred),
		dialer:         &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		tickerInterval: defaultTickerInterval,
		subs:           make(map[domain.Subscription]struct{}),
		logger:         slog.Default().With("module", "ndax_session"),
	}
	s.seq.Store(time.Now().Unix())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials the exchange. There is no retry.
func (s *Session) Connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.uri, nil)
	if err != nil {
		return &domain.ConnectionError{Op: "dial", URI: s.uri, Err: err}
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("Connected to NDAX", slog.String("uri", s.uri))
	return nil
}

// Authenticate performs the login handshake and reads exactly one reply.
// On any failure a quit is pushed onto marketData so the shutdown cascade
// starts, and an error wrapping domain.ErrAuthenticationFailed is returned.
func (s *Session) Authenticate(ctx context.Context, marketData *event.Queue) error {
	if err := s.send(ctx, nameAuthenticate, s.signer.Request()); err != nil {
		return s.authFailed(ctx, marketData, err)
	}

	raw, err := s.ReadMessage()
	if err != nil {
		return s.authFailed(ctx, marketData, err)
	}

	_, payload, err := DecodeFrame(raw)
	if err != nil {
		return s.authFailed(ctx, marketData, err)
	}

	var reply authReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return s.authFailed(ctx, marketData, fmt.Errorf("decode auth reply: %w", err))
	}
	if !reply.Authenticated {
		return s.authFailed(ctx, marketData, fmt.Errorf("rejected: %q", reply.ErrorMsg))
	}

	s.authenticated.Store(true)
	infra.GlobalMetrics.SetAuthenticated(true)
	s.logger.Info("NDAX user authenticated", slog.Int64("user_id", s.cred.UserID))
	return nil
}

func (s *Session) authFailed(ctx context.Context, marketData *event.Queue, cause error) error {
	s.logger.Warn("NDAX user not authenticated", slog.Any("error", cause))
	if err := marketData.Put(ctx, event.Quit()); err != nil {
		s.logger.Warn("Could not signal quit to strategy", slog.Any("error", err))
	}
	return fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, cause)
}

// IsAuthenticated reports whether the login handshake succeeded.
func (s *Session) IsAuthenticated() bool {
	return s.authenticated.Load()
}

// Subscribe starts a market data stream for one instrument.
func (s *Session) Subscribe(ctx context.Context, instrumentID int64, kind domain.SubscriptionKind) error {
	var err error
	switch kind {
	case domain.SubscriptionTicker:
		err = s.send(ctx, nameSubscribeTicker, subscribeTickerRequest{
			OMSID:            s.cred.OMSID,
			InstrumentID:     instrumentID,
			Interval:         s.tickerInterval,
			IncludeLastCount: 0,
		})
	case domain.SubscriptionLevel1:
		err = s.send(ctx, nameSubscribeLevel1, instrumentRequest{OMSID: s.cred.OMSID, InstrumentID: instrumentID})
	default:
		return fmt.Errorf("unknown subscription kind %q", kind)
	}
	if err != nil {
		return err
	}

	sub := domain.Subscription{InstrumentID: instrumentID, Kind: kind}
	s.subMu.Lock()
	s.subs[sub] = struct{}{}
	s.subMu.Unlock()

	s.logger.Info("Subscribed", slog.String("subscription", sub.String()))
	return nil
}

// Unsubscribe stops a stream previously started with Subscribe.
func (s *Session) Unsubscribe(ctx context.Context, instrumentID int64, kind domain.SubscriptionKind) error {
	sub := domain.Subscription{InstrumentID: instrumentID, Kind: kind}

	s.subMu.Lock()
	_, ok := s.subs[sub]
	s.subMu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", sub, domain.ErrNotSubscribed)
	}

	name := nameUnsubscribeLevel1
	if kind == domain.SubscriptionTicker {
		name = nameUnsubscribeTicker
	}
	if err := s.send(ctx, name, instrumentRequest{OMSID: s.cred.OMSID, InstrumentID: instrumentID}); err != nil {
		return err
	}

	s.subMu.Lock()
	delete(s.subs, sub)
	s.subMu.Unlock()

	s.logger.Info("Unsubscribed", slog.String("subscription", sub.String()))
	return nil
}

// Subscriptions returns the active subscriptions ordered by instrument then kind.
func (s *Session) Subscriptions() []domain.Subscription {
	s.subMu.Lock()
	out := make([]domain.Subscription, 0, len(s.subs))
	for sub := range s.subs {
		out = append(out, sub)
	}
	s.subMu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].InstrumentID != out[j].InstrumentID {
			return out[i].InstrumentID < out[j].InstrumentID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// SendOrder places a market order.
func (s *Session) SendOrder(ctx context.Context, cmd domain.OrderCommand) error {
	if !s.IsAuthenticated() {
		return domain.ErrNotAuthenticated
	}
	return s.send(ctx, nameSendOrder, sendOrderRequest{
		InstrumentID:  cmd.InstrumentID,
		OMSID:         s.cred.OMSID,
		AccountID:     s.cred.AccountID,
		TimeInForce:   timeInForceGTC,
		ClientOrderID: cmd.ClientOrderID,
		Side:          int(cmd.Side),
		Quantity:      json.Number(cmd.Quantity.String()),
		OrderType:     orderTypeMarket,
	})
}

// GetAccountPositions requests the account balances.
func (s *Session) GetAccountPositions(ctx context.Context) error {
	if !s.IsAuthenticated() {
		return domain.ErrNotAuthenticated
	}
	return s.send(ctx, nameGetAccountPositions, accountRequest{AccountID: s.cred.AccountID, OMSID: s.cred.OMSID})
}

// Logout asks the exchange to end the session. The reply arrives through the dispatcher.
func (s *Session) Logout(ctx context.Context) error {
	if !s.IsAuthenticated() {
		return domain.ErrNotAuthenticated
	}
	s.logger.Info("Logging out")
	return s.send(ctx, nameLogOut, nil)
}

// ReadMessage blocks for the next text frame.
func (s *Session) ReadMessage() ([]byte, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil || s.closed.Load() {
		return nil, domain.ErrSessionClosed
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		if s.closed.Load() {
			return nil, domain.ErrSessionClosed
		}
		return nil, &domain.ConnectionError{Op: "read", URI: s.uri, Err: err}
	}
	return raw, nil
}

// Close drops the connection. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.authenticated.Store(false)
		infra.GlobalMetrics.SetAuthenticated(false)

		s.mu.Lock()
		if s.conn != nil {
			err = s.conn.Close()
		}
		s.mu.Unlock()
		s.logger.Info("Session closed")
	})
	return err
}

// send wraps payload in a request frame. A nil payload is sent as "{}".
func (s *Session) send(ctx context.Context, name string, payload any) error {
	o := []byte("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		o = b
	}

	b, err := json.Marshal(Frame{M: MsgRequest, I: s.seq.Add(1), N: name, O: string(o)})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return s.threadSafeWrite(ctx, b)
}

func (s *Session) threadSafeWrite(ctx context.Context, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil || s.closed.Load() {
		return domain.ErrSessionClosed
	}

	// Zero deadline when ctx has none.
	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return &domain.ConnectionError{Op: "write", URI: s.uri, Err: err}
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &domain.ConnectionError{Op: "write", URI: s.uri, Err: err}
	}
	return nil
}
