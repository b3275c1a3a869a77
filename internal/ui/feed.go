package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"ndax_bridge/internal/domain"

	"github.com/gorilla/websocket"
)

// Feed subscribes to the bridge's local broadcast server.
type Feed struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewFeed creates a feed for url, e.g. ws://localhost:8765.
func NewFeed(url string) *Feed {
	return &Feed{
		url:    url,
		dialer: websocket.DefaultDialer,
		logger: slog.Default().With("module", "feed"),
	}
}

// Run connects and delivers every level1 quote to out until ctx is
// cancelled or the server goes away. out is closed on return.
func (f *Feed) Run(ctx context.Context, out chan<- domain.BroadcastQuote) error {
	defer close(out)

	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return &domain.ConnectionError{Op: "dial", URI: f.url, Err: err}
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &domain.ConnectionError{Op: "read", URI: f.url, Err: err}
		}

		quote, err := DecodeBroadcast(raw)
		if err != nil {
			f.logger.Warn("discarding broadcast", slog.Any("error", err))
			continue
		}

		select {
		case out <- quote:
		case <-ctx.Done():
			return nil
		}
	}
}

// DecodeBroadcast parses one broadcast message.
func DecodeBroadcast(raw []byte) (domain.BroadcastQuote, error) {
	var msg domain.BroadcastMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.BroadcastQuote{}, &domain.MalformedMessageError{Reason: err}
	}
	if msg.Action != "lvl1" {
		return domain.BroadcastQuote{}, &domain.MalformedMessageError{Name: msg.Action, Reason: fmt.Errorf("unexpected action %q", msg.Action)}
	}
	return msg.Data, nil
}
