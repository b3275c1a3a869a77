package domain

import "fmt"

// Credential holds the account secrets used to authenticate a session.
// Loaded once at startup and never mutated.
type Credential struct {
	APIKey    string
	Secret    string
	UserID    int64
	AccountID int64
	OMSID     int64
}

// SubscriptionKind selects a market data stream.
type SubscriptionKind string

const (
	SubscriptionTicker SubscriptionKind = "ticker"
	SubscriptionLevel1 SubscriptionKind = "level1"
)

// Subscription is an active stream for one instrument.
type Subscription struct {
	InstrumentID int64
	Kind         SubscriptionKind
}

func (s Subscription) String() string {
	return fmt.Sprintf("%s:%d", s.Kind, s.InstrumentID)
}

// InstrumentTable maps exchange instrument ids to ticker symbols.
type InstrumentTable map[int64]string

// Symbol returns the symbol for id, or "" when unknown.
func (t InstrumentTable) Symbol(id int64) (string, bool) {
	s, ok := t[id]
	return s, ok
}

// IDs returns every instrument id in the table.
func (t InstrumentTable) IDs() []int64 {
	ids := make([]int64, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	return ids
}
