package event

import "fmt"

// Action tags the payload carried by an Envelope.
type Action string

const (
	ActionQuit   Action = "quit"
	ActionTicker Action = "tkr"
	ActionLevel1 Action = "lvl1"
	ActionAcct   Action = "acct"
	ActionAck    Action = "o"
	ActionOrder  Action = "order"
)

// Envelope is the unit passed between components.
//
// Payload types by action:
//
//	tkr   []domain.TickerBar
//	lvl1  domain.Level1Quote
//	acct  []domain.AccountPosition (market data), nil (commands)
//	o     domain.OrderAck
//	order domain.OrderCommand (commands), domain.OrderRecord (persistence)
//	quit  nil
type Envelope struct {
	Action  Action
	Payload any
}

// Quit is the shutdown envelope.
func Quit() Envelope {
	return Envelope{Action: ActionQuit}
}

// IsQuit reports whether e asks the consumer to stop.
func (e Envelope) IsQuit() bool {
	return e.Action == ActionQuit
}

func (e Envelope) String() string {
	if e.Payload == nil {
		return string(e.Action)
	}
	return fmt.Sprintf("%s(%T)", e.Action, e.Payload)
}
