package ndax

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message types of the frame's "m" field.
const (
	MsgRequest     = 0
	MsgReply       = 1
	MsgSubscribe   = 2
	MsgEvent       = 3
	MsgUnsubscribe = 4
	MsgError       = 5
)

// Request and event names used on the wire.
const (
	nameAuthenticate        = "AuthenticateUser"
	nameSubscribeTicker     = "SubscribeTicker"
	nameUnsubscribeTicker   = "UnsubscribeTicker"
	nameTickerUpdate        = "TickerDataUpdateEvent"
	nameSubscribeLevel1     = "SubscribeLevel1"
	nameUnsubscribeLevel1   = "UnsubscribeLevel1"
	nameLevel1Update        = "Level1UpdateEvent"
	nameGetAccountPositions = "GetAccountPositions"
	nameSendOrder           = "SendOrder"
	nameLogOut              = "LogOut"
)

// Order parameters fixed for every SendOrder.
const (
	timeInForceGTC  = 1
	orderTypeMarket = 1
)

// Frame is the exchange's message envelope. O carries the payload as a JSON string.
type Frame struct {
	M int    `json:"m"`
	I int64  `json:"i"`
	N string `json:"n"`
	O string `json:"o"`
}

// inboundFrame tolerates "o" sent as an embedded object instead of a string.
type inboundFrame struct {
	M int             `json:"m"`
	I int64           `json:"i"`
	N string          `json:"n"`
	O json.RawMessage `json:"o"`
}

// DecodeFrame parses a raw text frame and returns it with its payload bytes.
func DecodeFrame(raw []byte) (Frame, []byte, error) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		return Frame{}, nil, fmt.Errorf("decode frame: %w", err)
	}
	if in.N == "" {
		return Frame{}, nil, fmt.Errorf("decode frame: missing message name")
	}

	payload := bytes.TrimSpace(in.O)
	if len(payload) > 0 && payload[0] == '"' {
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Frame{}, nil, fmt.Errorf("decode frame payload: %w", err)
		}
		payload = []byte(s)
	}
	return Frame{M: in.M, I: in.I, N: in.N, O: string(payload)}, payload, nil
}

// MessageKind is the closed set of inbound message classes.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindTicker
	KindLevel1
	KindAccountPositions
	KindSendOrder
	KindLogOut
	KindAuthenticate
)

func (k MessageKind) String() string {
	switch k {
	case KindTicker:
		return "ticker"
	case KindLevel1:
		return "level1"
	case KindAccountPositions:
		return "account_positions"
	case KindSendOrder:
		return "send_order"
	case KindLogOut:
		return "logout"
	case KindAuthenticate:
		return "authenticate"
	default:
		return "unknown"
	}
}

// Classify maps a message name to its kind.
func Classify(name string) MessageKind {
	switch name {
	case nameSubscribeTicker, nameTickerUpdate:
		return KindTicker
	case nameSubscribeLevel1, nameLevel1Update:
		return KindLevel1
	case nameGetAccountPositions:
		return KindAccountPositions
	case nameSendOrder:
		return KindSendOrder
	case nameLogOut:
		return KindLogOut
	case nameAuthenticate:
		return KindAuthenticate
	default:
		return KindUnknown
	}
}

type authRequest struct {
	APIKey    string `json:"APIKey"`
	Signature string `json:"Signature"`
	UserID    string `json:"UserId"`
	Nonce     string `json:"Nonce"`
}

type authReply struct {
	Authenticated bool   `json:"Authenticated"`
	ErrorMsg      string `json:"errormsg"`
}

type subscribeTickerRequest struct {
	OMSID            int64 `json:"OMSId"`
	InstrumentID     int64 `json:"InstrumentId"`
	Interval         int   `json:"Interval"`
	IncludeLastCount int   `json:"IncludeLastCount"`
}

type instrumentRequest struct {
	OMSID        int64 `json:"OMSId"`
	InstrumentID int64 `json:"InstrumentId"`
}

type accountRequest struct {
	AccountID int64 `json:"AccountId"`
	OMSID     int64 `json:"OMSId"`
}

type sendOrderRequest struct {
	InstrumentID  int64       `json:"InstrumentId"`
	OMSID         int64       `json:"OMSId"`
	AccountID     int64       `json:"AccountId"`
	TimeInForce   int         `json:"TimeInForce"`
	ClientOrderID int64       `json:"ClientOrderId"`
	Side          int         `json:"Side"`
	Quantity      json.Number `json:"Quantity"`
	OrderType     int         `json:"OrderType"`
}
