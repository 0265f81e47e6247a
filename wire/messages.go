// Package wire defines the JSON frames exchanged with the market simulator.
package wire

import (
	"math"
	"strconv"
)

// Message types seen on the wire.
const (
	TypeRegister     = "REGISTER"
	TypeModifyOrders = "MODIFY ORDERS"
	TypeStart        = "START"
	TypeAckRegister  = "ACK REGISTER"
	TypeMarketUpdate = "MARKET UPDATE"
	TypeTraderUpdate = "TRADER UPDATE"
)

// Inbound is a server frame. Every field other than MessageType is optional
// and absent fields decode to nil.
type Inbound struct {
	MessageType  string                 `json:"message_type,omitempty"`
	TraderState  *TraderState           `json:"trader_state,omitempty"`
	MarketStates map[string]MarketState `json:"market_states,omitempty" validate:"omitempty,dive"`
	MarketState  *MarketState           `json:"market_state,omitempty"`
	EndTime      *EndTime               `json:"end_time,omitempty"`
}

// IsStart reports whether the frame is an explicit session start.
func (m *Inbound) IsStart() bool {
	return m.MessageType == TypeStart
}

// TraderState mirrors the server-owned account of the trader.
type TraderState struct {
	Positions map[string]int64 `json:"positions"`
	Cash      float64          `json:"cash"`
}

// MarketState is the book summary for one ticker.
type MarketState struct {
	Ticker    string `json:"ticker,omitempty"`
	Bids      Levels `json:"bids" validate:"dive,keys,numeric,endkeys,gte=0"`
	Asks      Levels `json:"asks" validate:"dive,keys,numeric,endkeys,gte=0"`
	LastPrice float64 `json:"last_price" validate:"gte=0"`
}

// Levels maps a decimal price string to the resting quantity at that price.
type Levels map[string]float64

// Best returns the highest price when highest is true, otherwise the lowest.
// ok is false when no level has a parsable price.
func (l Levels) Best(highest bool) (price float64, ok bool) {
	best := math.Inf(1)
	if highest {
		best = math.Inf(-1)
	}
	for key := range l {
		p, err := strconv.ParseFloat(key, 64)
		if err != nil {
			continue
		}
		if (highest && p > best) || (!highest && p < best) {
			best = p
		}
		ok = true
	}
	if !ok {
		return 0, false
	}
	return best, true
}

// Outbound is a client frame.
type Outbound interface {
	MessageType() string
}

// Register announces the trader after connecting.
type Register struct{}

func (Register) MessageType() string { return TypeRegister }

// ModifyOrders carries the orders of one decision cycle.
type ModifyOrders struct {
	Orders []Order `json:"orders"`
}

func (ModifyOrders) MessageType() string { return TypeModifyOrders }

// Order is a limit order request.
type Order struct {
	Ticker   string  `json:"ticker" validate:"required"`
	Buy      bool    `json:"buy"`
	Quantity int64   `json:"quantity" validate:"gt=0"`
	Price    float64 `json:"price" validate:"gt=0"`
}
