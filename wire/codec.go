package wire

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var (
	// ErrMalformed marks a frame that is not valid JSON or fails schema checks.
	ErrMalformed = errors.New("malformed frame")
	// ErrUnknownType marks an outbound frame with an unrecognised message_type.
	ErrUnknownType = errors.New("unknown message type")
)

var validate = validator.New()

type registerFrame struct {
	MessageType string `json:"message_type"`
}

type modifyOrdersFrame struct {
	MessageType string  `json:"message_type"`
	Orders      []Order `json:"orders"`
}

// Encode renders a client frame.
func Encode(msg Outbound) ([]byte, error) {
	switch m := msg.(type) {
	case Register, *Register:
		return json.Marshal(registerFrame{MessageType: TypeRegister})
	case ModifyOrders:
		return json.Marshal(modifyOrdersFrame{MessageType: TypeModifyOrders, Orders: m.Orders})
	case *ModifyOrders:
		return json.Marshal(modifyOrdersFrame{MessageType: TypeModifyOrders, Orders: m.Orders})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}

// DecodeInbound parses and schema-checks a server frame.
func DecodeInbound(data []byte) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.MarketState != nil && msg.MarketState.Ticker == "" {
		return nil, fmt.Errorf("%w: market_state without ticker", ErrMalformed)
	}
	return &msg, nil
}

// EncodeInbound renders a server frame.
func EncodeInbound(msg *Inbound) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeOutbound parses a client frame on the server side. Orders are not
// validated here; see ValidateOrder.
func DecodeOutbound(data []byte) (Outbound, error) {
	var frame modifyOrdersFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch frame.MessageType {
	case TypeRegister:
		return Register{}, nil
	case TypeModifyOrders:
		return ModifyOrders{Orders: frame.Orders}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, frame.MessageType)
	}
}

// ValidateOrder checks a single order request.
func ValidateOrder(o Order) error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
