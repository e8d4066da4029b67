// Package encoding holds the typed AMQP 1.0 values exchanged between the
// protocol engine and a frame codec. Binary (de)serialization of these
// values is the codec's concern.
package encoding

import (
	"fmt"
	"time"
)

// Symbol is an AMQP symbolic value.
type Symbol string

// MultiSymbol is a list of symbols, encoded as a single symbol when it has
// one element.
type MultiSymbol []Symbol

// Filter is the filter-set carried on a source.
type Filter map[Symbol]*DescribedType

// DescribedType is a descriptor/value pair the engine passes through
// untouched.
type DescribedType struct {
	Descriptor any
	Value      any
}

func (t DescribedType) String() string {
	return fmt.Sprintf("DescribedType{descriptor: %v, value: %v}", t.Descriptor, t.Value)
}

// Unsettled is the map of delivery tags to delivery states carried on
// Attach.
type Unsettled map[string]DeliveryState

// Milliseconds is a duration transmitted as whole milliseconds.
type Milliseconds time.Duration

func (m Milliseconds) String() string {
	return time.Duration(m).String()
}

// Role is the role of a link endpoint. The zero value is sender.
type Role bool

const (
	RoleSender   Role = false
	RoleReceiver Role = true
)

func (rl Role) String() string {
	if rl {
		return "Receiver"
	}
	return "Sender"
}

// SenderSettleMode specifies how a sender settles deliveries.
type SenderSettleMode uint8

const (
	// Sender will send all deliveries initially unsettled to the receiver.
	ModeUnsettled SenderSettleMode = 0

	// Sender will send all deliveries settled to the receiver.
	ModeSettled SenderSettleMode = 1

	// Sender MAY send a mixture of settled and unsettled deliveries to the receiver.
	ModeMixed SenderSettleMode = 2
)

// Ptr returns a pointer to the value of m.
func (m SenderSettleMode) Ptr() *SenderSettleMode {
	return &m
}

func (m *SenderSettleMode) String() string {
	if m == nil {
		return "<nil>"
	}
	switch *m {
	case ModeUnsettled:
		return "unsettled"
	case ModeSettled:
		return "settled"
	case ModeMixed:
		return "mixed"
	default:
		return fmt.Sprintf("unknown sender mode %d", uint8(*m))
	}
}

// ReceiverSettleMode specifies how a receiver settles deliveries.
type ReceiverSettleMode uint8

const (
	// Receiver will spontaneously settle all incoming transfers.
	ModeFirst ReceiverSettleMode = 0

	// Receiver will only settle after sending the disposition to the
	// sender and receiving a disposition indicating settlement of
	// the delivery from the sender.
	ModeSecond ReceiverSettleMode = 1
)

// Ptr returns a pointer to the value of m.
func (m ReceiverSettleMode) Ptr() *ReceiverSettleMode {
	return &m
}

func (m *ReceiverSettleMode) String() string {
	if m == nil {
		return "<nil>"
	}
	switch *m {
	case ModeFirst:
		return "first"
	case ModeSecond:
		return "second"
	default:
		return fmt.Sprintf("unknown receiver mode %d", uint8(*m))
	}
}

// Durability specifies what terminus state is retained durably.
type Durability uint32

const (
	DurabilityNone           Durability = 0
	DurabilityConfiguration  Durability = 1
	DurabilityUnsettledState Durability = 2
)

func (d Durability) String() string {
	switch d {
	case DurabilityNone:
		return "none"
	case DurabilityConfiguration:
		return "configuration"
	case DurabilityUnsettledState:
		return "unsettled-state"
	default:
		return fmt.Sprintf("unknown durability %d", uint32(d))
	}
}

// ExpiryPolicy specifies when the expiry timer of a terminus starts.
type ExpiryPolicy Symbol

const (
	ExpiryLinkDetach      ExpiryPolicy = "link-detach"
	ExpirySessionEnd      ExpiryPolicy = "session-end"
	ExpiryConnectionClose ExpiryPolicy = "connection-close"
	ExpiryNever           ExpiryPolicy = "never"
)

// Validate reports an error for policies outside the AMQP set.
func (e ExpiryPolicy) Validate() error {
	switch e {
	case ExpiryLinkDetach, ExpirySessionEnd, ExpiryConnectionClose, ExpiryNever:
		return nil
	default:
		return fmt.Errorf("unknown expiry-policy %q", string(e))
	}
}

func (e ExpiryPolicy) String() string {
	return string(e)
}

// ErrCond is an AMQP defined error condition.
type ErrCond string

// Error is an AMQP error.
type Error struct {
	// A symbolic value indicating the error condition.
	Condition ErrCond

	// descriptive text about the error condition
	//
	// This text supplies any supplementary details not indicated by the condition field.
	// This text can be logged as an aid to resolving issues.
	Description string

	// map carrying information about the error condition
	Info map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return "*Error(nil)"
	}
	return fmt.Sprintf("*Error{Condition: %s, Description: %s, Info: %v}",
		e.Condition,
		e.Description,
		e.Info,
	)
}
