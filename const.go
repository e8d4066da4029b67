package amqp

import "github.com/yywing/go-amqp-engine/encoding"

// Sender Settlement Modes
const (
	// Sender will send all deliveries initially unsettled to the receiver.
	ModeUnsettled SenderSettleMode = encoding.ModeUnsettled

	// Sender will send all deliveries settled to the receiver.
	ModeSettled SenderSettleMode = encoding.ModeSettled

	// Sender MAY send a mixture of settled and unsettled deliveries to the receiver.
	ModeMixed SenderSettleMode = encoding.ModeMixed
)

// SenderSettleMode specifies how the sender will settle messages.
type SenderSettleMode = encoding.SenderSettleMode

func senderSettleModeValue(m *SenderSettleMode) SenderSettleMode {
	if m == nil {
		return ModeMixed
	}
	return *m
}

// Receiver Settlement Modes
const (
	// Receiver settles every delivery as soon as it has been handed to the
	// MessageHandler, with the Accepted outcome.
	ModeFirst ReceiverSettleMode = encoding.ModeFirst

	// Receiver settles only when the application calls Settle, and the
	// delivery is forgotten once the sender confirms settlement.
	ModeSecond ReceiverSettleMode = encoding.ModeSecond
)

// ReceiverSettleMode specifies how the receiver will settle messages.
type ReceiverSettleMode = encoding.ReceiverSettleMode

func receiverSettleModeValue(m *ReceiverSettleMode) ReceiverSettleMode {
	if m == nil {
		return ModeFirst
	}
	return *m
}

// Durability Policies
const (
	// No terminus state is retained durably.
	DurabilityNone Durability = encoding.DurabilityNone

	// Only the existence and configuration of the terminus is
	// retained durably.
	DurabilityConfiguration Durability = encoding.DurabilityConfiguration

	// In addition to the existence and configuration of the
	// terminus, the unsettled state for durable messages is
	// retained durably.
	DurabilityUnsettledState Durability = encoding.DurabilityUnsettledState
)

// Durability specifies the durability of a link.
type Durability = encoding.Durability

// Expiry Policies
const (
	// The expiry timer starts when terminus is detached.
	ExpiryLinkDetach ExpiryPolicy = encoding.ExpiryLinkDetach

	// The expiry timer starts when the most recently
	// associated session is ended.
	ExpirySessionEnd ExpiryPolicy = encoding.ExpirySessionEnd

	// The expiry timer starts when most recently associated
	// connection is closed.
	ExpiryConnectionClose ExpiryPolicy = encoding.ExpiryConnectionClose

	// The terminus never expires.
	ExpiryNever ExpiryPolicy = encoding.ExpiryNever
)

// ExpiryPolicy specifies when the expiry timer of a terminus
// starts counting down from the timeout value.
type ExpiryPolicy = encoding.ExpiryPolicy

// Role is the role of a link endpoint.
type Role = encoding.Role

const (
	RoleSender   Role = encoding.RoleSender
	RoleReceiver Role = encoding.RoleReceiver
)

// Delivery outcomes.
type (
	DeliveryState = encoding.DeliveryState
	Accepted      = encoding.StateAccepted
	Rejected      = encoding.StateRejected
	Released      = encoding.StateReleased
	Modified      = encoding.StateModified
)

// ConnState is the state of a connection endpoint.
type ConnState uint8

const (
	ConnUnopened ConnState = iota
	ConnOpenSent
	ConnOpenRcvd
	ConnOpen
	ConnCloseSent
	ConnCloseRcvd
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnUnopened:
		return "UNOPENED"
	case ConnOpenSent:
		return "OPEN_SENT"
	case ConnOpenRcvd:
		return "OPEN_RCVD"
	case ConnOpen:
		return "OPEN"
	case ConnCloseSent:
		return "CLOSE_SENT"
	case ConnCloseRcvd:
		return "CLOSE_RCVD"
	case ConnClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// SessionState is the state of a session endpoint.
type SessionState uint8

const (
	SessionUnmapped SessionState = iota
	SessionBeginSent
	SessionBeginRcvd
	SessionMapped
	SessionEndSent
	SessionEndRcvd
)

func (s SessionState) String() string {
	switch s {
	case SessionUnmapped:
		return "UNMAPPED"
	case SessionBeginSent:
		return "BEGIN_SENT"
	case SessionBeginRcvd:
		return "BEGIN_RCVD"
	case SessionMapped:
		return "MAPPED"
	case SessionEndSent:
		return "END_SENT"
	case SessionEndRcvd:
		return "END_RCVD"
	default:
		return "UNKNOWN"
	}
}

// LinkState is the state of a link endpoint.
type LinkState uint8

const (
	LinkDetached LinkState = iota
	LinkAttaching
	LinkAttached
	LinkDetaching
)

func (s LinkState) String() string {
	switch s {
	case LinkDetached:
		return "DETACHED"
	case LinkAttaching:
		return "ATTACHING"
	case LinkAttached:
		return "ATTACHED"
	case LinkDetaching:
		return "DETACHING"
	default:
		return "UNKNOWN"
	}
}

// outcomeName labels an outcome for metrics.
func outcomeName(s DeliveryState) string {
	switch s.(type) {
	case *Accepted:
		return "accepted"
	case *Rejected:
		return "rejected"
	case *Released:
		return "released"
	case *Modified:
		return "modified"
	case nil:
		return "none"
	default:
		return "other"
	}
}
