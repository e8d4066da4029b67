package encoding

import "fmt"

// DeliveryState is the state of a delivery at one link endpoint. The
// terminal states (Accepted, Rejected, Released, Modified) are outcomes.
type DeliveryState interface {
	deliveryState()
}

// Outcome reports whether s is a terminal delivery state.
func Outcome(s DeliveryState) bool {
	switch s.(type) {
	case *StateAccepted, *StateRejected, *StateReleased, *StateModified:
		return true
	default:
		return false
	}
}

// StateReceived is the non-terminal state reporting how much of a partial
// delivery has arrived.
type StateReceived struct {
	// When sent by the sender this indicates the first section of the message
	// (with section-number 0 being the first section) for which data can be resent.
	SectionNumber uint32

	// When sent by the sender this indicates the first byte of the encoded section
	// data of the section given by section-number for which data can be resent
	// (with section-offset 0 being the first byte).
	SectionOffset uint64
}

func (*StateReceived) deliveryState() {}

func (sr *StateReceived) String() string {
	return fmt.Sprintf("Received{SectionNumber: %d, SectionOffset: %d}", sr.SectionNumber, sr.SectionOffset)
}

// StateAccepted indicates the message was processed successfully.
type StateAccepted struct{}

func (*StateAccepted) deliveryState() {}

func (sa *StateAccepted) String() string {
	return "Accepted"
}

// StateRejected indicates the message is invalid and cannot be processed.
type StateRejected struct {
	Error *Error
}

func (*StateRejected) deliveryState() {}

func (sr *StateRejected) String() string {
	return fmt.Sprintf("Rejected{Error: %v}", sr.Error)
}

// StateReleased indicates the message was not and will not be processed.
type StateReleased struct{}

func (*StateReleased) deliveryState() {}

func (sr *StateReleased) String() string {
	return "Released"
}

// StateModified indicates the message was modified but not processed.
type StateModified struct {
	// count the transfer as an unsuccessful delivery attempt
	//
	// If the delivery-failed flag is set, any messages modified
	// MUST have their delivery-count incremented.
	DeliveryFailed bool

	// prevent redelivery
	//
	// If the undeliverable-here is set, then any messages released MUST NOT
	// be redelivered to the modifying link endpoint.
	UndeliverableHere bool

	// message attributes
	// Map containing attributes to combine with the existing message-annotations
	// held in the message's header section. Where the existing message-annotations
	// of the message contain an entry with the same key as an entry in this field,
	// the value in this field associated with that key replaces the one in the
	// existing headers; where the existing message-annotations has no such value,
	// the value in this map is added.
	MessageAnnotations map[Symbol]any
}

func (*StateModified) deliveryState() {}

func (sm *StateModified) String() string {
	return fmt.Sprintf("Modified{DeliveryFailed: %t, UndeliverableHere: %t, MessageAnnotations: %v}", sm.DeliveryFailed, sm.UndeliverableHere, sm.MessageAnnotations)
}
