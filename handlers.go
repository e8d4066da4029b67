package amqp

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// ConnectionHandler is told about connections accepted by Serve.
type ConnectionHandler interface {
	// ConnectionCreated runs on the new connection's queue before any of
	// its frames are processed.
	ConnectionCreated(c *Conn)
}

// ConnectionHandlerFunc adapts a func to ConnectionHandler.
type ConnectionHandlerFunc func(c *Conn)

func (f ConnectionHandlerFunc) ConnectionCreated(c *Conn) { f(c) }

// SessionHandler is told about sessions begun by the peer.
type SessionHandler interface {
	// SessionCreated runs before the engine answers the peer's Begin, so
	// callbacks and link handlers registered here see every later event.
	SessionCreated(s *Session)
}

// SessionHandlerFunc adapts a func to SessionHandler.
type SessionHandlerFunc func(s *Session)

func (f SessionHandlerFunc) SessionCreated(s *Session) { f(s) }

// LinkHandler is told about links attached by the peer. The link passed is
// a *Sender when the peer attached as a receiver and a *Receiver when it
// attached as a sender.
type LinkHandler interface {
	// LinkCreated runs before the engine answers the peer's Attach.
	LinkCreated(l Link)
}

// LinkHandlerFunc adapts a func to LinkHandler.
type LinkHandlerFunc func(l Link)

func (f LinkHandlerFunc) LinkCreated(l Link) { f(l) }

// MessageHandler receives the deliveries of a Receiver.
type MessageHandler interface {
	// Offer hands over one complete delivery. Returning false refuses it:
	// the delivery stays buffered and dispatch pauses until the task passed
	// to Refiller is called.
	Offer(r *Receiver, deliveryID uint32, msg *Message) bool

	// Refiller is called each time Offer refuses a delivery. Calling task,
	// from any goroutine, resumes dispatch on the connection's queue.
	Refiller(task func())
}

// MessageHandlerFunc adapts a func that always accepts to MessageHandler.
type MessageHandlerFunc func(r *Receiver, deliveryID uint32, msg *Message)

func (f MessageHandlerFunc) Offer(r *Receiver, deliveryID uint32, msg *Message) bool {
	f(r, deliveryID, msg)
	return true
}

func (f MessageHandlerFunc) Refiller(func()) {}

// CreditHandler decides how a Receiver replenishes link credit.
type CreditHandler interface {
	// DeliveryHandled runs after each delivery accepted by the
	// MessageHandler.
	DeliveryHandled(r *Receiver)
}

// CreditHandlerFunc adapts a func to CreditHandler.
type CreditHandlerFunc func(r *Receiver)

func (f CreditHandlerFunc) DeliveryHandled(r *Receiver) { f(r) }

// WindowCredit keeps up to Max credits outstanding, topping up once half of
// them have been consumed.
type WindowCredit struct {
	Max uint32
}

func (w WindowCredit) DeliveryHandled(r *Receiver) {
	credit := r.LinkCredit()
	if credit > w.Max/2 {
		return
	}
	_ = r.AddLinkCredit(w.Max - credit)
}

// AckHandler receives the outcome of each unsettled delivery of a Sender
// once it is settled.
type AckHandler interface {
	HandleAck(s *Sender, deliveryID uint32, tag []byte, state DeliveryState)
}

// AckHandlerFunc adapts a func to AckHandler.
type AckHandlerFunc func(s *Sender, deliveryID uint32, tag []byte, state DeliveryState)

func (f AckHandlerFunc) HandleAck(s *Sender, deliveryID uint32, tag []byte, state DeliveryState) {
	f(s, deliveryID, tag, state)
}

// AvailableHandler receives the available count a peer sender reports.
type AvailableHandler interface {
	Available(r *Receiver, available uint32)
}

// AvailableHandlerFunc adapts a func to AvailableHandler.
type AvailableHandlerFunc func(r *Receiver, available uint32)

func (f AvailableHandlerFunc) Available(r *Receiver, available uint32) { f(r, available) }

// DeliveryTagger assigns delivery tags to outgoing messages. Tags must be
// unique among a link's unsettled deliveries and at most 32 bytes.
type DeliveryTagger interface {
	NextTag() []byte
}

// CounterTagger issues 8-byte big-endian sequence numbers.
type CounterTagger struct {
	next uint64
}

func (c *CounterTagger) NextTag() []byte {
	tag := make([]byte, 8)
	binary.BigEndian.PutUint64(tag, c.next)
	c.next++
	return tag
}

// UUIDTagger issues random 16-byte UUIDs.
type UUIDTagger struct{}

func (UUIDTagger) NextTag() []byte {
	id := uuid.New()
	return id[:]
}
