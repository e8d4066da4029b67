package amqp

// Message is one delivery's payload plus the per-delivery transfer fields.
//
// Payload holds the already encoded message sections; the engine does not
// interpret it.
type Message struct {
	// DeliveryTag overrides the Sender's DeliveryTagger when set. On
	// received messages it is the tag chosen by the peer.
	DeliveryTag []byte

	// Format is the message-format code, 0 for standard AMQP messages.
	Format uint32

	// Settled requests pre-settlement when the sender settle mode is mixed.
	// On received messages it reports whether the peer pre-settled.
	Settled bool

	Payload []byte
}

// Marshaler is implemented by message representations that can encode
// themselves into a transfer payload.
type Marshaler interface {
	MarshalAMQP() ([]byte, error)
}
