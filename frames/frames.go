// Package frames holds the decoded AMQP 1.0 frame bodies exchanged between
// the protocol engine and a frame codec.
package frames

import (
	"fmt"
	"time"

	"github.com/yywing/go-amqp-engine/encoding"
)

// Type contains the values for a frame's type.
type Type uint8

const (
	TypeAMQP Type = 0x0
	TypeSASL Type = 0x1
)

// Frame is a decoded frame addressed to a channel.
// A nil Body is an empty frame, used as a heartbeat.
type Frame struct {
	Type    Type      // AMQP/SASL
	Channel uint16    // channel this frame is for
	Body    FrameBody // body of the frame
}

func (f Frame) String() string {
	if f.Body == nil {
		return fmt.Sprintf("Frame{Channel: %d, Body: <heartbeat>}", f.Channel)
	}
	return fmt.Sprintf("Frame{Channel: %d, Body: %s}", f.Channel, f.Body)
}

// FrameBody is the interface all frame bodies must implement.
type FrameBody interface {
	// if the frame is for a link, return the handle
	link() (uint32, bool)
	fmt.Stringer
}

// Receiver consumes the frames a transport reads.
type Receiver interface {
	// ReceiveFrame is called once per inbound frame, in arrival order.
	ReceiveFrame(fr Frame)

	// TransportFailed is called at most once when the transport can no
	// longer read or write.
	TransportFailed(err error)
}

// LinkHandle reports the link handle a body is addressed to, if any.
func LinkHandle(fb FrameBody) (uint32, bool) {
	return fb.link()
}

// Source is the source terminus of a link.
type Source struct {
	// the address of the source
	Address string

	// indicates the durability of the terminus
	Durable encoding.Durability

	// the expiry policy of the source
	ExpiryPolicy encoding.ExpiryPolicy

	// duration that an expiring source will be retained
	Timeout uint32 // seconds

	// request dynamic creation of a remote node
	Dynamic bool

	// properties of the dynamically created node
	DynamicNodeProperties map[encoding.Symbol]any

	// the distribution mode of the link
	DistributionMode encoding.Symbol

	// a set of predicates to filter the messages admitted onto the link
	Filter encoding.Filter

	// default outcome for unsettled transfers
	DefaultOutcome any

	// descriptors for the outcomes that can be chosen on this link
	Outcomes encoding.MultiSymbol

	// the extension capabilities the sender supports/desires
	Capabilities encoding.MultiSymbol
}

func (s *Source) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("source{Address: %s, Durable: %d, ExpiryPolicy: %s, Timeout: %d, "+
		"Dynamic: %t, DistributionMode: %s, Filter: %v, Outcomes: %v, Capabilities: %v}",
		s.Address,
		s.Durable,
		s.ExpiryPolicy,
		s.Timeout,
		s.Dynamic,
		s.DistributionMode,
		s.Filter,
		s.Outcomes,
		s.Capabilities,
	)
}

// Target is the target terminus of a link.
type Target struct {
	// the address of the target
	Address string

	// indicates the durability of the terminus
	Durable encoding.Durability

	// the expiry policy of the target
	ExpiryPolicy encoding.ExpiryPolicy

	// duration that an expiring target will be retained
	Timeout uint32 // seconds

	// request dynamic creation of a remote node
	Dynamic bool

	// properties of the dynamically created node
	DynamicNodeProperties map[encoding.Symbol]any

	// the extension capabilities the sender supports/desires
	Capabilities encoding.MultiSymbol
}

func (t *Target) String() string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("target{Address: %s, Durable: %d, ExpiryPolicy: %s, Timeout: %d, "+
		"Dynamic: %t, Capabilities: %v}",
		t.Address,
		t.Durable,
		t.ExpiryPolicy,
		t.Timeout,
		t.Dynamic,
		t.Capabilities,
	)
}

// PerformOpen negotiates connection parameters.
type PerformOpen struct {
	ContainerID         string // required
	Hostname            string
	MaxFrameSize        uint32        // default: 4294967295
	ChannelMax          uint16        // default: 65535
	IdleTimeout         time.Duration // from milliseconds
	OutgoingLocales     encoding.MultiSymbol
	IncomingLocales     encoding.MultiSymbol
	OfferedCapabilities encoding.MultiSymbol
	DesiredCapabilities encoding.MultiSymbol
	Properties          map[encoding.Symbol]any
}

func (o *PerformOpen) link() (uint32, bool) {
	return 0, false
}

func (o *PerformOpen) String() string {
	return fmt.Sprintf("Open{ContainerID : %s, Hostname: %s, MaxFrameSize: %d, "+
		"ChannelMax: %d, IdleTimeout: %v, "+
		"OfferedCapabilities: %v, DesiredCapabilities: %v, Properties: %v}",
		o.ContainerID,
		o.Hostname,
		o.MaxFrameSize,
		o.ChannelMax,
		o.IdleTimeout,
		o.OfferedCapabilities,
		o.DesiredCapabilities,
		o.Properties,
	)
}

// PerformBegin begins a session on a channel.
type PerformBegin struct {
	// the remote channel for this session
	// If a session is locally initiated, the remote-channel MUST NOT be set.
	// When an endpoint responds to a remotely initiated session, the remote-channel
	// MUST be set to the channel on which the remote session sent the begin.
	RemoteChannel *uint16

	// the transfer-id of the first transfer id the sender will send
	NextOutgoingID uint32 // required, sequence number

	// the initial incoming-window of the sender
	IncomingWindow uint32 // required

	// the initial outgoing-window of the sender
	OutgoingWindow uint32 // required

	// the maximum handle value that can be used on the session
	HandleMax uint32 // default 4294967295

	OfferedCapabilities encoding.MultiSymbol
	DesiredCapabilities encoding.MultiSymbol
	Properties          map[encoding.Symbol]any
}

func (b *PerformBegin) link() (uint32, bool) {
	return 0, false
}

func (b *PerformBegin) String() string {
	return fmt.Sprintf("Begin{RemoteChannel: %v, NextOutgoingID: %d, IncomingWindow: %d, "+
		"OutgoingWindow: %d, HandleMax: %d, OfferedCapabilities: %v, DesiredCapabilities: %v, "+
		"Properties: %v}",
		formatUint16Ptr(b.RemoteChannel),
		b.NextOutgoingID,
		b.IncomingWindow,
		b.OutgoingWindow,
		b.HandleMax,
		b.OfferedCapabilities,
		b.DesiredCapabilities,
		b.Properties,
	)
}

// PerformAttach attaches a link to a session.
type PerformAttach struct {
	// the name of the link
	//
	// This name uniquely identifies the link from the container of the source
	// to the container of the target node, e.g., if the container of the source
	// node is A, and the container of the target node is B, the link MAY be
	// globally identified by the (ordered) tuple (A,B,<name>).
	Name string // required

	// the handle for the link while attached
	Handle uint32 // required

	// role of the link endpoint
	Role encoding.Role // required

	// settlement policy for the sender
	SenderSettleMode *encoding.SenderSettleMode

	// the settlement policy of the receiver
	ReceiverSettleMode *encoding.ReceiverSettleMode

	// the source for messages
	Source *Source

	// the target for messages
	Target *Target

	// unsettled delivery state
	Unsettled encoding.Unsettled

	// the sender has more unsettled deliveries than fit in Unsettled
	IncompleteUnsettled bool

	// the sender's initial value for delivery-count
	// This MUST NOT be null if role is sender, and it is ignored if the role is receiver.
	InitialDeliveryCount uint32 // sequence number

	// the maximum message size supported by the link endpoint; zero means no limit
	MaxMessageSize uint64

	OfferedCapabilities encoding.MultiSymbol
	DesiredCapabilities encoding.MultiSymbol
	Properties          map[encoding.Symbol]any
}

func (a *PerformAttach) link() (uint32, bool) {
	return a.Handle, true
}

func (a *PerformAttach) String() string {
	return fmt.Sprintf("Attach{Name: %s, Handle: %d, Role: %s, SenderSettleMode: %s, ReceiverSettleMode: %s, "+
		"Source: %v, Target: %v, Unsettled: %v, IncompleteUnsettled: %t, InitialDeliveryCount: %d, MaxMessageSize: %d, "+
		"OfferedCapabilities: %v, DesiredCapabilities: %v, Properties: %v}",
		a.Name,
		a.Handle,
		a.Role,
		a.SenderSettleMode,
		a.ReceiverSettleMode,
		a.Source,
		a.Target,
		a.Unsettled,
		a.IncompleteUnsettled,
		a.InitialDeliveryCount,
		a.MaxMessageSize,
		a.OfferedCapabilities,
		a.DesiredCapabilities,
		a.Properties,
	)
}

// PerformFlow updates session and, when Handle is set, link flow state.
type PerformFlow struct {
	// Identifies the expected transfer-id of the next incoming transfer frame.
	// This value MUST be set if the peer has received the begin frame for the
	// session, and MUST NOT be set if it has not.
	NextIncomingID *uint32 // sequence number

	// Defines the maximum number of incoming transfer frames that the endpoint
	// can currently receive.
	IncomingWindow uint32 // required

	// The transfer-id that will be assigned to the next outgoing transfer frame.
	NextOutgoingID uint32 // sequence number

	// Defines the maximum number of outgoing transfer frames that the endpoint
	// could potentially currently send, if it was not constrained by restrictions
	// imposed by its peer's incoming-window.
	OutgoingWindow uint32

	// If set, indicates that the flow frame carries flow state information for the local
	// link endpoint associated with the given handle.
	Handle *uint32

	// the endpoint's value for the delivery-count sequence number
	DeliveryCount *uint32 // sequence number

	// the current maximum number of messages that can be received
	LinkCredit *uint32

	// the number of available messages
	Available *uint32

	// When set by the receiver, the sender uses all available credit or
	// returns the remainder by advancing delivery-count.
	Drain bool

	// request state from partner
	Echo bool

	Properties map[encoding.Symbol]any
}

func (f *PerformFlow) link() (uint32, bool) {
	if f.Handle == nil {
		return 0, false
	}
	return *f.Handle, true
}

func (f *PerformFlow) String() string {
	return fmt.Sprintf("Flow{NextIncomingID: %s, IncomingWindow: %d, NextOutgoingID: %d, OutgoingWindow: %d, "+
		"Handle: %s, DeliveryCount: %s, LinkCredit: %s, Available: %s, Drain: %t, Echo: %t, Properties: %+v}",
		formatUint32Ptr(f.NextIncomingID),
		f.IncomingWindow,
		f.NextOutgoingID,
		f.OutgoingWindow,
		formatUint32Ptr(f.Handle),
		formatUint32Ptr(f.DeliveryCount),
		formatUint32Ptr(f.LinkCredit),
		formatUint32Ptr(f.Available),
		f.Drain,
		f.Echo,
		f.Properties,
	)
}

// PerformTransfer carries a frame of a message.
type PerformTransfer struct {
	// Specifies the link on which the message is transferred.
	Handle uint32 // required

	// The delivery-id MUST be supplied on the first transfer of a multi-transfer
	// delivery. On continuation transfers the delivery-id MAY be omitted.
	DeliveryID *uint32 // sequence number

	// Uniquely identifies the delivery attempt for a given message on this link.
	// This field MUST be specified for the first transfer of a multi-transfer
	// message and can only be omitted for continuation transfers.
	DeliveryTag []byte // up to 32 bytes

	// This field MUST be specified for the first transfer of a multi-transfer message
	// and can only be omitted for continuation transfers.
	MessageFormat *uint32

	// If not set on the first (or only) transfer for a (multi-transfer) delivery,
	// then the settled flag MUST be interpreted as being false.
	Settled bool

	// indicates that the message has more content
	More bool

	// Overrides the link's receiver settle mode for this delivery when the
	// link's mode is first.
	ReceiverSettleMode *encoding.ReceiverSettleMode

	// the state of the delivery at the sender
	State encoding.DeliveryState

	// indicates a resumed delivery
	Resume bool

	// indicates that the message is aborted
	Aborted bool

	// batchable hint
	Batchable bool

	Payload []byte
}

func (t *PerformTransfer) link() (uint32, bool) {
	return t.Handle, true
}

func (t PerformTransfer) String() string {
	deliveryTag := "<nil>"
	if t.DeliveryTag != nil {
		deliveryTag = fmt.Sprintf("%X", t.DeliveryTag)
	}

	return fmt.Sprintf("Transfer{Handle: %d, DeliveryID: %s, DeliveryTag: %s, MessageFormat: %s, "+
		"Settled: %t, More: %t, ReceiverSettleMode: %s, State: %v, Resume: %t, Aborted: %t, "+
		"Batchable: %t, Payload [size]: %d}",
		t.Handle,
		formatUint32Ptr(t.DeliveryID),
		deliveryTag,
		formatUint32Ptr(t.MessageFormat),
		t.Settled,
		t.More,
		t.ReceiverSettleMode,
		t.State,
		t.Resume,
		t.Aborted,
		t.Batchable,
		len(t.Payload),
	)
}

// PerformDisposition informs the remote peer of delivery state changes for
// the inclusive range First..Last.
type PerformDisposition struct {
	// directionality of disposition
	//
	// The role identifies whether the disposition frame contains information about
	// sending link endpoints or receiving link endpoints.
	Role encoding.Role

	// lower bound of deliveries
	First uint32 // required, sequence number

	// upper bound of deliveries; when unset it is taken to be First
	Last *uint32 // sequence number

	// indicates deliveries are settled
	Settled bool

	// indicates state of deliveries
	State encoding.DeliveryState

	// batchable hint
	Batchable bool
}

func (d *PerformDisposition) link() (uint32, bool) {
	return 0, false
}

// LastID returns the upper bound of the range.
func (d *PerformDisposition) LastID() uint32 {
	if d.Last == nil {
		return d.First
	}
	return *d.Last
}

func (d *PerformDisposition) String() string {
	return fmt.Sprintf("Disposition{Role: %s, First: %d, Last: %s, Settled: %t, State: %v, Batchable: %t}",
		d.Role,
		d.First,
		formatUint32Ptr(d.Last),
		d.Settled,
		d.State,
		d.Batchable,
	)
}

// PerformDetach detaches the link endpoint from the session.
type PerformDetach struct {
	// the local handle of the link to be detached
	Handle uint32 //required

	// if true then the sender has closed the link
	Closed bool

	// error causing the detach
	Error *encoding.Error
}

func (d *PerformDetach) link() (uint32, bool) {
	return d.Handle, true
}

func (d PerformDetach) String() string {
	return fmt.Sprintf("Detach{Handle: %d, Closed: %t, Error: %v}",
		d.Handle,
		d.Closed,
		d.Error,
	)
}

// PerformEnd ends the session.
type PerformEnd struct {
	// error causing the end
	Error *encoding.Error
}

func (e *PerformEnd) link() (uint32, bool) {
	return 0, false
}

func (e PerformEnd) String() string {
	return fmt.Sprintf("End{Error: %v}", e.Error)
}

// PerformClose signals a connection close.
type PerformClose struct {
	// error causing the close
	Error *encoding.Error
}

func (c *PerformClose) link() (uint32, bool) {
	return 0, false
}

func (c *PerformClose) String() string {
	return fmt.Sprintf("Close{Error: %s}", c.Error)
}

func formatUint16Ptr(p *uint16) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d", *p)
}

func formatUint32Ptr(p *uint32) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d", *p)
}
