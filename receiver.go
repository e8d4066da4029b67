package amqp

import (
	"errors"
	"fmt"

	"github.com/yywing/go-amqp-engine/encoding"
	"github.com/yywing/go-amqp-engine/frames"
	"github.com/yywing/go-amqp-engine/internal/debug"
	"github.com/yywing/go-amqp-engine/internal/queue"
	"github.com/yywing/go-amqp-engine/internal/tracker"
)

// Default receiver options
const (
	defaultBufferSegment = 64
)

// ReceiverOptions contains the optional settings for configuring an AMQP receiver.
type ReceiverOptions struct {
	// Capabilities is the list of extension capabilities the receiver supports.
	Capabilities []string

	// Credit specifies the credit granted as soon as the link is attached.
	// Further credit is granted through AddLinkCredit, usually from a
	// CreditHandler.
	//
	// Default: 0.
	Credit uint32

	// Durability indicates what state of the receiver will be retained durably.
	//
	// Default: DurabilityNone.
	Durability Durability

	// DynamicAddress indicates a dynamic address is to be used.
	// Any specified address will be ignored.
	//
	// Default: false.
	DynamicAddress bool

	// ExpiryPolicy determines when the expiry timer of the sender starts counting
	// down from the timeout value.  If the link is subsequently re-attached before
	// the timeout is reached, the count down is aborted.
	//
	// Default: ExpirySessionEnd.
	ExpiryPolicy ExpiryPolicy

	// ExpiryTimeout is the duration in seconds that the sender will be retained.
	//
	// Default: 0.
	ExpiryTimeout uint32

	// Filters contains the desired filters for this receiver.
	// If the peer cannot fulfill the filters the link will be detached.
	Filters []LinkFilter

	// MaxMessageSize sets the maximum message size that can
	// be received on the link.
	//
	// A size of zero indicates no limit.
	//
	// Default: 0.
	MaxMessageSize uint64

	// Name sets the name of the link.
	//
	// Link names must be unique per-connection and direction.
	//
	// Default: randomly generated.
	Name string

	// Properties sets an entry in the link properties map sent to the server.
	Properties map[string]any

	// RequestedSenderSettleMode sets the requested sender settlement mode.
	//
	// If a settlement mode is explicitly set and the server does not
	// honor it an error will be returned during link attachment.
	//
	// Default: Accept the settlement mode set by the server, commonly ModeMixed.
	RequestedSenderSettleMode *SenderSettleMode

	// SettlementMode sets the settlement mode in use by this receiver.
	//
	// Default: ModeFirst.
	SettlementMode *ReceiverSettleMode

	// TargetAddress specifies the target address for this receiver.
	TargetAddress string

	MessageHandler   MessageHandler
	CreditHandler    CreditHandler
	AvailableHandler AvailableHandler
}

// inbound is a delivery being reassembled or waiting for the handler.
type inbound struct {
	id  uint32
	msg *Message
}

// Receiver receives messages on a single AMQP link.
type Receiver struct {
	link

	settleMode       ReceiverSettleMode
	senderSettleMode *SenderSettleMode // requested, then the peer's answer
	initialCredit    uint32
	drain            bool // a drain request is outstanding

	handler          MessageHandler
	creditHandler    CreditHandler
	availableHandler AvailableHandler

	paused  bool                   // the handler refused head
	head    *inbound               // refused delivery, offered first on resume
	partial *inbound               // delivery still receiving frames
	buffer  *queue.Queue[*inbound] // complete deliveries behind head

	// continuation frames of discardID are dropped while discarding
	discarding bool
	discardID  uint32

	unsettled *tracker.Tracker
}

func newReceiver(s *Session, name string) *Receiver {
	r := &Receiver{
		link:       newLink(s, name, encoding.RoleReceiver),
		settleMode: ModeFirst,
		buffer:     queue.New[*inbound](defaultBufferSegment),
		unsettled:  tracker.New(),
	}
	r.self = r
	r.target = &frames.Target{}
	return r
}

func (r *Receiver) applyOptions(opts *ReceiverOptions) error {
	if opts.SettlementMode != nil {
		if m := *opts.SettlementMode; m > ModeSecond {
			return fmt.Errorf("invalid SettlementMode %d", m)
		}
		r.settleMode = *opts.SettlementMode
	}
	if opts.RequestedSenderSettleMode != nil {
		if m := *opts.RequestedSenderSettleMode; m > ModeMixed {
			return fmt.Errorf("invalid RequestedSenderSettleMode %d", m)
		}
		r.senderSettleMode = opts.RequestedSenderSettleMode.Ptr()
	}
	if opts.ExpiryPolicy != "" {
		if err := opts.ExpiryPolicy.Validate(); err != nil {
			return err
		}
	}
	for _, v := range opts.Capabilities {
		r.target.Capabilities = append(r.target.Capabilities, encoding.Symbol(v))
	}
	r.target.Address = opts.TargetAddress
	r.target.Durable = opts.Durability
	r.target.ExpiryPolicy = opts.ExpiryPolicy
	r.target.Timeout = opts.ExpiryTimeout
	if opts.DynamicAddress {
		r.source.Address = ""
		r.source.Dynamic = true
		r.dynamicAddr = true
	}
	if len(opts.Filters) > 0 {
		r.source.Filter = make(encoding.Filter)
		for _, f := range opts.Filters {
			f(r.source.Filter)
		}
	}
	if opts.Properties != nil {
		r.properties = make(map[encoding.Symbol]any, len(opts.Properties))
		for k, v := range opts.Properties {
			if k == "" {
				return errors.New("link property key must not be empty")
			}
			r.properties[encoding.Symbol(k)] = v
		}
	}
	r.maxMessageSize = opts.MaxMessageSize
	r.initialCredit = opts.Credit
	r.handler = opts.MessageHandler
	r.creditHandler = opts.CreditHandler
	r.availableHandler = opts.AvailableHandler
	return nil
}

// LinkCredit returns the credit currently granted to the peer.
func (r *Receiver) LinkCredit() uint32 {
	return r.linkCredit
}

// DeliveryCount returns the link's delivery-count.
func (r *Receiver) DeliveryCount() uint32 {
	return r.deliveryCount
}

// Draining reports whether a drain request is outstanding.
func (r *Receiver) Draining() bool {
	return r.drain
}

// Unsettled returns the number of deliveries not yet settled.
func (r *Receiver) Unsettled() int {
	return r.unsettled.Len()
}

// SettleMode returns the receiver settle mode.
func (r *Receiver) SettleMode() ReceiverSettleMode {
	return r.settleMode
}

// SetSettleMode sets the receiver settle mode. It only has an effect
// before the link's Attach has been sent.
func (r *Receiver) SetSettleMode(mode ReceiverSettleMode) {
	if r.attachSent {
		return
	}
	r.settleMode = mode
}

// SetInitialCredit sets the credit granted as soon as the link attaches.
// Peer-initiated receivers use it from LinkCreated, where AddLinkCredit
// is not allowed yet.
func (r *Receiver) SetInitialCredit(credit uint32) {
	r.initialCredit = credit
}

// SetCreditHandler sets the policy replenishing credit.
func (r *Receiver) SetCreditHandler(h CreditHandler) {
	r.creditHandler = h
}

// SetAvailableHandler sets the handler receiving the peer's available count.
func (r *Receiver) SetAvailableHandler(h AvailableHandler) {
	r.availableHandler = h
}

// SetMessageHandler sets the handler deliveries are offered to.
// Deliveries buffered while no handler was set are offered to h.
func (r *Receiver) SetMessageHandler(h MessageHandler) {
	r.handler = h
	if h != nil && r.paused {
		r.paused = false
		r.session.conn.schedule(r.dispatch)
	}
}

// AddLinkCredit grants credit more deliveries and sends a flow.
func (r *Receiver) AddLinkCredit(credit uint32) error {
	if r.state != LinkAttached {
		return &LinkError{inner: ErrNotAttached}
	}
	r.linkCredit += credit
	r.sendFlow()
	return nil
}

// DrainLinkCredit asks the peer to use or give back all granted credit.
func (r *Receiver) DrainLinkCredit() error {
	if r.state != LinkAttached {
		return &LinkError{inner: ErrNotAttached}
	}
	r.drain = true
	r.sendFlow()
	return nil
}

func (r *Receiver) sendFlow() {
	handle := r.handle
	deliveryCount := r.deliveryCount
	linkCredit := r.linkCredit
	debug.Log(3, "TX (Receiver %s): flow - linkCredit: %d, deliveryCount: %d, drain: %v",
		r.key.name, linkCredit, deliveryCount, r.drain)
	r.session.sendFlow(&frames.PerformFlow{
		Handle:        &handle,
		DeliveryCount: &deliveryCount,
		LinkCredit:    &linkCredit,
		Drain:         r.drain,
	})
}

// Settle sends the outcome of an unsettled delivery. In ModeSecond the
// delivery is kept until the peer settles it. Settling an unknown or
// already settled delivery does nothing.
func (r *Receiver) Settle(deliveryID uint32, state DeliveryState) {
	d, ok := r.unsettled.Get(deliveryID)
	if !ok || d.Decided {
		return
	}
	d.Decided = true
	d.State = state

	settled := r.settleMode == ModeFirst || d.RemoteSettled
	r.session.sendDisposition(&frames.PerformDisposition{
		Role:    encoding.RoleReceiver,
		First:   deliveryID,
		Settled: settled,
		State:   state,
	})
	if settled {
		r.settled(d)
	}
}

func (r *Receiver) settled(d *tracker.Delivery) {
	r.unsettled.Remove(d.ID)
	r.session.conn.metrics.Settled("receiver", outcomeName(d.State))
	r.session.conn.metrics.Unsettled("receiver", -1)
}

func (r *Receiver) sendAttach() {
	r.attachSent = true
	r.session.conn.writeFrame(r.session.channel, &frames.PerformAttach{
		Name:               r.key.name,
		Handle:             r.handle,
		Role:               encoding.RoleReceiver,
		SenderSettleMode:   r.senderSettleMode,
		ReceiverSettleMode: r.settleMode.Ptr(),
		Source:             r.source,
		Target:             r.target,
		MaxMessageSize:     r.maxMessageSize,
		Properties:         r.properties,
	})
}

func (r *Receiver) remoteAttach(body *frames.PerformAttach) {
	if body.Source == nil {
		// refused, the peer's Detach follows
		debug.Log(1, "RX (Receiver %s): attach without source", r.key.name)
		return
	}
	if r.senderSettleMode != nil && body.SenderSettleMode != nil && *r.senderSettleMode != *body.SenderSettleMode && !r.peerInitiated {
		r.rejectAttach(asError(fmt.Errorf("amqp: sender settlement mode %d requested, received %d from server",
			*r.senderSettleMode, *body.SenderSettleMode)))
		return
	}
	if body.SenderSettleMode != nil {
		r.senderSettleMode = body.SenderSettleMode.Ptr()
	}
	if r.dynamicAddr {
		r.source = body.Source
	}
	r.deliveryCount = body.InitialDeliveryCount
	r.peerMaxMessageSize = body.MaxMessageSize
	r.attached()

	if r.initialCredit > 0 && r.state == LinkAttached {
		_ = r.AddLinkCredit(r.initialCredit)
	}
}

func (r *Receiver) muxFlow(body *frames.PerformFlow) {
	debug.Log(3, "RX (Receiver %s): flow - linkCredit: %v, drain: %v", r.key.name, body.LinkCredit, body.Drain)

	if body.Available != nil && r.availableHandler != nil {
		r.availableHandler.Available(r, *body.Available)
	}

	if r.drain && body.LinkCredit != nil {
		// the sender reports what is left of the drained credit
		if body.DeliveryCount != nil {
			r.deliveryCount = *body.DeliveryCount
		}
		r.linkCredit = *body.LinkCredit
		if r.linkCredit == 0 {
			r.drain = false
		}
	}

	if body.Echo && r.state == LinkAttached {
		r.sendFlow()
	}
}

func (r *Receiver) muxTransfer(body *frames.PerformTransfer) {
	if r.partial != nil && r.state != LinkAttached {
		r.discard(r.partial.id, true)
	}
	if r.discarding {
		if body.DeliveryID == nil || *body.DeliveryID == r.discardID {
			if !body.More || body.Aborted {
				r.discarding = false
			}
			return
		}
		r.discarding = false
	}

	if r.partial == nil {
		if body.DeliveryID == nil {
			r.session.conn.fail(protocolError(ErrCondInvalidField, "transfer without delivery-id on link %q", r.key.name))
			return
		}
		id := *body.DeliveryID
		if !r.session.acceptDeliveryID(id) {
			r.session.conn.fail(protocolError(ErrCondNotAllowed, "delivery-id %d out of sequence", id))
			return
		}
		if r.state != LinkAttached {
			// in flight from before our Detach
			r.discard(id, body.More && !body.Aborted)
			return
		}
		if r.linkCredit == 0 {
			r.discard(id, body.More && !body.Aborted)
			r.creditViolation(body)
			return
		}
		r.linkCredit--
		r.deliveryCount++

		var format uint32
		if body.MessageFormat != nil {
			format = *body.MessageFormat
		}
		r.partial = &inbound{
			id: id,
			msg: &Message{
				DeliveryTag: body.DeliveryTag,
				Format:      format,
				Settled:     body.Settled,
			},
		}
	} else if body.DeliveryID != nil && *body.DeliveryID != r.partial.id {
		r.session.conn.fail(protocolError(ErrCondNotAllowed, "delivery-id %d interleaved with %d", *body.DeliveryID, r.partial.id))
		return
	}

	inb := r.partial
	if body.Aborted {
		debug.Log(2, "RX (Receiver %s): delivery %d aborted", r.key.name, inb.id)
		r.partial = nil
		return
	}
	if body.Settled {
		inb.msg.Settled = true
	}
	inb.msg.Payload = append(inb.msg.Payload, body.Payload...)
	if r.maxMessageSize != 0 && uint64(len(inb.msg.Payload)) > r.maxMessageSize {
		r.discard(inb.id, body.More)
		r.detachWithError(protocolError(ErrCondMessageSizeExceeded,
			"received message larger than max size of %d", r.maxMessageSize))
		return
	}
	if body.More {
		return
	}

	r.partial = nil
	if !inb.msg.Settled {
		r.unsettled.Record(&tracker.Delivery{ID: inb.id, Tag: inb.msg.DeliveryTag})
		r.session.conn.metrics.Unsettled("receiver", 1)
	}
	r.session.conn.metrics.Delivery("receiver", len(inb.msg.Payload))
	debug.Log(2, "RX (Receiver %s): delivery %d complete, %d bytes, credit %d", r.key.name, inb.id, len(inb.msg.Payload), r.linkCredit)

	if r.paused || r.buffer.Len() > 0 {
		r.buffer.Enqueue(inb)
		return
	}
	r.deliver(inb)
}

func (r *Receiver) detachCreditViolation(fr *frames.PerformTransfer) {
	r.detachWithError(protocolError(ErrCondTransferLimitExceeded,
		"delivery-id %d exceeds link credit", *fr.DeliveryID))
}

// discard abandons delivery id. When more frames of it are expected they
// are dropped as they arrive.
func (r *Receiver) discard(id uint32, more bool) {
	r.partial = nil
	r.discarding = more
	r.discardID = id
}

// deliver offers inb to the handler. It returns false when dispatch paused.
func (r *Receiver) deliver(inb *inbound) bool {
	if r.handler == nil {
		r.head = inb
		r.paused = true
		return false
	}
	if !r.handler.Offer(r, inb.id, inb.msg) {
		r.head = inb
		r.paused = true
		r.session.conn.metrics.CreditStall("handler")
		r.handler.Refiller(r.resumeTask())
		return false
	}
	r.handled(inb)
	return true
}

func (r *Receiver) handled(inb *inbound) {
	if r.settleMode == ModeFirst && !inb.msg.Settled {
		if d, ok := r.unsettled.Get(inb.id); ok && !d.Decided {
			r.Settle(inb.id, &encoding.StateAccepted{})
		}
	}
	if r.creditHandler != nil && r.state == LinkAttached {
		r.creditHandler.DeliveryHandled(r)
	}
}

// resumeTask returns the task handed to MessageHandler.Refiller. Only its
// first call has an effect.
func (r *Receiver) resumeTask() func() {
	var fired bool
	return func() {
		_ = r.session.conn.Inject(func() {
			if fired {
				return
			}
			fired = true
			if r.paused && r.state != LinkDetached {
				r.paused = false
				r.dispatch()
			}
		})
	}
}

// dispatch offers the refused delivery and then the buffered ones until
// the handler refuses again.
func (r *Receiver) dispatch() {
	for !r.paused {
		next := r.head
		if next != nil {
			r.head = nil
		} else if p := r.buffer.Dequeue(); p != nil {
			next = *p
		} else {
			return
		}
		if !r.deliver(next) {
			return
		}
	}
}

func (r *Receiver) muxDisposition(body *frames.PerformDisposition) {
	affected := r.unsettled.ApplyDisposition(body.First, body.LastID(), body.Settled, nil)
	for _, d := range affected {
		if d.Decided && d.RemoteSettled {
			r.settled(d)
		}
	}
}

func (r *Receiver) release(err error) {
	if n := r.unsettled.Len(); n > 0 {
		r.session.conn.metrics.Unsettled("receiver", -float64(n))
		r.unsettled.Clear()
	}
	r.partial = nil
	r.discarding = false
	r.head = nil
	for r.buffer.Dequeue() != nil {
	}
	r.paused = false
	r.drain = false
	r.linkCredit = 0
	r.finish(err)
}
