package amqp

import (
	"errors"
	"fmt"

	"github.com/yywing/go-amqp-engine/encoding"
	"github.com/yywing/go-amqp-engine/frames"
	"github.com/yywing/go-amqp-engine/internal/debug"
	"github.com/yywing/go-amqp-engine/internal/tracker"
)

// SenderOptions contains the optional settings for configuring an AMQP sender.
type SenderOptions struct {
	// Capabilities is the list of extension capabilities the sender supports.
	Capabilities []string

	// Durability indicates what state of the sender will be retained durably.
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

	// Name sets the name of the link.
	//
	// Link names must be unique per-connection and direction.
	//
	// Default: randomly generated.
	Name string

	// Properties sets an entry in the link properties map sent to the server.
	Properties map[string]any

	// RequestedReceiverSettleMode sets the requested receiver settlement mode.
	//
	// If a settlement mode is explicitly set and the server does not
	// honor it an error will be returned during link attachment.
	//
	// Default: Accept the settlement mode set by the server, commonly ModeFirst.
	RequestedReceiverSettleMode *ReceiverSettleMode

	// SettlementMode sets the settlement mode in use by this sender.
	//
	// Default: ModeMixed.
	SettlementMode *SenderSettleMode

	// SourceAddress specifies the source address for this sender.
	SourceAddress string

	// DeliveryTagger assigns tags to messages that do not carry one.
	//
	// Default: a CounterTagger.
	DeliveryTagger DeliveryTagger

	// AckHandler receives the outcome of unsettled deliveries.
	AckHandler AckHandler
}

// Sender sends messages on a single AMQP link.
type Sender struct {
	link

	settleMode    SenderSettleMode
	rcvSettleMode *ReceiverSettleMode // requested, then the peer's answer

	refiller   func()
	ackHandler AckHandler
	tagger     DeliveryTagger
	unsettled  *tracker.Tracker
}

func newSender(s *Session, name string) *Sender {
	snd := &Sender{
		link:       newLink(s, name, encoding.RoleSender),
		settleMode: ModeMixed,
		tagger:     &CounterTagger{},
		unsettled:  tracker.New(),
	}
	snd.self = snd
	snd.source = &frames.Source{}
	return snd
}

func (s *Sender) applyOptions(opts *SenderOptions) error {
	if opts.SettlementMode != nil {
		if m := *opts.SettlementMode; m > ModeMixed {
			return fmt.Errorf("invalid SettlementMode %d", m)
		}
		s.settleMode = *opts.SettlementMode
	}
	if opts.RequestedReceiverSettleMode != nil {
		if m := *opts.RequestedReceiverSettleMode; m > ModeSecond {
			return fmt.Errorf("invalid RequestedReceiverSettleMode %d", m)
		}
		s.rcvSettleMode = opts.RequestedReceiverSettleMode.Ptr()
	}
	if opts.ExpiryPolicy != "" {
		if err := opts.ExpiryPolicy.Validate(); err != nil {
			return err
		}
	}
	for _, v := range opts.Capabilities {
		s.source.Capabilities = append(s.source.Capabilities, encoding.Symbol(v))
	}
	s.source.Address = opts.SourceAddress
	s.source.Durable = opts.Durability
	s.source.ExpiryPolicy = opts.ExpiryPolicy
	s.source.Timeout = opts.ExpiryTimeout
	if opts.DynamicAddress {
		s.target.Address = ""
		s.target.Dynamic = true
		s.dynamicAddr = true
	}
	if opts.Properties != nil {
		s.properties = make(map[encoding.Symbol]any, len(opts.Properties))
		for k, v := range opts.Properties {
			if k == "" {
				return errors.New("link property key must not be empty")
			}
			s.properties[encoding.Symbol(k)] = v
		}
	}
	if opts.DeliveryTagger != nil {
		s.tagger = opts.DeliveryTagger
	}
	s.ackHandler = opts.AckHandler
	return nil
}

// LinkCredit returns the credit granted by the peer's most recent flow,
// less the deliveries sent since.
func (s *Sender) LinkCredit() uint32 {
	return s.linkCredit
}

// DeliveryCount returns the link's delivery-count.
func (s *Sender) DeliveryCount() uint32 {
	return s.deliveryCount
}

// Unsettled returns the number of deliveries awaiting settlement.
func (s *Sender) Unsettled() int {
	return s.unsettled.Len()
}

// SettleMode returns the sender settle mode.
func (s *Sender) SettleMode() SenderSettleMode {
	return s.settleMode
}

// ReceiverSettleMode returns the receiver settle mode in force, the
// peer's once it has attached.
func (s *Sender) ReceiverSettleMode() ReceiverSettleMode {
	return receiverSettleModeValue(s.rcvSettleMode)
}

// SetAckHandler sets the handler receiving delivery outcomes.
func (s *Sender) SetAckHandler(h AckHandler) {
	s.ackHandler = h
}

// SetDeliveryTagger replaces the tag source for messages without a tag.
func (s *Sender) SetDeliveryTagger(t DeliveryTagger) {
	s.tagger = t
}

// Full reports whether Offer would refuse a message: the link is not
// attached, has no credit, or the session window is closed.
func (s *Sender) Full() bool {
	return s.state != LinkAttached || s.linkCredit == 0 || !s.session.SufficientSessionCredit()
}

// Refiller registers task to run once, the next time credit or session
// window becomes available. It must be registered again after it ran.
func (s *Sender) Refiller(task func()) {
	s.refiller = task
	if task != nil && !s.Full() {
		s.session.conn.schedule(s.maybeRefill)
	}
}

func (s *Sender) maybeRefill() {
	if s.refiller == nil || s.Full() {
		return
	}
	task := s.refiller
	s.refiller = nil
	task()
}

// Offer sends payload as a message with default transfer fields.
func (s *Sender) Offer(payload []byte) bool {
	return s.OfferMessage(&Message{Payload: payload})
}

// OfferValue encodes v and offers the result. Encoding errors are logged
// and reported as false.
func (s *Sender) OfferValue(v Marshaler) bool {
	if s.Full() {
		s.stalled()
		return false
	}
	payload, err := v.MarshalAMQP()
	if err != nil {
		debug.Log(0, "TX (Sender %s): encode: %v", s.key.name, err)
		return false
	}
	return s.OfferMessage(&Message{Payload: payload})
}

// OfferMessage sends msg if credit and session window allow it and
// returns false without side effects otherwise.
func (s *Sender) OfferMessage(msg *Message) bool {
	if s.Full() {
		s.stalled()
		return false
	}
	if s.peerMaxMessageSize != 0 && uint64(len(msg.Payload)) > s.peerMaxMessageSize {
		debug.Log(0, "TX (Sender %s): message of %d bytes exceeds peer max message size %d",
			s.key.name, len(msg.Payload), s.peerMaxMessageSize)
		s.session.conn.metrics.CreditStall("message-size")
		return false
	}

	maxPayload := s.session.conn.maxTransferPayload()
	frameCount := 1
	if len(msg.Payload) > maxPayload {
		frameCount = (len(msg.Payload) + maxPayload - 1) / maxPayload
	}
	if !s.session.hasWindow(uint32(frameCount)) {
		s.stalled()
		return false
	}

	tag := msg.DeliveryTag
	if tag == nil {
		tag = s.tagger.NextTag()
	}
	settled := s.settleMode == ModeSettled || (s.settleMode == ModeMixed && msg.Settled)
	id := s.session.allocDeliveryID()
	s.linkCredit--
	s.deliveryCount++

	if !settled {
		s.unsettled.Record(&tracker.Delivery{ID: id, Tag: tag})
		s.session.conn.metrics.Unsettled("sender", 1)
	}

	format := msg.Format
	payload := msg.Payload
	for i := 0; i < frameCount; i++ {
		fr := &frames.PerformTransfer{Handle: s.handle}
		if i == 0 {
			fr.DeliveryID = &id
			fr.DeliveryTag = tag
			fr.MessageFormat = &format
			fr.Settled = settled
		}
		n := len(payload)
		if n > maxPayload {
			n = maxPayload
		}
		fr.Payload = payload[:n]
		payload = payload[n:]
		fr.More = i < frameCount-1
		s.session.sendTransfer(fr)
	}

	debug.Log(2, "TX (Sender %s): delivery %d, %d frame(s), credit %d", s.key.name, id, frameCount, s.linkCredit)
	s.session.conn.metrics.Delivery("sender", len(msg.Payload))
	if settled {
		s.session.conn.metrics.Settled("sender", "presettled")
	}
	return true
}

func (s *Sender) stalled() {
	switch {
	case s.state != LinkAttached:
	case s.linkCredit == 0:
		s.session.conn.metrics.CreditStall("link")
	default:
		s.session.conn.metrics.CreditStall("session")
	}
}

// Available reports to the peer how many messages could be sent if it
// granted the credit.
func (s *Sender) Available(n uint32) error {
	if s.state != LinkAttached {
		return &LinkError{inner: ErrNotAttached}
	}
	s.sendFlow(false, &n)
	return nil
}

func (s *Sender) sendAttach() {
	s.attachSent = true
	s.session.conn.writeFrame(s.session.channel, &frames.PerformAttach{
		Name:                 s.key.name,
		Handle:               s.handle,
		Role:                 encoding.RoleSender,
		SenderSettleMode:     s.settleMode.Ptr(),
		ReceiverSettleMode:   s.rcvSettleMode,
		Source:               s.source,
		Target:               s.target,
		InitialDeliveryCount: s.deliveryCount,
		MaxMessageSize:       s.maxMessageSize,
		Properties:           s.properties,
	})
}

func (s *Sender) remoteAttach(body *frames.PerformAttach) {
	if body.Target == nil {
		// refused, the peer's Detach follows
		debug.Log(1, "RX (Sender %s): attach without target", s.key.name)
		return
	}
	if s.rcvSettleMode != nil && body.ReceiverSettleMode != nil && *s.rcvSettleMode != *body.ReceiverSettleMode && !s.peerInitiated {
		s.rejectAttach(asError(fmt.Errorf("amqp: receiver settlement mode %d requested, received %d from server",
			*s.rcvSettleMode, *body.ReceiverSettleMode)))
		return
	}
	if body.ReceiverSettleMode != nil {
		s.rcvSettleMode = body.ReceiverSettleMode.Ptr()
	}
	if s.dynamicAddr {
		s.target = body.Target
	}
	s.peerMaxMessageSize = body.MaxMessageSize
	s.attached()
}

func (s *Sender) muxFlow(body *frames.PerformFlow) {
	previous := s.linkCredit
	if body.LinkCredit != nil {
		s.linkCredit = *body.LinkCredit
	}
	debug.Log(3, "RX (Sender %s): flow - linkCredit: %d, drain: %v", s.key.name, s.linkCredit, body.Drain)

	if s.state != LinkAttached {
		return
	}
	if s.linkCredit > previous {
		s.maybeRefill()
	}

	if body.Drain {
		// use up what the refiller did not
		s.deliveryCount += s.linkCredit
		s.linkCredit = 0
		s.sendFlow(true, nil)
		return
	}
	if body.Echo {
		s.sendFlow(false, nil)
	}
}

func (s *Sender) sendFlow(drain bool, available *uint32) {
	handle := s.handle
	deliveryCount := s.deliveryCount
	linkCredit := s.linkCredit
	s.session.sendFlow(&frames.PerformFlow{
		Handle:        &handle,
		DeliveryCount: &deliveryCount,
		LinkCredit:    &linkCredit,
		Available:     available,
		Drain:         drain,
	})
}

func (s *Sender) muxTransfer(body *frames.PerformTransfer) {
	s.detachWithError(protocolError(ErrCondNotAllowed, "transfer received on sending link %q", s.key.name))
}

func (s *Sender) muxDisposition(body *frames.PerformDisposition) {
	affected := s.unsettled.ApplyDisposition(body.First, body.LastID(), body.Settled, body.State)
	if len(affected) == 0 {
		return
	}

	var settle []uint32
	for _, d := range affected {
		switch {
		case body.Settled:
		case encoding.Outcome(body.State):
			// the peer is in mode second and waits for our settlement
			d.RemoteSettled = true
			settle = append(settle, d.ID)
		default:
			continue
		}
		d.Settled = true
		s.ack(d)
	}
	s.sendSettled(settle, body.State)
	s.unsettled.Prune()
}

func (s *Sender) ack(d *tracker.Delivery) {
	s.session.conn.metrics.Settled("sender", outcomeName(d.State))
	s.session.conn.metrics.Unsettled("sender", -1)
	if s.ackHandler != nil {
		s.ackHandler.HandleAck(s, d.ID, d.Tag, d.State)
	}
}

// sendSettled settles ids, one disposition per contiguous run.
func (s *Sender) sendSettled(ids []uint32, state DeliveryState) {
	for i := 0; i < len(ids); {
		j := i
		for j+1 < len(ids) && ids[j+1] == ids[j]+1 {
			j++
		}
		fr := &frames.PerformDisposition{
			Role:    encoding.RoleSender,
			First:   ids[i],
			Settled: true,
			State:   state,
		}
		if j > i {
			last := ids[j]
			fr.Last = &last
		}
		s.session.sendDisposition(fr)
		i = j + 1
	}
}

func (s *Sender) release(err error) {
	if n := s.unsettled.Len(); n > 0 {
		s.session.conn.metrics.Unsettled("sender", -float64(n))
		s.unsettled.Clear()
	}
	s.refiller = nil
	s.linkCredit = 0
	s.finish(err)
}
