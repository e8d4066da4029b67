package amqp

import (
	"fmt"
	"math"
	"sort"

	"github.com/yywing/go-amqp-engine/encoding"
	"github.com/yywing/go-amqp-engine/frames"
	"github.com/yywing/go-amqp-engine/internal/bitmap"
	"github.com/yywing/go-amqp-engine/internal/debug"
)

// Default session options
const (
	defaultWindow = 5000
)

// SessionOptions contains the optional settings for configuring an AMQP session.
type SessionOptions struct {
	// IncomingWindow sets the number of transfer frames the session
	// accepts before the peer must wait for a flow.
	//
	// Default: 5000.
	IncomingWindow uint32

	// OutgoingWindow sets the outgoing-window announced to the peer.
	//
	// Default: 5000.
	OutgoingWindow uint32

	// MaxLinks sets the maximum number of links (Senders/Receivers)
	// allowed on the session.
	//
	// Minimum: 1.
	// Default: 4294967295.
	MaxLinks uint32

	// LinkHandler is told about links attached by the peer.
	LinkHandler LinkHandler
}

// Session is an AMQP session.
//
// A session multiplexes Senders and Receivers over one channel and
// accounts for the transfer window in both directions.
type Session struct {
	conn          *Conn
	channel       uint16 // session's local channel
	remoteChannel uint16 // session's remote channel
	remoteMapped  bool   // remoteChannel is valid
	state         SessionState
	err           error

	// flow control
	incomingWindow       uint32
	outgoingWindow       uint32
	needFlowCount        uint32 // transfers received since the last flow sent
	nextOutgoingID       uint32
	nextIncomingID       uint32
	remoteIncomingWindow uint32
	remoteOutgoingWindow uint32

	// delivery ids
	nextDeliveryID   uint32
	lastInDeliveryID uint32
	seenInDeliveryID bool
	handleMax        uint32
	peerHandleMax    uint32

	// link management
	handles       *bitmap.Bitmap
	links         map[uint32]linkEndpoint // by local handle
	linksByRemote map[uint32]linkEndpoint // by peer handle
	linksByKey    map[linkKey]linkEndpoint
	linkHandler   LinkHandler

	onBegin func()
	onEnd   []func(error)
}

func newSession(c *Conn, channel uint16, opts *SessionOptions) *Session {
	s := &Session{
		conn:           c,
		channel:        channel,
		incomingWindow: defaultWindow,
		outgoingWindow: defaultWindow,
		handleMax:      math.MaxUint32,
		peerHandleMax:  math.MaxUint32,
		links:          map[uint32]linkEndpoint{},
		linksByRemote:  map[uint32]linkEndpoint{},
		linksByKey:     map[linkKey]linkEndpoint{},
	}

	if opts != nil {
		if opts.IncomingWindow != 0 {
			s.incomingWindow = opts.IncomingWindow
		}
		if opts.OutgoingWindow != 0 {
			s.outgoingWindow = opts.OutgoingWindow
		}
		if opts.MaxLinks != 0 {
			// MaxLinks is the number of total links.
			// handleMax is the max handle ID which starts
			// at zero.  so we decrement by one
			s.handleMax = opts.MaxLinks - 1
		}
		s.linkHandler = opts.LinkHandler
	}

	// create handle map after options have been applied
	s.handles = bitmap.New(s.handleMax)
	return s
}

// Channel returns the local channel number.
func (s *Session) Channel() uint16 {
	return s.channel
}

// RemoteChannel returns the peer's channel number once it has begun.
func (s *Session) RemoteChannel() (uint16, bool) {
	return s.remoteChannel, s.remoteMapped
}

// State returns the session state.
func (s *Session) State() SessionState {
	return s.state
}

// Established reports whether the Begin exchange has completed and the
// session has not started ending.
func (s *Session) Established() bool {
	return s.state == SessionMapped
}

// Err returns the error the session ended with.
func (s *Session) Err() error {
	return s.err
}

// Conn returns the session's connection.
func (s *Session) Conn() *Conn {
	return s.conn
}

// IncomingWindow returns how many more transfer frames the session will
// accept before it has to send a flow.
func (s *Session) IncomingWindow() uint32 {
	return s.incomingWindow - s.needFlowCount
}

// RemoteIncomingWindow returns how many more transfer frames the peer
// currently accepts.
func (s *Session) RemoteIncomingWindow() uint32 {
	return s.remoteIncomingWindow
}

// NextOutgoingID returns the transfer-id the next sent transfer frame gets.
func (s *Session) NextOutgoingID() uint32 {
	return s.nextOutgoingID
}

// NextIncomingID returns the transfer-id expected on the next received
// transfer frame.
func (s *Session) NextIncomingID() uint32 {
	return s.nextIncomingID
}

// SetLinkHandler sets the handler told about links attached by the peer.
func (s *Session) SetLinkHandler(h LinkHandler) {
	s.linkHandler = h
}

// OnEnd registers task to run once, when the session returns to UNMAPPED.
func (s *Session) OnEnd(task func(error)) {
	s.onEnd = append(s.onEnd, task)
}

// Begin sends Begin and calls onBegin once the peer's Begin has arrived.
// When the peer began the session, Begin answers it and the session is
// mapped right away. onBegin may be nil.
func (s *Session) Begin(onBegin func()) {
	switch s.state {
	case SessionUnmapped:
		if s.conn.sessions[s.channel] != s {
			// released
			return
		}
		switch s.conn.state {
		case ConnOpenSent, ConnOpen:
		case ConnUnopened, ConnOpenRcvd:
			s.conn.OnConnected(func() { s.Begin(onBegin) })
			return
		default:
			return
		}
		s.onBegin = onBegin
		s.state = SessionBeginSent
		s.sendBegin(nil)
	case SessionBeginRcvd:
		remote := s.remoteChannel
		s.sendBegin(&remote)
		s.mapped()
		if onBegin != nil {
			s.conn.schedule(onBegin)
		}
	case SessionMapped:
		if onBegin != nil {
			s.conn.schedule(onBegin)
		}
	}
}

func (s *Session) sendBegin(remoteChannel *uint16) {
	s.conn.writeFrame(s.channel, &frames.PerformBegin{
		RemoteChannel:  remoteChannel,
		NextOutgoingID: s.nextOutgoingID,
		IncomingWindow: s.incomingWindow,
		OutgoingWindow: s.outgoingWindow,
		HandleMax:      s.handleMax,
	})
}

// peerBegan records a Begin from the peer for a session it initiated.
func (s *Session) peerBegan(body *frames.PerformBegin) {
	s.recordPeerBegin(body)
	s.state = SessionBeginRcvd
}

func (s *Session) recordPeerBegin(body *frames.PerformBegin) {
	s.nextIncomingID = body.NextOutgoingID
	s.remoteIncomingWindow = body.IncomingWindow
	s.remoteOutgoingWindow = body.OutgoingWindow
	s.peerHandleMax = body.HandleMax
}

// handleBegin processes the peer's answer to our Begin.
func (s *Session) handleBegin(body *frames.PerformBegin) {
	switch s.state {
	case SessionBeginSent:
		s.recordPeerBegin(body)
		s.mapped()
		if cb := s.onBegin; cb != nil {
			s.onBegin = nil
			cb()
		}
	case SessionEndSent:
		// ended before the peer answered; its End follows
		s.recordPeerBegin(body)
	default:
		s.conn.fail(protocolError(ErrCondIllegalState, "unexpected begin on channel %d in state %s", s.channel, s.state))
	}
}

func (s *Session) mapped() {
	s.state = SessionMapped
	s.conn.metrics.SessionMapped(1)
	debug.Log(1, "session mapped (Conn %s): channel %d <-> %d", s.conn.containerID, s.channel, s.remoteChannel)
}

// End ends the session gracefully. Attached links are released once the
// peer's End arrives, each firing OnDetach before OnEnd fires.
func (s *Session) End() {
	s.end(nil)
}

// EndWithReason is End with an error describing why.
func (s *Session) EndWithReason(reason string) {
	s.end(reasonError(ErrCondInternalError, reason))
}

// EndWithError is End with err sent to the peer.
func (s *Session) EndWithError(err error) {
	s.end(asError(err))
}

func (s *Session) end(e *Error) {
	switch s.state {
	case SessionUnmapped:
		if s.conn.sessions[s.channel] != s {
			return
		}
		// never begun, nothing to exchange
		s.conn.releaseSession(s)
		s.fireEnd(nil)
	case SessionBeginSent, SessionBeginRcvd, SessionMapped:
		if e != nil {
			s.err = &SessionError{inner: e}
		}
		for _, l := range s.sortedLinks() {
			b := l.linkBase()
			if b.state == LinkAttached || b.state == LinkAttaching {
				b.state = LinkDetaching
			}
		}
		if s.state == SessionBeginRcvd {
			// the peer's Begin must be answered before End
			remote := s.remoteChannel
			s.sendBegin(&remote)
		}
		if s.state == SessionMapped {
			s.conn.metrics.SessionMapped(-1)
		}
		s.state = SessionEndSent
		s.conn.writeFrame(s.channel, &frames.PerformEnd{Error: e})
	default:
		// already ending
	}
}

// endWithError ends the session because of a local protocol violation.
func (s *Session) endWithError(e *Error) {
	debug.Log(0, "session error (Conn %s): channel %d: %v", s.conn.containerID, s.channel, e)
	s.conn.metrics.Error("session")
	s.end(e)
}

func (s *Session) handleEnd(body *frames.PerformEnd) {
	switch s.state {
	case SessionEndSent:
		err := s.err
		if body.Error != nil {
			err = &SessionError{RemoteErr: body.Error}
		}
		s.unmap(err)
	case SessionBeginRcvd, SessionMapped:
		if s.state == SessionMapped {
			s.conn.metrics.SessionMapped(-1)
		} else {
			remote := s.remoteChannel
			s.sendBegin(&remote)
		}
		s.state = SessionEndRcvd
		s.conn.writeFrame(s.channel, &frames.PerformEnd{})
		s.unmap(&SessionError{RemoteErr: body.Error})
	}
}

// unmap completes the End exchange.
func (s *Session) unmap(err error) {
	s.releaseLinks(err)
	s.state = SessionUnmapped
	s.err = err
	s.conn.releaseSession(s)
	debug.Log(1, "session unmapped (Conn %s): channel %d: %v", s.conn.containerID, s.channel, err)
	s.fireEnd(err)
}

// abort tears the session down without any exchange, used when the
// connection closes.
func (s *Session) abort(err error) {
	if s.state == SessionMapped {
		s.conn.metrics.SessionMapped(-1)
	}
	s.releaseLinks(err)
	s.state = SessionUnmapped
	s.err = err
	s.fireEnd(err)
}

func (s *Session) fireEnd(err error) {
	callbacks := s.onEnd
	s.onEnd = nil
	s.onBegin = nil
	for _, cb := range callbacks {
		cb(err)
	}
}

func (s *Session) releaseLinks(err error) {
	for _, l := range s.sortedLinks() {
		b := l.linkBase()
		if b.state == LinkAttached || b.state == LinkAttaching {
			b.state = LinkDetaching
		}
		l.release(err)
	}
}

func (s *Session) sortedLinks() []linkEndpoint {
	handles := make([]uint32, 0, len(s.links))
	for h := range s.links {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	out := make([]linkEndpoint, 0, len(handles))
	for _, h := range handles {
		out = append(out, s.links[h])
	}
	return out
}

// handleFrame routes a frame received on this session's channel.
func (s *Session) handleFrame(fb frames.FrameBody) {
	if s.state == SessionEndSent {
		if body, ok := fb.(*frames.PerformEnd); ok {
			s.handleEnd(body)
		}
		// anything else is in flight from before our End
		return
	}
	if s.state != SessionMapped && s.state != SessionBeginRcvd {
		s.conn.fail(protocolError(ErrCondIllegalState, "received %s on channel %d in state %s", performative(fb), s.channel, s.state))
		return
	}

	switch body := fb.(type) {
	case *frames.PerformEnd:
		s.handleEnd(body)
	case *frames.PerformAttach:
		s.handleAttach(body)
	case *frames.PerformFlow:
		s.handleFlow(body)
	case *frames.PerformTransfer:
		s.handleTransfer(body)
	case *frames.PerformDisposition:
		s.handleDisposition(body)
	case *frames.PerformDetach:
		s.handleDetach(body)
	default:
		s.conn.fail(protocolError(ErrCondNotAllowed, "unexpected %s on channel %d", performative(fb), s.channel))
	}
}

func (s *Session) handleFlow(body *frames.PerformFlow) {
	// "When the endpoint receives a flow frame from its peer,
	// it MUST update the next-incoming-id directly from the
	// next-outgoing-id of the frame, and it MUST update the
	// remote-outgoing-window directly from the outgoing-window
	// of the frame."
	s.nextIncomingID = body.NextOutgoingID
	s.remoteOutgoingWindow = body.OutgoingWindow

	// "The remote-incoming-window is computed as follows:
	//
	// next-incoming-id(flow) + incoming-window(flow) - next-outgoing-id(endpoint)
	//
	// If the next-incoming-id field of the flow frame is not set, then remote-incoming-window is computed as follows:
	//
	// initial-outgoing-id(endpoint) + incoming-window(flow) - next-outgoing-id(endpoint)"
	var nextIncoming uint32 // initial-outgoing-id is always zero
	if body.NextIncomingID != nil {
		nextIncoming = *body.NextIncomingID
	}
	previous := s.remoteIncomingWindow
	s.remoteIncomingWindow = nextIncoming + body.IncomingWindow - s.nextOutgoingID
	debug.Log(3, "RX (Session %d) flow - remoteOutgoingWindow: %d remoteIncomingWindow: %d nextOutgoingID: %d",
		s.channel, s.remoteOutgoingWindow, s.remoteIncomingWindow, s.nextOutgoingID)

	if body.Handle != nil {
		l, ok := s.linksByRemote[*body.Handle]
		if !ok {
			s.conn.fail(protocolError(ErrCondUnattachedHandle, "flow for unattached handle %d", *body.Handle))
			return
		}
		l.muxFlow(body)
	} else if body.Echo {
		s.sendFlow(&frames.PerformFlow{})
	}

	if s.remoteIncomingWindow > previous {
		s.refillSenders()
	}
}

// refillSenders lets senders that were blocked on the session window retry.
func (s *Session) refillSenders() {
	for _, l := range s.sortedLinks() {
		if snd, ok := l.(*Sender); ok {
			snd.maybeRefill()
		}
		if !s.SufficientSessionCredit() {
			return
		}
	}
}

// sendFlow fills in the session fields of fr and sends it. Every flow
// advertises the full incoming window again.
func (s *Session) sendFlow(fr *frames.PerformFlow) {
	niID := s.nextIncomingID
	fr.NextIncomingID = &niID
	fr.IncomingWindow = s.incomingWindow
	fr.NextOutgoingID = s.nextOutgoingID
	fr.OutgoingWindow = s.outgoingWindow
	s.needFlowCount = 0
	s.conn.writeFrame(s.channel, fr)
}

// SufficientSessionCredit reports whether the peer's incoming window
// admits another transfer frame.
func (s *Session) SufficientSessionCredit() bool {
	return s.hasWindow(1)
}

func (s *Session) hasWindow(frameCount uint32) bool {
	return s.state == SessionMapped && s.conn.state == ConnOpen && s.remoteIncomingWindow >= frameCount
}

// allocDeliveryID returns the next outgoing delivery id.
func (s *Session) allocDeliveryID() uint32 {
	id := s.nextDeliveryID
	s.nextDeliveryID++
	return id
}

// sendTransfer writes one transfer frame, consuming session window.
func (s *Session) sendTransfer(fr *frames.PerformTransfer) {
	debug.Assert(s.remoteIncomingWindow > 0, "transfer on channel %d without remote incoming window", s.channel)
	s.nextOutgoingID++
	if s.remoteIncomingWindow > 0 {
		s.remoteIncomingWindow--
	}
	s.conn.writeFrame(s.channel, fr)
}

// acceptDeliveryID checks that an incoming delivery id follows the
// previous one.
func (s *Session) acceptDeliveryID(id uint32) bool {
	if s.seenInDeliveryID && id != s.lastInDeliveryID+1 {
		return false
	}
	s.seenInDeliveryID = true
	s.lastInDeliveryID = id
	return true
}

func (s *Session) handleTransfer(body *frames.PerformTransfer) {
	if s.needFlowCount >= s.incomingWindow {
		s.endWithError(protocolError(ErrCondWindowViolation, "transfer exceeds incoming window of %d", s.incomingWindow))
		return
	}
	s.needFlowCount++
	s.nextIncomingID++
	if s.remoteOutgoingWindow > 0 {
		s.remoteOutgoingWindow--
	}

	l, ok := s.linksByRemote[body.Handle]
	if !ok {
		s.conn.fail(protocolError(ErrCondUnattachedHandle, "transfer for unattached handle %d", body.Handle))
		return
	}
	l.muxTransfer(body)

	if s.state == SessionMapped && s.needFlowCount >= s.incomingWindow/2 {
		debug.Log(3, "RX (Session %d): flow - needFlowCount(%d) >= incomingWindow(%d)/2", s.channel, s.needFlowCount, s.incomingWindow)
		s.sendFlow(&frames.PerformFlow{})
	}
}

func (s *Session) handleDisposition(body *frames.PerformDisposition) {
	// a disposition from the peer's receivers settles our senders'
	// deliveries and vice versa
	for _, l := range s.sortedLinks() {
		if l.linkBase().key.role == !body.Role {
			l.muxDisposition(body)
		}
	}
}

func (s *Session) sendDisposition(fr *frames.PerformDisposition) {
	s.conn.writeFrame(s.channel, fr)
}

func (s *Session) handleAttach(body *frames.PerformAttach) {
	if _, taken := s.linksByRemote[body.Handle]; taken {
		s.endWithError(protocolError(ErrCondHandleInUse, "handle %d already in use", body.Handle))
		return
	}

	// the peer's role is the opposite of ours
	key := linkKey{name: body.Name, role: !body.Role}
	l, ok := s.linksByKey[key]
	if !ok {
		s.acceptAttach(body)
		return
	}

	b := l.linkBase()
	if b.remoteAttached || (b.state != LinkAttaching && b.state != LinkDetaching) {
		s.endWithError(protocolError(ErrCondNotAllowed, "unexpected attach for link %q", body.Name))
		return
	}
	b.remoteHandle = body.Handle
	b.remoteAttached = true
	s.linksByRemote[body.Handle] = l
	if b.state == LinkDetaching {
		// detached locally before the peer answered; its Detach follows
		return
	}
	l.remoteAttach(body)
}

// acceptAttach handles a link initiated by the peer.
func (s *Session) acceptAttach(body *frames.PerformAttach) {
	var l linkEndpoint
	if body.Role == encoding.RoleSender {
		r := newReceiver(s, body.Name)
		r.source = body.Source
		r.target = body.Target
		if body.ReceiverSettleMode != nil {
			r.settleMode = *body.ReceiverSettleMode
		}
		l = r
	} else {
		snd := newSender(s, body.Name)
		snd.source = body.Source
		snd.target = body.Target
		if body.SenderSettleMode != nil {
			snd.settleMode = *body.SenderSettleMode
		}
		l = snd
	}

	b := l.linkBase()
	if err := s.registerLink(l); err != nil {
		s.endWithError(protocolError(ErrCondResourceLimitExceeded, "cannot accept link %q: %v", body.Name, err))
		return
	}
	b.state = LinkAttaching
	b.remoteHandle = body.Handle
	b.remoteAttached = true
	b.peerInitiated = true
	s.linksByRemote[body.Handle] = l

	if s.linkHandler == nil {
		b.refuse(&Error{Condition: ErrCondNotFound, Description: fmt.Sprintf("no handler for link %q", body.Name)})
		return
	}
	s.linkHandler.LinkCreated(l)

	switch {
	case b.refusing:
		b.refuse(b.detachErr)
	case b.state == LinkAttaching:
		l.sendAttach()
		l.remoteAttach(body)
	}
}

// Attach allocates the lowest free handle for l, sends Attach and calls
// onAttach once the peer has attached its end. onAttach may be nil.
func (s *Session) Attach(l Link, onAttach func()) error {
	ep, ok := l.(linkEndpoint)
	if !ok {
		return fmt.Errorf("amqp: unsupported link type %T", l)
	}
	b := ep.linkBase()
	if b.session != s {
		return fmt.Errorf("amqp: link %q belongs to another session", b.key.name)
	}
	if s.state != SessionMapped {
		return ErrSessionNotMapped
	}
	if b.state != LinkDetached {
		return fmt.Errorf("amqp: link %q is %s", b.key.name, b.state)
	}
	if err := s.registerLink(ep); err != nil {
		return err
	}
	b.state = LinkAttaching
	b.onAttach = onAttach
	ep.sendAttach()
	return nil
}

// Detach detaches l. It is the same as l.Detach().
func (s *Session) Detach(l Link) {
	l.Detach()
}

func (s *Session) registerLink(l linkEndpoint) error {
	b := l.linkBase()
	if _, exists := s.linksByKey[b.key]; exists {
		return fmt.Errorf("link with name '%v' already exists", b.key.name)
	}
	next, ok := s.handles.Next()
	if !ok || next > s.peerHandleMax {
		if ok {
			s.handles.Remove(next)
		}
		return ErrHandlesExhausted
	}
	b.handle = next
	b.remoteAttached = false
	b.peerInitiated = false
	s.links[next] = l
	s.linksByKey[b.key] = l
	return nil
}

// deregisterLink frees the link's handle once Detach has been exchanged.
func (s *Session) deregisterLink(l linkEndpoint) {
	b := l.linkBase()
	if s.links[b.handle] == l {
		delete(s.links, b.handle)
		s.handles.Remove(b.handle)
	}
	if b.remoteAttached && s.linksByRemote[b.remoteHandle] == l {
		delete(s.linksByRemote, b.remoteHandle)
	}
	if s.linksByKey[b.key] == l {
		delete(s.linksByKey, b.key)
	}
}

func (s *Session) handleDetach(body *frames.PerformDetach) {
	l, ok := s.linksByRemote[body.Handle]
	if !ok {
		s.conn.fail(protocolError(ErrCondUnattachedHandle, "detach for unattached handle %d", body.Handle))
		return
	}
	l.linkBase().handleDetach(body)
}

// NewSender creates a detached Sender targeting target. Attach it with
// Session.Attach.
func (s *Session) NewSender(target string, opts *SenderOptions) (*Sender, error) {
	name := ""
	if opts != nil {
		name = opts.Name
	}
	snd := newSender(s, name)
	snd.target = &frames.Target{Address: target}
	if opts != nil {
		if err := snd.applyOptions(opts); err != nil {
			return nil, err
		}
	}
	return snd, nil
}

// NewReceiver creates a detached Receiver reading from source. Attach it
// with Session.Attach.
func (s *Session) NewReceiver(source string, opts *ReceiverOptions) (*Receiver, error) {
	name := ""
	if opts != nil {
		name = opts.Name
	}
	r := newReceiver(s, name)
	r.source = &frames.Source{Address: source}
	if opts != nil {
		if err := r.applyOptions(opts); err != nil {
			return nil, err
		}
	}
	return r, nil
}
