package amqp

import (
	"github.com/google/uuid"
	"github.com/yywing/go-amqp-engine/encoding"
	"github.com/yywing/go-amqp-engine/frames"
	"github.com/yywing/go-amqp-engine/internal/debug"
)

// linkKey uniquely identifies a link on a connection by name and direction.
//
// A link can be identified uniquely by the ordered tuple
//
//	(source-container-id, target-container-id, name)
//
// On a single connection the container ID pairs can be abbreviated
// to a boolean flag indicating the direction of the link.
type linkKey struct {
	name string
	role encoding.Role // Local role: sender/receiver
}

// Link is the part common to Senders and Receivers.
type Link interface {
	// Name returns the link name.
	Name() string

	// Handle returns the local handle, valid while the link is not DETACHED.
	Handle() uint32

	// Role returns the local role of the link.
	Role() Role

	Source() *frames.Source
	Target() *frames.Target

	// MaxMessageSize returns the largest message this end accepts, 0 for
	// no limit.
	MaxMessageSize() uint64

	State() LinkState
	Session() *Session

	// Detach sends a closing Detach. OnDetach fires once the peer answers.
	Detach()
	DetachWithReason(reason string)
	DetachWithError(err error)

	// OnDetach registers task to run once, when the link reaches DETACHED.
	OnDetach(task func(error))

	// Err returns the error the link detached with.
	Err() error

	linkBase() *link
}

// linkEndpoint is implemented by *Sender and *Receiver.
type linkEndpoint interface {
	Link

	sendAttach()
	remoteAttach(body *frames.PerformAttach)
	muxFlow(body *frames.PerformFlow)
	muxTransfer(body *frames.PerformTransfer)
	muxDisposition(body *frames.PerformDisposition)
	release(err error)
}

// link contains the common state of Senders and Receivers.
type link struct {
	self    linkEndpoint
	session *Session
	key     linkKey // Name and direction

	handle         uint32 // our handle
	remoteHandle   uint32 // remote's handle
	remoteAttached bool   // remoteHandle is valid
	peerInitiated  bool   // the peer sent the first Attach

	source     *frames.Source
	target     *frames.Target
	properties map[encoding.Symbol]any // additional properties sent upon link attach

	dynamicAddr bool // request a dynamically created address

	// "The delivery-count is initialized by the sender when a link endpoint is created,
	// and is incremented whenever a message is sent.
	// Note that, despite its name, the delivery-count is not a count but a
	// sequence number initialized at an arbitrary point by the sender."
	deliveryCount uint32

	// "The link-credit variable defines the current maximum legal amount that the
	// delivery-count can be increased by. This identifies a delivery-limit that can
	// be computed by adding the link-credit to the delivery-count."
	linkCredit uint32

	maxMessageSize     uint64 // largest message we accept, 0 is unlimited
	peerMaxMessageSize uint64 // largest message the peer accepts, 0 is unlimited

	state      LinkState
	attachSent bool
	refusing   bool   // detached from LinkCreated before our Attach went out
	detachErr  *Error // error carried on our Detach
	counted    bool   // included in the attached-links gauge
	err        error

	onAttach func()
	onDetach []func(error)
}

func newLink(s *Session, name string, role encoding.Role) link {
	if name == "" {
		name = uuid.NewString()
	}
	return link{
		session: s,
		key:     linkKey{name: name, role: role},
	}
}

func (l *link) linkBase() *link {
	return l
}

func (l *link) Name() string {
	return l.key.name
}

func (l *link) Handle() uint32 {
	return l.handle
}

func (l *link) Role() Role {
	return l.key.role
}

func (l *link) Source() *frames.Source {
	return l.source
}

func (l *link) Target() *frames.Target {
	return l.target
}

func (l *link) MaxMessageSize() uint64 {
	return l.maxMessageSize
}

// PeerMaxMessageSize returns the largest message the peer accepts, 0 for
// no limit. It is valid once the peer's Attach has arrived.
func (l *link) PeerMaxMessageSize() uint64 {
	return l.peerMaxMessageSize
}

func (l *link) State() LinkState {
	return l.state
}

func (l *link) Session() *Session {
	return l.session
}

func (l *link) Err() error {
	return l.err
}

func (l *link) OnDetach(task func(error)) {
	l.onDetach = append(l.onDetach, task)
}

func (l *link) Detach() {
	l.detach(nil)
}

func (l *link) DetachWithReason(reason string) {
	l.detach(reasonError(ErrCondDetachForced, reason))
}

func (l *link) DetachWithError(err error) {
	l.detach(asError(err))
}

func (l *link) detach(e *Error) {
	switch l.state {
	case LinkAttaching:
		if !l.attachSent {
			// peer-initiated link still inside LinkCreated
			l.refusing = true
			l.detachErr = e
			return
		}
	case LinkAttached:
	default:
		return
	}
	l.state = LinkDetaching
	l.detachErr = e
	if e != nil {
		l.err = &LinkError{inner: e}
	}
	l.sendDetach()
}

// detachWithError detaches because of a local protocol violation.
func (l *link) detachWithError(e *Error) {
	debug.Log(0, "link error (Session %d, handle %d): %v", l.session.channel, l.handle, e)
	l.session.conn.metrics.Error("link")
	l.detach(e)
}

func (l *link) sendDetach() {
	l.session.conn.writeFrame(l.session.channel, &frames.PerformDetach{
		Handle: l.handle,
		Closed: true,
		Error:  l.detachErr,
	})
}

// refuse answers a peer Attach without terminus and detaches right away.
func (l *link) refuse(e *Error) {
	l.session.conn.writeFrame(l.session.channel, &frames.PerformAttach{
		Name:   l.key.name,
		Handle: l.handle,
		Role:   l.key.role,
	})
	l.attachSent = true
	l.state = LinkDetaching
	l.detachErr = e
	l.sendDetach()
}

// rejectAttach detaches a link whose peer Attach is unacceptable. The link
// never counts as attached and onAttach does not run.
func (l *link) rejectAttach(e *Error) {
	l.onAttach = nil
	l.state = LinkDetaching
	l.detachErr = e
	l.err = &LinkError{inner: e}
	l.sendDetach()
}

// attached moves the link to ATTACHED after both Attach frames were seen.
func (l *link) attached() {
	l.state = LinkAttached
	l.counted = true
	l.session.conn.metrics.LinkAttached(roleName(l.key.role), 1)
	debug.Log(1, "link attached (Session %d): %q handle %d <-> %d", l.session.channel, l.key.name, l.handle, l.remoteHandle)
	if cb := l.onAttach; cb != nil {
		l.onAttach = nil
		cb()
	}
}

func (l *link) handleDetach(body *frames.PerformDetach) {
	switch l.state {
	case LinkDetaching:
		err := l.err
		if body.Error != nil {
			err = &LinkError{RemoteErr: body.Error}
		}
		l.self.release(err)
	case LinkAttaching, LinkAttached:
		// "If the link is not closed ... it MUST respond with a detach"
		l.state = LinkDetaching
		l.detachErr = nil
		l.sendDetach()
		l.self.release(&LinkError{RemoteErr: body.Error})
	}
}

// finish moves the link to DETACHED, frees its handle and fires OnDetach.
func (l *link) finish(err error) {
	if l.state == LinkDetached {
		return
	}
	if l.counted {
		l.counted = false
		l.session.conn.metrics.LinkAttached(roleName(l.key.role), -1)
	}
	l.state = LinkDetached
	l.err = err
	l.attachSent = false
	l.refusing = false
	l.session.deregisterLink(l.self)
	debug.Log(1, "link detached (Session %d): %q: %v", l.session.channel, l.key.name, err)

	l.onAttach = nil
	callbacks := l.onDetach
	l.onDetach = nil
	for _, cb := range callbacks {
		cb(err)
	}
}

func roleName(r encoding.Role) string {
	if r == encoding.RoleReceiver {
		return "receiver"
	}
	return "sender"
}
