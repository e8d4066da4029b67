package amqp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yywing/go-amqp-engine/dispatch"
	"github.com/yywing/go-amqp-engine/encoding"
	"github.com/yywing/go-amqp-engine/frames"
	"github.com/yywing/go-amqp-engine/internal/bitmap"
	"github.com/yywing/go-amqp-engine/internal/debug"
	"github.com/yywing/go-amqp-engine/metrics"
)

// Default connection options
const (
	defaultMaxFrameSize = 65536
	defaultMaxSessions  = 65536
	defaultCloseTimeout = 60 * time.Second
	defaultDialTimeout  = 30 * time.Second

	// minimum max-frame-size any peer must accept
	minMaxFrameSize = 512

	// bytes reserved in each frame for the transfer performative
	maxTransferFrameHeader = 66
)

// ConnOptions contains the optional settings for configuring an AMQP connection.
type ConnOptions struct {
	// ContainerID sets the container-id to use when opening the connection.
	//
	// A container ID will be randomly generated if this option is not used.
	ContainerID string

	// HostName sets the hostname sent in the AMQP
	// Open frame and TLS ServerName (if not otherwise set).
	HostName string

	// IdleTimeout specifies the maximum period between
	// receiving frames from the peer.
	//
	// Specify a value less than zero to disable idle timeout.
	//
	// Default: 0 (disabled).
	IdleTimeout time.Duration

	// MaxFrameSize sets the maximum frame size that
	// the connection will accept.
	//
	// Must be 512 or greater.
	//
	// Default: 65536.
	MaxFrameSize uint32

	// MaxSessions sets the maximum number of channels.
	// The value must be greater than zero.
	//
	// Default: 65536.
	MaxSessions uint16

	// Properties sets an entry in the connection properties map sent to the server.
	Properties map[string]any

	// Queue is the serialized execution context the connection runs on.
	// When nil the connection starts its own and stops it once closed.
	Queue dispatch.Queue

	// Codec converts frames to bytes for connections created by Connect
	// or Serve. Connect fails with ErrTransportUnavailable without one.
	Codec Codec

	// TLSConfig sets the tls.Config used for amqps:// URIs.
	TLSConfig *tls.Config

	// Timeout configures how long to wait for the
	// transport to be established.
	//
	// Default: 30 seconds.
	Timeout time.Duration

	// CloseTimeout bounds how long a graceful Close waits for the peer's
	// Close before the connection is torn down anyway.
	//
	// Default: 60 seconds.
	CloseTimeout time.Duration

	// SessionHandler is told about sessions begun by the peer.
	SessionHandler SessionHandler

	// Metrics receives the connection's counters. Nil disables metrics.
	Metrics *metrics.Collector
}

// Conn is an AMQP connection endpoint.
//
// Unless noted otherwise, methods of Conn and of the sessions and links it
// owns must be called on the connection's queue: from a callback, or from
// a func passed to Inject or InjectWait.
type Conn struct {
	queue     dispatch.Queue
	ownsQueue bool
	transport Transport
	codec     Codec
	tlsConfig *tls.Config
	metrics   *metrics.Collector

	// local settings
	containerID  string
	hostname     string
	idleTimeout  time.Duration
	maxFrameSize uint32
	channelMax   uint16
	properties   map[encoding.Symbol]any
	dialTimeout  time.Duration
	closeTimeout time.Duration

	// peer settings, valid once the peer's Open arrived
	peerContainerID  string
	peerIdleTimeout  time.Duration
	peerMaxFrameSize uint32
	peerChannelMax   uint16

	server     bool
	state      ConnState
	opened     bool // reached ConnOpen at some point
	connecting bool
	err        error

	// session management
	channels         *bitmap.Bitmap
	sessions         map[uint16]*Session // by local channel
	sessionsByRemote map[uint16]*Session // by peer channel
	sessionHandler   SessionHandler

	onConnected    []func()
	onDisconnected []func(error)

	// idle timeout bookkeeping
	lastRx        time.Time
	lastTx        time.Time
	stopIdle      func() bool
	stopHeartbeat func() bool
	stopClose     func() bool

	done     chan struct{}
	doneOnce sync.Once
}

func newConn(opts *ConnOptions) (*Conn, error) {
	c := &Conn{
		containerID:      uuid.NewString(),
		maxFrameSize:     defaultMaxFrameSize,
		channelMax:       defaultMaxSessions - 1,
		peerMaxFrameSize: defaultMaxFrameSize,
		peerChannelMax:   math.MaxUint16,
		dialTimeout:      defaultDialTimeout,
		closeTimeout:     defaultCloseTimeout,
		sessions:         map[uint16]*Session{},
		sessionsByRemote: map[uint16]*Session{},
		done:             make(chan struct{}),
	}

	if opts == nil {
		opts = &ConnOptions{}
	}
	if opts.ContainerID != "" {
		c.containerID = opts.ContainerID
	}
	c.hostname = opts.HostName
	if opts.IdleTimeout > 0 {
		c.idleTimeout = opts.IdleTimeout
	}
	if opts.MaxFrameSize != 0 {
		if opts.MaxFrameSize < minMaxFrameSize {
			return nil, fmt.Errorf("invalid MaxFrameSize value %d", opts.MaxFrameSize)
		}
		c.maxFrameSize = opts.MaxFrameSize
	}
	if opts.MaxSessions > 0 {
		// MaxSessions is the number of channels, channelMax the largest one
		c.channelMax = opts.MaxSessions - 1
	}
	if opts.Properties != nil {
		c.properties = make(map[encoding.Symbol]any, len(opts.Properties))
		for k, v := range opts.Properties {
			c.properties[encoding.Symbol(k)] = v
		}
	}
	if opts.Timeout > 0 {
		c.dialTimeout = opts.Timeout
	}
	if opts.CloseTimeout > 0 {
		c.closeTimeout = opts.CloseTimeout
	}
	c.codec = opts.Codec
	c.tlsConfig = opts.TLSConfig
	c.sessionHandler = opts.SessionHandler
	c.metrics = opts.Metrics

	c.queue = opts.Queue
	if c.queue == nil {
		c.queue = dispatch.NewSerial(c.containerID)
		c.ownsQueue = true
	}
	c.channels = bitmap.New(uint32(c.channelMax))
	return c, nil
}

// ContainerID returns the local container-id.
func (c *Conn) ContainerID() string {
	return c.containerID
}

// PeerContainerID returns the container-id sent by the peer, or "" before
// its Open has arrived.
func (c *Conn) PeerContainerID() string {
	return c.peerContainerID
}

// PeerMaxFrameSize returns the max-frame-size announced by the peer.
func (c *Conn) PeerMaxFrameSize() uint32 {
	return c.peerMaxFrameSize
}

// State returns the connection state.
func (c *Conn) State() ConnState {
	return c.state
}

// Established reports whether the Open exchange has completed and the
// connection has not started closing.
func (c *Conn) Established() bool {
	return c.state == ConnOpen
}

// Err returns the error that closed the connection, or nil. It is safe to
// call from any goroutine once Done is closed.
func (c *Conn) Err() error {
	return c.err
}

// Done is closed once the connection reaches CLOSED.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Inject runs f on the connection's queue. It is safe to call from any
// goroutine.
func (c *Conn) Inject(f func()) error {
	return c.queue.Execute(f)
}

// InjectWait runs f on the connection's queue and waits for its result.
// It must not be called from the connection's queue.
func (c *Conn) InjectWait(ctx context.Context, f func() error) error {
	result := make(chan error, 1)
	if err := c.queue.Execute(func() { result <- f() }); err != nil {
		return err
	}
	var exited <-chan struct{}
	if e, ok := c.queue.(interface{ Exited() <-chan struct{} }); ok {
		exited = e.Exited()
	}
	select {
	case err := <-result:
		return err
	case <-exited:
		// every accepted task has run by now
		select {
		case err := <-result:
			return err
		default:
			return ErrConnClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnConnected registers task to run once the Open exchange completes. If
// the connection is already open, task is scheduled immediately.
func (c *Conn) OnConnected(task func()) {
	switch c.state {
	case ConnOpen:
		c.schedule(task)
	case ConnCloseSent, ConnCloseRcvd, ConnClosed:
		// never connects again
	default:
		c.onConnected = append(c.onConnected, task)
	}
}

// OnDisconnected registers task to run once, when the connection reaches
// CLOSED. task receives the closing error, nil after a clean local Close.
func (c *Conn) OnDisconnected(task func(error)) {
	if c.state == ConnClosed {
		err := c.err
		c.schedule(func() { task(err) })
		return
	}
	c.onDisconnected = append(c.onDisconnected, task)
}

// schedule runs task on the queue. Callers already run on the queue, so
// once it stops accepting work task runs inline.
func (c *Conn) schedule(task func()) {
	if err := c.queue.Execute(task); err != nil {
		task()
	}
}

// Connect dials uri and opens the connection over it. Supported schemes
// are amqp and amqps. It is safe to call from any goroutine and is a no-op
// once the connection is connecting or connected.
//
// Failures close the connection with a *ConnError wrapping
// ErrTransportUnavailable.
func (c *Conn) Connect(uri string) {
	_ = c.queue.Execute(func() {
		if c.connecting || c.transport != nil || c.state != ConnUnopened {
			return
		}
		if c.codec == nil {
			c.finish(&ConnError{inner: fmt.Errorf("%w: no codec configured", ErrTransportUnavailable)})
			return
		}
		u, err := url.Parse(uri)
		if err != nil {
			c.finish(&ConnError{inner: fmt.Errorf("%w: %v", ErrTransportUnavailable, err)})
			return
		}
		if c.hostname == "" {
			c.hostname = u.Hostname()
		}
		c.connecting = true
		go c.dial(u, c.hostname, c.tlsConfig, c.dialTimeout)
	})
}

func (c *Conn) dial(u *url.URL, serverName string, tlsConfig *tls.Config, timeout time.Duration) {
	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = "5672"
		if u.Scheme == "amqps" || u.Scheme == "amqp+ssl" {
			port = "5671"
		}
	}
	addr := net.JoinHostPort(host, port)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var (
		nc  net.Conn
		err error
	)
	switch u.Scheme {
	case "amqp", "":
		d := &net.Dialer{}
		nc, err = d.DialContext(ctx, "tcp", addr)
	case "amqps", "amqp+ssl":
		cfg := &tls.Config{}
		if tlsConfig != nil {
			cfg = tlsConfig.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = serverName
		}
		d := &tls.Dialer{Config: cfg}
		nc, err = d.DialContext(ctx, "tcp", addr)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if qerr := c.queue.Execute(func() {
		c.connecting = false
		if err != nil {
			debug.Log(0, "dial %s: %v", addr, err)
			c.finish(&ConnError{inner: fmt.Errorf("%w: %v", ErrTransportUnavailable, err)})
			return
		}
		if c.state != ConnUnopened {
			_ = nc.Close()
			return
		}
		c.bind(NewNetTransport(nc, c.codec))
	}); qerr != nil && nc != nil {
		_ = nc.Close()
	}
}

// ConnectTransport opens the connection over an established transport.
// It is safe to call from any goroutine.
func (c *Conn) ConnectTransport(t Transport) {
	_ = c.queue.Execute(func() {
		if c.transport != nil || c.state != ConnUnopened {
			return
		}
		c.bind(t)
	})
}

// bind attaches the transport. Clients send Open straight away, servers
// wait for the peer's.
func (c *Conn) bind(t Transport) {
	c.transport = t
	t.Start(c)
	if c.server {
		c.armIdleTimeout()
		return
	}
	c.sendOpen()
	c.state = ConnOpenSent
}

func (c *Conn) sendOpen() {
	c.writeFrame(0, &frames.PerformOpen{
		ContainerID:  c.containerID,
		Hostname:     c.hostname,
		MaxFrameSize: c.maxFrameSize,
		ChannelMax:   c.channelMax,
		IdleTimeout:  c.idleTimeout,
		Properties:   c.properties,
	})
	c.armIdleTimeout()
}

// ReceiveFrame implements FrameReceiver.
func (c *Conn) ReceiveFrame(fr frames.Frame) {
	_ = c.queue.Execute(func() {
		c.handleFrame(fr)
	})
}

// TransportFailed implements FrameReceiver.
func (c *Conn) TransportFailed(err error) {
	_ = c.queue.Execute(func() {
		c.transportFailed(err)
	})
}

func (c *Conn) transportFailed(err error) {
	if c.state == ConnClosed {
		return
	}
	debug.Log(0, "transport failed (Conn %s): %v", c.containerID, err)
	c.metrics.Error("connection")
	c.finish(&ConnError{inner: fmt.Errorf("%w: %v", ErrTransportUnavailable, err)})
}

func (c *Conn) handleFrame(fr frames.Frame) {
	if c.state == ConnClosed {
		return
	}
	c.lastRx = c.queue.Now()
	c.metrics.FrameReceived(performative(fr.Body))

	if fr.Body == nil {
		debug.Log(3, "RX (Conn %s): heartbeat", c.containerID)
		return
	}
	debug.Log(1, "RX (Conn %s): %s", c.containerID, fr)

	switch body := fr.Body.(type) {
	case *frames.PerformOpen:
		c.handleOpen(body)
		return
	case *frames.PerformClose:
		c.handleClose(body)
		return
	}

	if !c.opened {
		c.fail(protocolError(ErrCondNotAllowed, "received %s before open", performative(fr.Body)))
		return
	}
	if c.state == ConnCloseSent {
		// only the peer's Close matters now
		return
	}

	if begin, ok := fr.Body.(*frames.PerformBegin); ok {
		c.handleBegin(fr.Channel, begin)
		return
	}

	s, ok := c.sessionsByRemote[fr.Channel]
	if !ok {
		c.fail(protocolError(ErrCondNotAllowed, "received %s on unmapped channel %d", performative(fr.Body), fr.Channel))
		return
	}
	s.handleFrame(fr.Body)
}

func (c *Conn) handleOpen(body *frames.PerformOpen) {
	switch c.state {
	case ConnUnopened:
		if !c.server || c.transport == nil {
			c.fail(protocolError(ErrCondIllegalState, "unexpected open"))
			return
		}
		c.state = ConnOpenRcvd
		c.recordPeerOpen(body)
		c.sendOpen()
	case ConnOpenSent:
		c.recordPeerOpen(body)
	default:
		c.fail(protocolError(ErrCondIllegalState, "unexpected open in state %s", c.state))
		return
	}

	c.state = ConnOpen
	c.opened = true
	c.metrics.ConnOpened()
	c.armHeartbeat()
	debug.Log(0, "connection open (Conn %s): peer %s", c.containerID, c.peerContainerID)

	callbacks := c.onConnected
	c.onConnected = nil
	for _, cb := range callbacks {
		cb()
	}
}

func (c *Conn) recordPeerOpen(body *frames.PerformOpen) {
	c.peerContainerID = body.ContainerID
	c.peerIdleTimeout = body.IdleTimeout
	c.peerMaxFrameSize = body.MaxFrameSize
	if c.peerMaxFrameSize == 0 {
		c.peerMaxFrameSize = math.MaxUint32
	}
	if c.peerMaxFrameSize < minMaxFrameSize {
		c.peerMaxFrameSize = minMaxFrameSize
	}
	c.peerChannelMax = body.ChannelMax
}

func (c *Conn) handleClose(body *frames.PerformClose) {
	switch c.state {
	case ConnCloseSent:
		var err error
		if body.Error != nil {
			err = &ConnError{RemoteErr: body.Error}
		}
		c.finish(err)
	case ConnClosed:
	default:
		c.state = ConnCloseRcvd
		c.writeFrame(0, &frames.PerformClose{})
		c.finish(&ConnError{RemoteErr: body.Error})
	}
}

func (c *Conn) handleBegin(channel uint16, body *frames.PerformBegin) {
	if body.RemoteChannel != nil {
		s, ok := c.sessions[*body.RemoteChannel]
		if !ok {
			c.fail(protocolError(ErrCondNotAllowed, "begin for unknown channel %d", *body.RemoteChannel))
			return
		}
		if _, taken := c.sessionsByRemote[channel]; taken {
			c.fail(protocolError(ErrCondNotAllowed, "begin on channel %d already in use", channel))
			return
		}
		s.remoteChannel = channel
		s.remoteMapped = true
		c.sessionsByRemote[channel] = s
		s.handleBegin(body)
		return
	}

	// peer-initiated session
	if _, taken := c.sessionsByRemote[channel]; taken {
		c.fail(protocolError(ErrCondNotAllowed, "begin on channel %d already in use", channel))
		return
	}
	s, err := c.CreateSession(nil)
	if err != nil {
		c.fail(protocolError(ErrCondResourceLimitExceeded, "cannot accept session: %v", err))
		return
	}
	s.remoteChannel = channel
	s.remoteMapped = true
	c.sessionsByRemote[channel] = s
	s.peerBegan(body)

	if c.sessionHandler != nil {
		c.sessionHandler.SessionCreated(s)
	}
	if s.state == SessionBeginRcvd {
		s.Begin(nil)
	}
}

// CreateSession allocates the lowest free channel for a new session. No
// frame is sent until Session.Begin is called.
func (c *Conn) CreateSession(opts *SessionOptions) (*Session, error) {
	switch c.state {
	case ConnCloseSent, ConnCloseRcvd, ConnClosed:
		return nil, ErrConnClosed
	}
	ch, ok := c.channels.Next()
	if !ok || (c.opened && ch > uint32(c.peerChannelMax)) {
		if ok {
			c.channels.Remove(ch)
		}
		return nil, ErrChannelsExhausted
	}
	s := newSession(c, uint16(ch), opts)
	c.sessions[s.channel] = s
	debug.Log(2, "session created (Conn %s): channel %d", c.containerID, ch)
	return s, nil
}

// releaseSession frees the session's channels once End has been exchanged.
func (c *Conn) releaseSession(s *Session) {
	if c.sessions[s.channel] == s {
		delete(c.sessions, s.channel)
		c.channels.Remove(uint32(s.channel))
	}
	if s.remoteMapped && c.sessionsByRemote[s.remoteChannel] == s {
		delete(c.sessionsByRemote, s.remoteChannel)
	}
}

// Close closes the connection gracefully: it sends Close and tears down
// once the peer answers or CloseTimeout passes. It is safe to call from
// any goroutine.
func (c *Conn) Close() {
	_ = c.queue.Execute(func() {
		c.close(nil)
	})
}

// CloseWithReason is Close with an error describing why.
func (c *Conn) CloseWithReason(reason string) {
	_ = c.queue.Execute(func() {
		c.close(reasonError(ErrCondConnectionForced, reason))
	})
}

// CloseWithError sends Close carrying err and tears the connection down
// without waiting for the peer. It is safe to call from any goroutine.
func (c *Conn) CloseWithError(err error) {
	_ = c.queue.Execute(func() {
		c.fail(asError(err))
	})
}

func (c *Conn) close(e *Error) {
	switch c.state {
	case ConnUnopened:
		c.finish(nil)
	case ConnOpenSent, ConnOpenRcvd, ConnOpen:
		c.state = ConnCloseSent
		c.writeFrame(0, &frames.PerformClose{Error: e})
		c.stopClose = c.queue.ExecuteAfter(c.closeTimeout, func() {
			if c.state == ConnCloseSent {
				c.finish(&ConnError{inner: errors.New("amqp: timed out waiting for peer close")})
			}
		})
	default:
		// already closing
	}
}

// fail closes the connection immediately after telling the peer why.
func (c *Conn) fail(e *Error) {
	if c.state == ConnClosed {
		return
	}
	debug.Log(0, "connection error (Conn %s): %v", c.containerID, e)
	c.metrics.Error("connection")
	if c.state != ConnCloseSent && c.state != ConnCloseRcvd {
		c.writeFrame(0, &frames.PerformClose{Error: e})
	}
	c.finish(&ConnError{inner: e})
}

// finish moves the connection to CLOSED, releasing every session and link
// and firing OnDisconnected. err becomes Err().
func (c *Conn) finish(err error) {
	if c.state == ConnClosed {
		return
	}
	wasOpen := c.state == ConnOpen || c.state == ConnCloseSent || c.state == ConnCloseRcvd
	c.state = ConnClosed
	c.err = err

	for _, stop := range []func() bool{c.stopIdle, c.stopHeartbeat, c.stopClose} {
		if stop != nil {
			stop()
		}
	}

	// sessions in channel order
	channels := make([]int, 0, len(c.sessions))
	for ch := range c.sessions {
		channels = append(channels, int(ch))
	}
	sort.Ints(channels)
	for _, ch := range channels {
		if s, ok := c.sessions[uint16(ch)]; ok {
			s.abort(err)
		}
	}
	c.sessions = map[uint16]*Session{}
	c.sessionsByRemote = map[uint16]*Session{}

	if c.transport != nil {
		_ = c.transport.Close()
	}
	if wasOpen {
		c.metrics.ConnClosed()
	}
	debug.Log(0, "connection closed (Conn %s): %v", c.containerID, err)

	c.onConnected = nil
	callbacks := c.onDisconnected
	c.onDisconnected = nil
	for _, cb := range callbacks {
		cb(err)
	}

	c.doneOnce.Do(func() {
		close(c.done)
	})
	if c.ownsQueue {
		// let already scheduled callbacks run first
		q := c.queue
		_ = q.Execute(q.Close)
	}
}

// writeFrame hands a frame to the transport. It returns false when the
// frame could not be sent.
func (c *Conn) writeFrame(channel uint16, body frames.FrameBody) bool {
	if c.transport == nil || c.state == ConnClosed {
		return false
	}
	fr := frames.Frame{Type: frames.TypeAMQP, Channel: channel, Body: body}
	if body != nil {
		debug.Log(1, "TX (Conn %s): %s", c.containerID, fr)
	}
	if err := c.transport.WriteFrame(fr); err != nil {
		_ = c.queue.Execute(func() {
			c.transportFailed(err)
		})
		return false
	}
	c.lastTx = c.queue.Now()
	c.metrics.FrameSent(performative(body))
	return true
}

// armIdleTimeout starts the watchdog that closes the connection when the
// peer has been silent for the local idle timeout.
func (c *Conn) armIdleTimeout() {
	if c.idleTimeout <= 0 || c.stopIdle != nil {
		return
	}
	c.lastRx = c.queue.Now()
	interval := c.idleTimeout / 2

	var check func()
	check = func() {
		if c.state == ConnClosed {
			return
		}
		if silent := c.queue.Now().Sub(c.lastRx); silent >= c.idleTimeout {
			debug.Log(0, "idle timeout (Conn %s): nothing received for %v", c.containerID, silent)
			c.metrics.IdleTimeout()
			if c.state != ConnCloseSent && c.state != ConnCloseRcvd {
				c.writeFrame(0, &frames.PerformClose{Error: &Error{
					Condition:   ErrCondResourceLimitExceeded,
					Description: "local-idle-timeout expired",
				}})
			}
			c.finish(&ConnError{inner: ErrIdleTimeout})
			return
		}
		c.stopIdle = c.queue.ExecuteAfter(interval, check)
	}
	c.stopIdle = c.queue.ExecuteAfter(interval, check)
}

// armHeartbeat keeps the peer's idle timer from expiring by sending an
// empty frame whenever nothing was written for half its timeout.
func (c *Conn) armHeartbeat() {
	if c.peerIdleTimeout <= 0 {
		return
	}
	interval := c.peerIdleTimeout / 2

	var beat func()
	beat = func() {
		if c.state == ConnClosed {
			return
		}
		if c.queue.Now().Sub(c.lastTx) >= interval {
			c.writeFrame(0, nil)
		}
		c.stopHeartbeat = c.queue.ExecuteAfter(interval, beat)
	}
	c.stopHeartbeat = c.queue.ExecuteAfter(interval, beat)
}

// maxTransferPayload is the largest payload that fits one transfer frame.
func (c *Conn) maxTransferPayload() int {
	return int(c.peerMaxFrameSize) - maxTransferFrameHeader
}

func performative(body frames.FrameBody) string {
	switch body.(type) {
	case nil:
		return "Empty"
	case *frames.PerformOpen:
		return "Open"
	case *frames.PerformBegin:
		return "Begin"
	case *frames.PerformAttach:
		return "Attach"
	case *frames.PerformFlow:
		return "Flow"
	case *frames.PerformTransfer:
		return "Transfer"
	case *frames.PerformDisposition:
		return "Disposition"
	case *frames.PerformDetach:
		return "Detach"
	case *frames.PerformEnd:
		return "End"
	case *frames.PerformClose:
		return "Close"
	default:
		return fmt.Sprintf("%T", body)
	}
}
