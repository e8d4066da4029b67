package fake

import (
	"errors"
	"sync"

	"github.com/yywing/go-amqp-engine/frames"
)

// NewTransport creates a new instance of Transport.
// Responder is invoked by WriteFrame for every frame the engine writes.
// Return a nil slice/nil error to swallow the frame.
// Return a non-nil error to simulate a write error.
// Returned frames are handed to the receiver before WriteFrame returns.
func NewTransport(resp func(channel uint16, fr frames.FrameBody) ([]frames.Frame, error)) *Transport {
	return &Transport{resp: resp}
}

// Transport is a fake transport that records written frames and replays
// responses synchronously.
type Transport struct {
	// OnClose is called from Close() before it returns.
	// The value returned from OnClose is returned from Close().
	OnClose func() error

	mu       sync.Mutex
	resp     func(uint16, frames.FrameBody) ([]frames.Frame, error)
	receiver frames.Receiver
	pending  []frames.Frame // sent before Start
	written  []frames.Frame
	writeErr error
	closed   bool
}

// Start implements the transport contract.
func (t *Transport) Start(r frames.Receiver) {
	t.mu.Lock()
	t.receiver = r
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, fr := range pending {
		r.ReceiveFrame(fr)
	}
}

// WriteFrame records fr and passes it to the responder.
func (t *Transport) WriteFrame(fr frames.Frame) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("fake transport closed")
	}
	if err := t.writeErr; err != nil {
		t.writeErr = nil
		t.mu.Unlock()
		return err
	}
	t.written = append(t.written, fr)
	resp := t.resp
	t.mu.Unlock()

	if resp == nil {
		return nil
	}
	replies, err := resp(fr.Channel, fr.Body)
	if err != nil {
		return err
	}
	for _, reply := range replies {
		t.SendFrame(reply)
	}
	return nil
}

// Close is called by the connection once it is CLOSED.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("double close")
	}
	t.closed = true
	t.mu.Unlock()
	if t.OnClose != nil {
		return t.OnClose()
	}
	return nil
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// SetResponder replaces the responder.
func (t *Transport) SetResponder(resp func(channel uint16, fr frames.FrameBody) ([]frames.Frame, error)) {
	t.mu.Lock()
	t.resp = resp
	t.mu.Unlock()
}

// FailNextWrite makes the next WriteFrame return err.
func (t *Transport) FailNextWrite(err error) {
	t.mu.Lock()
	t.writeErr = err
	t.mu.Unlock()
}

// SendFrame sends fr to the engine.
// Use this to send a frame at an arbitrary time.
func (t *Transport) SendFrame(fr frames.Frame) {
	t.mu.Lock()
	r := t.receiver
	if r == nil {
		t.pending = append(t.pending, fr)
	}
	t.mu.Unlock()
	if r != nil {
		r.ReceiveFrame(fr)
	}
}

// SendKeepAlive sends an empty frame to the engine.
func (t *Transport) SendKeepAlive() {
	t.SendFrame(frames.Frame{Type: frames.TypeAMQP})
}

// Fail reports a broken transport to the engine.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	r := t.receiver
	t.mu.Unlock()
	if r != nil {
		r.TransportFailed(err)
	}
}

// Written returns every frame written so far.
func (t *Transport) Written() []frames.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]frames.Frame(nil), t.written...)
}

// Bodies returns the bodies of the frames written so far.
func (t *Transport) Bodies() []frames.FrameBody {
	t.mu.Lock()
	defer t.mu.Unlock()
	bodies := make([]frames.FrameBody, 0, len(t.written))
	for _, fr := range t.written {
		bodies = append(bodies, fr.Body)
	}
	return bodies
}

// Last returns the body of the most recently written frame, nil if none.
func (t *Transport) Last() frames.FrameBody {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.written) == 0 {
		return nil
	}
	return t.written[len(t.written)-1].Body
}

// Reset forgets the frames written so far.
func (t *Transport) Reset() {
	t.mu.Lock()
	t.written = nil
	t.mu.Unlock()
}
