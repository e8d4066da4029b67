package amqp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yywing/go-amqp-engine/dispatch"
	"github.com/yywing/go-amqp-engine/encoding"
	"github.com/yywing/go-amqp-engine/frames"
	"github.com/yywing/go-amqp-engine/internal/fake"
)

type responder func(channel uint16, fr frames.FrameBody) ([]frames.Frame, error)

func newResponse(fr ...frames.Frame) ([]frames.Frame, error) {
	return fr, nil
}

// standard frame handler for connecting/disconnecting etc.
// returns nil, nil for unhandled frames.
func connFrameHandler(req frames.FrameBody, channel uint16) ([]frames.Frame, bool) {
	switch tt := req.(type) {
	case *frames.PerformOpen:
		return []frames.Frame{fake.PerformOpen("container")}, true
	case *frames.PerformClose:
		return []frames.Frame{fake.PerformClose(nil)}, true
	case *frames.PerformBegin:
		if tt.RemoteChannel != nil {
			return nil, true
		}
		return []frames.Frame{fake.PerformBegin(channel, channel)}, true
	case *frames.PerformEnd:
		return []frames.Frame{fake.PerformEnd(channel, nil)}, true
	case *frames.PerformDetach:
		return []frames.Frame{fake.PerformDetach(channel, tt.Handle, nil)}, true
	default:
		return nil, false
	}
}

// answers attaches as the receiving peer of a local Sender
func senderFrameHandler(rsm encoding.ReceiverSettleMode) responder {
	return func(channel uint16, req frames.FrameBody) ([]frames.Frame, error) {
		if resp, ok := connFrameHandler(req, channel); ok {
			return resp, nil
		}
		if tt, ok := req.(*frames.PerformAttach); ok {
			return newResponse(fake.SenderAttach(channel, tt.Name, tt.Handle, rsm))
		}
		return nil, nil
	}
}

// answers attaches as the sending peer of a local Receiver
func receiverFrameHandler(ssm encoding.SenderSettleMode) responder {
	return func(channel uint16, req frames.FrameBody) ([]frames.Frame, error) {
		if resp, ok := connFrameHandler(req, channel); ok {
			return resp, nil
		}
		if tt, ok := req.(*frames.PerformAttach); ok {
			return newResponse(fake.ReceiverAttach(channel, tt.Name, tt.Handle, ssm, tt.Source.Filter))
		}
		return nil, nil
	}
}

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newTestConn opens a client connection over a fake transport driven by
// a manual queue.
func newTestConn(t *testing.T, resp responder, opts *ConnOptions) (*Conn, *fake.Transport, *dispatch.Manual) {
	t.Helper()
	q := dispatch.NewManual(testEpoch)
	if opts == nil {
		opts = &ConnOptions{}
	}
	opts.Queue = q
	if opts.ContainerID == "" {
		opts.ContainerID = "local"
	}
	c, err := NewConn(opts)
	require.NoError(t, err)

	tr := fake.NewTransport(resp)
	c.ConnectTransport(tr)
	q.Run()
	require.Equal(t, ConnOpen, c.State())
	return c, tr, q
}

func newTestSession(t *testing.T, c *Conn, q *dispatch.Manual, opts *SessionOptions) *Session {
	t.Helper()
	s, err := c.CreateSession(opts)
	require.NoError(t, err)
	began := false
	s.Begin(func() { began = true })
	q.Run()
	require.True(t, began)
	require.True(t, s.Established())
	return s
}

func newTestSender(t *testing.T, s *Session, q *dispatch.Manual, opts *SenderOptions) *Sender {
	t.Helper()
	snd, err := s.NewSender("target", opts)
	require.NoError(t, err)
	require.NoError(t, s.Attach(snd, nil))
	q.Run()
	require.Equal(t, LinkAttached, snd.State())
	return snd
}

func newTestReceiver(t *testing.T, s *Session, q *dispatch.Manual, opts *ReceiverOptions) *Receiver {
	t.Helper()
	r, err := s.NewReceiver("source", opts)
	require.NoError(t, err)
	require.NoError(t, s.Attach(r, nil))
	q.Run()
	require.Equal(t, LinkAttached, r.State())
	return r
}

// senderHarness attaches a Sender to a fresh connection.
func senderHarness(t *testing.T, opts *SenderOptions) (*Sender, *fake.Transport, *dispatch.Manual) {
	t.Helper()
	c, tr, q := newTestConn(t, senderFrameHandler(ModeFirst), nil)
	s := newTestSession(t, c, q, nil)
	snd := newTestSender(t, s, q, opts)
	tr.Reset()
	return snd, tr, q
}

// receiverHarness attaches a Receiver to a fresh connection.
func receiverHarness(t *testing.T, opts *ReceiverOptions) (*Receiver, *fake.Transport, *dispatch.Manual) {
	t.Helper()
	c, tr, q := newTestConn(t, receiverFrameHandler(ModeMixed), nil)
	s := newTestSession(t, c, q, nil)
	r := newTestReceiver(t, s, q, opts)
	tr.Reset()
	return r, tr, q
}

func sendLinkFlow(tr *fake.Transport, q *dispatch.Manual, handle, deliveryCount, credit uint32) {
	tr.SendFrame(fake.LinkFlow(0, handle, deliveryCount, credit, false))
	q.Run()
}

// written returns the bodies of type T written to tr, in order.
func written[T frames.FrameBody](tr *fake.Transport) []T {
	var out []T
	for _, b := range tr.Bodies() {
		if v, ok := b.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type recordedAck struct {
	id    uint32
	tag   []byte
	state DeliveryState
}

type recordedDelivery struct {
	id  uint32
	msg *Message
}
