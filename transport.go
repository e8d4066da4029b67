package amqp

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/yywing/go-amqp-engine/frames"
	"github.com/yywing/go-amqp-engine/internal/debug"
	"github.com/yywing/go-amqp-engine/internal/queue"
)

// ErrTransportClosed is returned by WriteFrame after Close.
var ErrTransportClosed = errors.New("amqp: transport closed")

// FrameReceiver consumes what a Transport reads. A Conn is a FrameReceiver.
type FrameReceiver = frames.Receiver

// Transport carries decoded frames for one connection.
type Transport interface {
	// Start begins delivering inbound frames to r. It is called once.
	Start(r FrameReceiver)

	// WriteFrame queues fr for writing and returns without waiting for the
	// write. Frames are written in the order they are queued.
	WriteFrame(fr frames.Frame) error

	// Close flushes queued frames and releases the transport.
	Close() error
}

// Codec converts between frames and bytes on a stream. Protocol header
// exchange, SASL and frame splitting on the wire belong to the codec.
type Codec interface {
	Encode(w io.Writer, fr frames.Frame) error
	Decode(r io.Reader) (frames.Frame, error)
}

const transportCloseTimeout = 5 * time.Second

// NewNetTransport returns a Transport that encodes frames onto conn with
// codec. One goroutine reads and decodes, another writes.
func NewNetTransport(conn net.Conn, codec Codec) Transport {
	return &netTransport{
		conn:    conn,
		codec:   codec,
		out:     queue.NewHolder(queue.New[frames.Frame](32)),
		closing: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

type netTransport struct {
	conn  net.Conn
	codec Codec
	out   *queue.Holder[frames.Frame]

	closeOnce sync.Once
	closing   chan struct{} // Close was called
	closed    chan struct{} // writer has exited and conn is closed

	failOnce sync.Once
}

func (t *netTransport) Start(r FrameReceiver) {
	go t.readLoop(r)
	go t.writeLoop(r)
}

func (t *netTransport) fail(r FrameReceiver, err error) {
	select {
	case <-t.closing:
		// errors after Close are the result of closing
		return
	default:
	}
	t.failOnce.Do(func() {
		r.TransportFailed(err)
	})
}

func (t *netTransport) readLoop(r FrameReceiver) {
	br := bufio.NewReader(t.conn)
	for {
		fr, err := t.codec.Decode(br)
		if err != nil {
			debug.Log(1, "transport read: %v", err)
			t.fail(r, err)
			return
		}
		r.ReceiveFrame(fr)
	}
}

func (t *netTransport) writeLoop(r FrameReceiver) {
	defer close(t.closed)
	for {
		select {
		case q := <-t.out.Wait():
			fr := q.Dequeue()
			t.out.Release(q)
			if err := t.codec.Encode(t.conn, *fr); err != nil {
				debug.Log(1, "transport write: %v", err)
				t.fail(r, err)
				_ = t.conn.Close()
				return
			}
		case <-t.closing:
			_ = t.conn.SetWriteDeadline(time.Now().Add(transportCloseTimeout))
			q := t.out.Acquire()
			for fr := q.Dequeue(); fr != nil; fr = q.Dequeue() {
				if err := t.codec.Encode(t.conn, *fr); err != nil {
					break
				}
			}
			t.out.Release(q)
			_ = t.conn.Close()
			return
		}
	}
}

func (t *netTransport) WriteFrame(fr frames.Frame) error {
	select {
	case <-t.closing:
		return ErrTransportClosed
	default:
	}
	q := t.out.Acquire()
	q.Enqueue(fr)
	t.out.Release(q)
	return nil
}

func (t *netTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closing)
	})
	return nil
}

// NewPipe returns two connected in-memory transports. Frames written to one
// are delivered to the receiver started on the other, each end on its own
// goroutine. Closing one end delivers io.EOF to the other after any frames
// already written.
func NewPipe() (Transport, Transport) {
	a := newPipeEnd()
	b := newPipeEnd()
	a.peer, b.peer = b, a
	return a, b
}

type pipeItem struct {
	fr  frames.Frame
	err error
}

type pipeEnd struct {
	peer    *pipeEnd
	in      *queue.Holder[pipeItem]
	done    chan struct{}
	once    sync.Once
	started sync.Once
}

func newPipeEnd() *pipeEnd {
	return &pipeEnd{
		in:   queue.NewHolder(queue.New[pipeItem](32)),
		done: make(chan struct{}),
	}
}

func (p *pipeEnd) Start(r FrameReceiver) {
	p.started.Do(func() {
		go p.deliver(r)
	})
}

func (p *pipeEnd) deliver(r FrameReceiver) {
	for {
		select {
		case <-p.done:
			return
		case q := <-p.in.Wait():
			item := q.Dequeue()
			p.in.Release(q)
			if item.err != nil {
				r.TransportFailed(item.err)
				return
			}
			r.ReceiveFrame(item.fr)
		}
	}
}

func (p *pipeEnd) push(item pipeItem) {
	q := p.in.Acquire()
	q.Enqueue(item)
	p.in.Release(q)
}

func (p *pipeEnd) WriteFrame(fr frames.Frame) error {
	select {
	case <-p.done:
		return ErrTransportClosed
	default:
	}
	p.peer.push(pipeItem{fr: fr})
	return nil
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.peer.push(pipeItem{err: io.EOF})
	})
	return nil
}
