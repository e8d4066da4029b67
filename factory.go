package amqp

import (
	"context"
	"errors"
	"net"

	"github.com/yywing/go-amqp-engine/internal/debug"
)

// NewConn creates a client connection. It stays UNOPENED until Connect or
// ConnectTransport is called.
// opts: pass nil to accept the default values.
func NewConn(opts *ConnOptions) (*Conn, error) {
	return newConn(opts)
}

// NewServerConn creates a connection that waits for the peer's Open on t.
// opts: pass nil to accept the default values.
func NewServerConn(t Transport, opts *ConnOptions) (*Conn, error) {
	c, err := newConn(opts)
	if err != nil {
		return nil, err
	}
	c.server = true
	if err := c.queue.Execute(func() { c.bind(t) }); err != nil {
		return nil, err
	}
	return c, nil
}

// Dial connects to an AMQP server and waits for the Open exchange.
//
// If the addr includes a scheme, it must be "amqp", "amqps", or "amqp+ssl".
// If no port is provided, 5672 will be used for "amqp" and 5671 for "amqps" or "amqp+ssl".
//
// opts: pass nil to accept the default values.
func Dial(ctx context.Context, addr string, opts *ConnOptions) (*Conn, error) {
	c, err := newConn(opts)
	if err != nil {
		return nil, err
	}

	opened := make(chan error, 1)
	err = c.queue.Execute(func() {
		c.OnConnected(func() { opened <- nil })
		c.OnDisconnected(func(err error) {
			if err == nil {
				err = ErrConnClosed
			}
			select {
			case opened <- err:
			default:
			}
		})
	})
	if err != nil {
		return nil, err
	}
	c.Connect(addr)

	select {
	case err := <-opened:
		if err != nil {
			return nil, err
		}
		return c, nil
	case <-ctx.Done():
		c.CloseWithError(ctx.Err())
		return nil, ctx.Err()
	}
}

// Serve accepts connections on ln until ctx is done or Accept fails. Each
// connection gets its own queue; h runs on it before any frame of the
// connection is processed. opts.Codec is required.
func Serve(ctx context.Context, ln net.Listener, opts *ConnOptions, h ConnectionHandler) error {
	if opts == nil || opts.Codec == nil {
		return errors.New("amqp: Serve requires a codec")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		connOpts := *opts
		connOpts.Queue = nil
		c, err := newConn(&connOpts)
		if err != nil {
			_ = nc.Close()
			return err
		}
		c.server = true
		debug.Log(0, "accepted %s (Conn %s)", nc.RemoteAddr(), c.containerID)

		t := NewNetTransport(nc, connOpts.Codec)
		if err := c.queue.Execute(func() {
			if h != nil {
				h.ConnectionCreated(c)
			}
			if c.state == ConnUnopened {
				c.bind(t)
			}
		}); err != nil {
			_ = nc.Close()
		}
	}
}
