package amqp

import (
	"context"
	"encoding/gob"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
	"github.com/yywing/go-amqp-engine/frames"
)

func init() {
	gob.Register(&frames.PerformOpen{})
	gob.Register(&frames.PerformBegin{})
	gob.Register(&frames.PerformEnd{})
	gob.Register(&frames.PerformClose{})
}

// gobCodec frames connection-level performatives for socket tests. Each
// frame carries its own type information.
type gobCodec struct{}

func (gobCodec) Encode(w io.Writer, fr frames.Frame) error {
	return gob.NewEncoder(w).Encode(&fr)
}

func (gobCodec) Decode(r io.Reader) (frames.Frame, error) {
	var fr frames.Frame
	err := gob.NewDecoder(r).Decode(&fr)
	return fr, err
}

func TestServeRequiresCodec(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = Serve(context.Background(), ln, &ConnOptions{}, nil)
	require.Error(t, err)
	err = Serve(context.Background(), ln, nil, nil)
	require.Error(t, err)
}

func TestDialServe(t *testing.T) {
	defer leaktest.Check(t)()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accepted := make(chan *Conn, 1)
	served := make(chan error, 1)
	go func() {
		served <- Serve(ctx, ln, &ConnOptions{ContainerID: "server", Codec: gobCodec{}},
			ConnectionHandlerFunc(func(c *Conn) {
				accepted <- c
			}))
	}()

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	client, err := Dial(dialCtx, "amqp://"+ln.Addr().String(), &ConnOptions{
		ContainerID: "client",
		Codec:       gobCodec{},
	})
	require.NoError(t, err)

	var server *Conn
	select {
	case server = <-accepted:
	case <-dialCtx.Done():
		t.Fatal("no connection accepted")
	}

	var peer string
	require.NoError(t, client.InjectWait(dialCtx, func() error {
		peer = client.PeerContainerID()
		if !client.Established() {
			return errors.New("client not open")
		}
		return nil
	}))
	require.Equal(t, "server", peer)
	require.NoError(t, server.InjectWait(dialCtx, func() error {
		peer = server.PeerContainerID()
		return nil
	}))
	require.Equal(t, "client", peer)

	client.Close()
	waitDone(t, client)
	waitDone(t, server)
	require.NoError(t, client.Err())

	cancel()
	select {
	case err := <-served:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestDialRefused(t *testing.T) {
	defer leaktest.Check(t)()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, "amqp://"+addr, &ConnOptions{Codec: gobCodec{}})
	require.Nil(t, c)
	require.ErrorIs(t, err, ErrTransportUnavailable)
	var connErr *ConnError
	require.ErrorAs(t, err, &connErr)
}

func TestDialUnsupportedScheme(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Dial(ctx, "http://127.0.0.1:1", &ConnOptions{Codec: gobCodec{}})
	require.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestDialContextExpires(t *testing.T) {
	defer leaktest.Check(t)()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// accepts but never answers the Open
	silent := make(chan net.Conn, 1)
	go func() {
		nc, err := ln.Accept()
		if err == nil {
			silent <- nc
		}
		close(silent)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	c, err := Dial(ctx, "amqp://"+ln.Addr().String(), &ConnOptions{Codec: gobCodec{}})
	require.Nil(t, c)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	if nc, ok := <-silent; ok {
		_ = nc.Close()
	}
}
