package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilCollector(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.FrameReceived("Open")
		c.FrameSent("Open")
		c.Delivery("sender", 10)
		c.Settled("sender", "accepted")
		c.CreditStall("link-credit")
		c.IdleTimeout()
		c.Error("link")
		c.ConnOpened()
		c.ConnClosed()
		c.SessionMapped(1)
		c.LinkAttached("receiver", 1)
		c.Unsettled("receiver", -1)
	})
}

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.FrameSent("Transfer")
	c.FrameSent("Transfer")
	c.FrameReceived("Flow")
	c.CreditStall("session-window")
	c.IdleTimeout()
	c.ConnOpened()
	c.ConnOpened()
	c.ConnClosed()

	require.Equal(t, 2.0, testutil.ToFloat64(c.framesSent.WithLabelValues("Transfer")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.framesReceived.WithLabelValues("Flow")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.creditStalls.WithLabelValues("session-window")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.idleTimeouts))
	require.Equal(t, 1.0, testutil.ToFloat64(c.openConnections))

	// a second collector on the same registry collides
	require.Panics(t, func() { New(reg) })
}
