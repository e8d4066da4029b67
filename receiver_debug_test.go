//go:build debug
// +build debug

package amqp

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yywing/go-amqp-engine/frames"
	"github.com/yywing/go-amqp-engine/internal/fake"
)

func TestReceiverCreditViolationDebugBuild(t *testing.T) {
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		MessageHandler: MessageHandlerFunc(func(*Receiver, uint32, *Message) {}),
	})

	require.NotPanics(t, func() {
		tr.SendFrame(fake.PerformTransfer(0, 0, 0, []byte("m")))
		q.Run()
	})
	detaches := written[*frames.PerformDetach](tr)
	require.Len(t, detaches, 1)
	require.Equal(t, ErrCondTransferLimitExceeded, detaches[0].Error.Condition)
	require.Equal(t, ConnOpen, r.Session().Conn().State())
}
