package fake

import (
	"math"
	"time"

	"github.com/yywing/go-amqp-engine/encoding"
	"github.com/yywing/go-amqp-engine/frames"
)

func frame(channel uint16, body frames.FrameBody) frames.Frame {
	return frames.Frame{Type: frames.TypeAMQP, Channel: channel, Body: body}
}

// PerformOpen returns a PerformOpen frame with the specified container ID.
func PerformOpen(containerID string) frames.Frame {
	// send the default values for max channels and frame size
	return frame(0, &frames.PerformOpen{
		ChannelMax:   65535,
		ContainerID:  containerID,
		IdleTimeout:  time.Minute,
		MaxFrameSize: 4294967295,
	})
}

// PerformBegin returns a PerformBegin frame answering the session on remoteChannel.
func PerformBegin(channel, remoteChannel uint16) frames.Frame {
	return frame(channel, &frames.PerformBegin{
		RemoteChannel:  &remoteChannel,
		NextOutgoingID: 1,
		IncomingWindow: 5000,
		OutgoingWindow: 1000,
		HandleMax:      math.MaxInt16,
	})
}

// PeerBegin returns a PerformBegin frame starting a session from the peer.
func PeerBegin(channel uint16, incomingWindow uint32) frames.Frame {
	return frame(channel, &frames.PerformBegin{
		NextOutgoingID: 0,
		IncomingWindow: incomingWindow,
		OutgoingWindow: 1000,
		HandleMax:      math.MaxInt16,
	})
}

// SenderAttach returns the peer's answer to the Attach of a local Sender.
func SenderAttach(channel uint16, linkName string, linkHandle uint32, mode encoding.ReceiverSettleMode) frames.Frame {
	return frame(channel, &frames.PerformAttach{
		Name:   linkName,
		Handle: linkHandle,
		Role:   encoding.RoleReceiver,
		Target: &frames.Target{
			Address:      "test",
			Durable:      encoding.DurabilityNone,
			ExpiryPolicy: encoding.ExpirySessionEnd,
		},
		ReceiverSettleMode: &mode,
		MaxMessageSize:     math.MaxUint32,
	})
}

// ReceiverAttach returns the peer's answer to the Attach of a local Receiver.
func ReceiverAttach(channel uint16, linkName string, linkHandle uint32, mode encoding.SenderSettleMode, filter encoding.Filter) frames.Frame {
	return frame(channel, &frames.PerformAttach{
		Name:   linkName,
		Handle: linkHandle,
		Role:   encoding.RoleSender,
		Source: &frames.Source{
			Address:      "test",
			Durable:      encoding.DurabilityNone,
			ExpiryPolicy: encoding.ExpirySessionEnd,
			Filter:       filter,
		},
		SenderSettleMode: &mode,
		MaxMessageSize:   math.MaxUint32,
	})
}

// RefusedAttach returns an Attach without terminus, as sent by a peer
// refusing a link.
func RefusedAttach(channel uint16, linkName string, linkHandle uint32, role encoding.Role) frames.Frame {
	return frame(channel, &frames.PerformAttach{
		Name:   linkName,
		Handle: linkHandle,
		Role:   role,
	})
}

// LinkFlow returns a PerformFlow frame for a link.
func LinkFlow(channel uint16, linkHandle, deliveryCount, linkCredit uint32, drain bool) frames.Frame {
	var nextIncoming uint32
	return frame(channel, &frames.PerformFlow{
		NextIncomingID: &nextIncoming,
		IncomingWindow: 5000,
		OutgoingWindow: 1000,
		Handle:         &linkHandle,
		DeliveryCount:  &deliveryCount,
		LinkCredit:     &linkCredit,
		Drain:          drain,
	})
}

// SessionFlow returns a PerformFlow frame without link state.
func SessionFlow(channel uint16, nextIncomingID, incomingWindow, nextOutgoingID uint32) frames.Frame {
	return frame(channel, &frames.PerformFlow{
		NextIncomingID: &nextIncomingID,
		IncomingWindow: incomingWindow,
		NextOutgoingID: nextOutgoingID,
		OutgoingWindow: 1000,
	})
}

// PerformTransfer returns a single-frame PerformTransfer with the specified values.
// The linkHandle MUST match the linkHandle value specified in ReceiverAttach.
func PerformTransfer(channel uint16, linkHandle, deliveryID uint32, payload []byte) frames.Frame {
	format := uint32(0)
	return frame(channel, &frames.PerformTransfer{
		Handle:        linkHandle,
		DeliveryID:    &deliveryID,
		DeliveryTag:   []byte("tag"),
		MessageFormat: &format,
		Payload:       payload,
	})
}

// MultiFrameTransfer splits payload into chunk-sized transfer frames.
// edit, when not nil, may alter each frame before it is returned.
func MultiFrameTransfer(channel uint16, linkHandle, deliveryID uint32, payload []byte, chunk int, edit func(int, *frames.PerformTransfer)) []frames.Frame {
	var out []frames.Frame
	format := uint32(0)
	for i := 0; len(payload) > 0; i++ {
		n := chunk
		if n > len(payload) {
			n = len(payload)
		}
		fr := &frames.PerformTransfer{
			Handle:  linkHandle,
			More:    n < len(payload),
			Payload: payload[:n],
		}
		if i == 0 {
			fr.DeliveryID = &deliveryID
			fr.DeliveryTag = []byte("tag")
			fr.MessageFormat = &format
		}
		if edit != nil {
			edit(i, fr)
		}
		out = append(out, frame(channel, fr))
		payload = payload[n:]
	}
	return out
}

// PerformDisposition returns a settled PerformDisposition frame with the specified values.
// The firstID MUST match the deliveryID value specified in PerformTransfer.
func PerformDisposition(role encoding.Role, channel uint16, firstID uint32, lastID *uint32, state encoding.DeliveryState) frames.Frame {
	return frame(channel, &frames.PerformDisposition{
		Role:    role,
		First:   firstID,
		Last:    lastID,
		Settled: true,
		State:   state,
	})
}

// PerformDetach returns a PerformDetach frame with an optional error.
func PerformDetach(channel uint16, linkHandle uint32, e *encoding.Error) frames.Frame {
	return frame(channel, &frames.PerformDetach{Handle: linkHandle, Closed: true, Error: e})
}

// PerformEnd returns a PerformEnd frame with an optional error.
func PerformEnd(channel uint16, e *encoding.Error) frames.Frame {
	return frame(channel, &frames.PerformEnd{Error: e})
}

// PerformClose returns a PerformClose frame with an optional error.
func PerformClose(e *encoding.Error) frames.Frame {
	return frame(0, &frames.PerformClose{Error: e})
}
