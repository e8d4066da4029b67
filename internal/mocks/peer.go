package mocks

import (
	"sync"

	"github.com/yywing/go-amqp-engine/encoding"
	"github.com/yywing/go-amqp-engine/frames"
)

const peerWindow = 5000

// NewPeer creates a Peer that grants credit to every sender attached to it.
// When settle is true, unsettled deliveries are accepted and settled.
func NewPeer(containerID string, credit uint32, settle bool) *Peer {
	return &Peer{
		containerID: containerID,
		credit:      credit,
		settle:      settle,
		sessions:    map[uint16]*peerSession{},
	}
}

// Peer answers frames like a cooperative remote endpoint. Use Respond as
// a fake.Transport responder. Channels and handles mirror the local ones.
type Peer struct {
	containerID string
	credit      uint32
	settle      bool

	mu       sync.Mutex
	sessions map[uint16]*peerSession
}

type peerSession struct {
	received uint32               // transfer frames received
	links    map[uint32]*peerLink // by handle
}

type peerLink struct {
	deliveryCount uint32
	consumed      uint32 // deliveries since the last flow
}

// Respond returns the frames the peer sends in reply to fr.
func (p *Peer) Respond(channel uint16, fr frames.FrameBody) ([]frames.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reply := func(body frames.FrameBody) []frames.Frame {
		return []frames.Frame{{Type: frames.TypeAMQP, Channel: channel, Body: body}}
	}

	switch body := fr.(type) {
	case *frames.PerformOpen:
		return reply(&frames.PerformOpen{
			ContainerID:  p.containerID,
			MaxFrameSize: 65536,
			ChannelMax:   65535,
		}), nil

	case *frames.PerformBegin:
		if body.RemoteChannel != nil {
			return nil, nil
		}
		p.sessions[channel] = &peerSession{links: map[uint32]*peerLink{}}
		remote := channel
		return reply(&frames.PerformBegin{
			RemoteChannel:  &remote,
			IncomingWindow: peerWindow,
			OutgoingWindow: peerWindow,
			HandleMax:      1024,
		}), nil

	case *frames.PerformAttach:
		s := p.sessions[channel]
		if s == nil {
			return nil, nil
		}
		s.links[body.Handle] = &peerLink{deliveryCount: body.InitialDeliveryCount}
		out := reply(&frames.PerformAttach{
			Name:                 body.Name,
			Handle:               body.Handle,
			Role:                 !body.Role,
			SenderSettleMode:     body.SenderSettleMode,
			ReceiverSettleMode:   body.ReceiverSettleMode,
			Source:               body.Source,
			Target:               body.Target,
			InitialDeliveryCount: 0,
		})
		if body.Role == encoding.RoleSender && p.credit > 0 {
			out = append(out, reply(s.linkFlow(body.Handle, p.credit))...)
		}
		return out, nil

	case *frames.PerformTransfer:
		s := p.sessions[channel]
		if s == nil {
			return nil, nil
		}
		s.received++
		l := s.links[body.Handle]
		if l == nil || body.DeliveryID == nil {
			return nil, nil
		}
		// first frame of a delivery
		l.deliveryCount++
		l.consumed++
		var out []frames.Frame
		if p.settle && !body.Settled {
			out = append(out, reply(&frames.PerformDisposition{
				Role:    encoding.RoleReceiver,
				First:   *body.DeliveryID,
				Settled: true,
				State:   &encoding.StateAccepted{},
			})...)
		}
		if p.credit > 0 && l.consumed >= p.credit {
			l.consumed = 0
			out = append(out, reply(s.linkFlow(body.Handle, p.credit))...)
		}
		return out, nil

	case *frames.PerformDetach:
		if s := p.sessions[channel]; s != nil {
			delete(s.links, body.Handle)
		}
		return reply(&frames.PerformDetach{Handle: body.Handle, Closed: true}), nil

	case *frames.PerformEnd:
		delete(p.sessions, channel)
		return reply(&frames.PerformEnd{}), nil

	case *frames.PerformClose:
		return reply(&frames.PerformClose{}), nil
	}
	return nil, nil
}

func (s *peerSession) linkFlow(handle, credit uint32) *frames.PerformFlow {
	nextIncoming := s.received
	deliveryCount := s.links[handle].deliveryCount
	return &frames.PerformFlow{
		NextIncomingID: &nextIncoming,
		IncomingWindow: peerWindow,
		OutgoingWindow: peerWindow,
		Handle:         &handle,
		DeliveryCount:  &deliveryCount,
		LinkCredit:     &credit,
	}
}
