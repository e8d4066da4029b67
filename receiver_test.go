package amqp

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yywing/go-amqp-engine/encoding"
	"github.com/yywing/go-amqp-engine/frames"
	"github.com/yywing/go-amqp-engine/internal/fake"
	"github.com/yywing/go-amqp-engine/internal/test"
)

func TestReceiverOptions(t *testing.T) {
	tests := []struct {
		label    string
		opts     ReceiverOptions
		wantErr  bool
		validate func(t *testing.T, l *Receiver)
	}{
		{
			label: "no options",
			validate: func(t *testing.T, l *Receiver) {
				require.Empty(t, l.target.Capabilities)
				require.Equal(t, DurabilityNone, l.target.Durable)
				require.False(t, l.dynamicAddr)
				require.Empty(t, l.target.ExpiryPolicy)
				require.Zero(t, l.target.Timeout)
				require.Empty(t, l.source.Filter)
				require.NotEmpty(t, l.key.name)
				require.Empty(t, l.properties)
				require.Nil(t, l.senderSettleMode)
				require.Equal(t, ModeFirst, l.SettleMode())
				require.Zero(t, l.maxMessageSize)
				require.Zero(t, l.initialCredit)
				require.Equal(t, "source", l.source.Address)
			},
		},
		{
			label: "with options",
			opts: ReceiverOptions{
				Capabilities:              []string{"foo", "bar"},
				Credit:                    32,
				Durability:                DurabilityConfiguration,
				DynamicAddress:            true,
				ExpiryPolicy:              ExpiryNever,
				ExpiryTimeout:             3,
				Filters:                   []LinkFilter{NewSelectorFilter("amqp.annotation.x-opt-offset > '100'")},
				MaxMessageSize:            1024,
				Name:                      "test",
				Properties:                map[string]any{"property": 123},
				RequestedSenderSettleMode: ModeSettled.Ptr(),
				SettlementMode:            ModeSecond.Ptr(),
				TargetAddress:             "target",
			},
			validate: func(t *testing.T, l *Receiver) {
				require.Equal(t, encoding.MultiSymbol{"foo", "bar"}, l.target.Capabilities)
				require.Equal(t, uint32(32), l.initialCredit)
				require.Equal(t, DurabilityConfiguration, l.target.Durable)
				require.True(t, l.dynamicAddr)
				require.True(t, l.source.Dynamic)
				require.Empty(t, l.source.Address)
				require.Equal(t, ExpiryNever, l.target.ExpiryPolicy)
				require.Equal(t, uint32(3), l.target.Timeout)
				require.Equal(t, encoding.Filter{
					selectorFilter: &encoding.DescribedType{
						Descriptor: selectorFilterCode,
						Value:      "amqp.annotation.x-opt-offset > '100'",
					},
				}, l.source.Filter)
				require.Equal(t, uint64(1024), l.MaxMessageSize())
				require.Equal(t, "test", l.Name())
				require.Equal(t, map[encoding.Symbol]any{"property": 123}, l.properties)
				require.NotNil(t, l.senderSettleMode)
				require.Equal(t, ModeSettled, *l.senderSettleMode)
				require.Equal(t, ModeSecond, l.SettleMode())
				require.Equal(t, "target", l.target.Address)
			},
		},
		{
			label: "invalid settlement mode",
			opts: ReceiverOptions{
				SettlementMode: ReceiverSettleMode(3).Ptr(),
			},
			wantErr: true,
		},
		{
			label: "invalid sender settlement mode",
			opts: ReceiverOptions{
				RequestedSenderSettleMode: SenderSettleMode(3).Ptr(),
			},
			wantErr: true,
		},
		{
			label: "invalid expiry policy",
			opts: ReceiverOptions{
				ExpiryPolicy: "later",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			c, _, q := newTestConn(t, receiverFrameHandler(ModeMixed), nil)
			s := newTestSession(t, c, q, nil)
			got, err := s.NewReceiver("source", &tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				require.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			tt.validate(t, got)
		})
	}
}

func TestReceiverAttach(t *testing.T) {
	c, tr, q := newTestConn(t, receiverFrameHandler(ModeMixed), nil)
	s := newTestSession(t, c, q, nil)
	tr.Reset()

	r, err := s.NewReceiver("source", &ReceiverOptions{
		Name:    "rcv",
		Credit:  10,
		Filters: []LinkFilter{NewLinkFilter("custom", 0, "value")},
	})
	require.NoError(t, err)
	require.NoError(t, s.Attach(r, nil))
	q.Run()
	require.Equal(t, LinkAttached, r.State())

	bodies := tr.Bodies()
	require.Len(t, bodies, 2)
	attach, ok := bodies[0].(*frames.PerformAttach)
	require.True(t, ok)
	want := &frames.PerformAttach{
		Name:               "rcv",
		Role:               encoding.RoleReceiver,
		ReceiverSettleMode: ModeFirst.Ptr(),
		Source: &frames.Source{
			Address: "source",
			Filter: encoding.Filter{
				"custom": &encoding.DescribedType{Descriptor: encoding.Symbol("custom"), Value: "value"},
			},
		},
		Target: &frames.Target{},
	}
	test.RequireEqual(t, want, attach)

	// initial credit follows the peer's Attach
	flow, ok := bodies[1].(*frames.PerformFlow)
	require.True(t, ok)
	require.Equal(t, uint32(0), *flow.Handle)
	require.Equal(t, uint32(10), *flow.LinkCredit)
	require.Equal(t, uint32(0), *flow.DeliveryCount)
	require.Equal(t, uint32(10), r.LinkCredit())
	require.Equal(t, ModeMixed, *r.senderSettleMode)
}

func TestReceiverSenderSettleModeMismatch(t *testing.T) {
	c, tr, q := newTestConn(t, receiverFrameHandler(ModeMixed), nil)
	s := newTestSession(t, c, q, nil)
	tr.Reset()

	r, err := s.NewReceiver("source", &ReceiverOptions{RequestedSenderSettleMode: ModeSettled.Ptr(), Credit: 5})
	require.NoError(t, err)
	onAttach := false
	require.NoError(t, s.Attach(r, func() { onAttach = true }))
	q.Run()

	require.False(t, onAttach)
	require.Equal(t, LinkDetached, r.State())
	require.Error(t, r.Err())
	// no credit for a link that failed to attach
	for _, fl := range written[*frames.PerformFlow](tr) {
		require.Nil(t, fl.Handle)
	}
}

func TestReceiverNotAttached(t *testing.T) {
	c, _, q := newTestConn(t, receiverFrameHandler(ModeMixed), nil)
	s := newTestSession(t, c, q, nil)
	r, err := s.NewReceiver("source", nil)
	require.NoError(t, err)

	err = r.AddLinkCredit(1)
	require.ErrorIs(t, err, ErrNotAttached)
	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)

	require.ErrorIs(t, r.DrainLinkCredit(), ErrNotAttached)
	require.Zero(t, r.LinkCredit())
}

func TestReceiverSettleModeFirst(t *testing.T) {
	var got []recordedDelivery
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit: 5,
		MessageHandler: MessageHandlerFunc(func(_ *Receiver, id uint32, msg *Message) {
			got = append(got, recordedDelivery{id: id, msg: msg})
		}),
	})

	tr.SendFrame(fake.PerformTransfer(0, 0, 0, []byte("hello")))
	q.Run()

	require.Len(t, got, 1)
	require.Equal(t, uint32(0), got[0].id)
	require.Equal(t, []byte("hello"), got[0].msg.Payload)
	require.Equal(t, []byte("tag"), got[0].msg.DeliveryTag)
	require.False(t, got[0].msg.Settled)
	require.Equal(t, uint32(4), r.LinkCredit())
	require.Equal(t, uint32(1), r.DeliveryCount())
	require.Zero(t, r.Unsettled())

	dispositions := written[*frames.PerformDisposition](tr)
	require.Len(t, dispositions, 1)
	want := &frames.PerformDisposition{
		Role:    encoding.RoleReceiver,
		First:   0,
		Settled: true,
		State:   &encoding.StateAccepted{},
	}
	test.RequireEqual(t, want, dispositions[0])
}

func TestReceiverPresettled(t *testing.T) {
	var got int
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit:         5,
		MessageHandler: MessageHandlerFunc(func(*Receiver, uint32, *Message) { got++ }),
	})

	fr := fake.PerformTransfer(0, 0, 0, []byte("hello"))
	fr.Body.(*frames.PerformTransfer).Settled = true
	tr.SendFrame(fr)
	q.Run()

	require.Equal(t, 1, got)
	require.Zero(t, r.Unsettled())
	require.Empty(t, written[*frames.PerformDisposition](tr))
}

func TestReceiverSettleModeSecond(t *testing.T) {
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit:         5,
		SettlementMode: ModeSecond.Ptr(),
		MessageHandler: MessageHandlerFunc(func(*Receiver, uint32, *Message) {}),
	})

	tr.SendFrame(fake.PerformTransfer(0, 0, 0, []byte("a")))
	tr.SendFrame(fake.PerformTransfer(0, 0, 1, []byte("b")))
	q.Run()
	require.Equal(t, 2, r.Unsettled())
	require.Empty(t, written[*frames.PerformDisposition](tr))

	r.Settle(0, &encoding.StateRejected{})
	dispositions := written[*frames.PerformDisposition](tr)
	require.Len(t, dispositions, 1)
	require.False(t, dispositions[0].Settled)
	require.IsType(t, &encoding.StateRejected{}, dispositions[0].State)
	require.Equal(t, 2, r.Unsettled())

	// idempotent
	r.Settle(0, &encoding.StateAccepted{})
	require.Len(t, written[*frames.PerformDisposition](tr), 1)

	// the sender settles, the delivery is forgotten
	tr.SendFrame(fake.PerformDisposition(encoding.RoleSender, 0, 0, nil, nil))
	q.Run()
	require.Equal(t, 1, r.Unsettled())

	// the sender settled id 1 before we decided
	tr.SendFrame(fake.PerformDisposition(encoding.RoleSender, 0, 1, nil, nil))
	q.Run()
	require.Equal(t, 1, r.Unsettled())
	r.Settle(1, &encoding.StateAccepted{})
	dispositions = written[*frames.PerformDisposition](tr)
	require.Len(t, dispositions, 2)
	require.True(t, dispositions[1].Settled)
	require.Zero(t, r.Unsettled())

	// unknown
	r.Settle(42, &encoding.StateAccepted{})
	require.Len(t, written[*frames.PerformDisposition](tr), 2)
}

func TestReceiverSetSettleMode(t *testing.T) {
	c, _, q := newTestConn(t, receiverFrameHandler(ModeMixed), nil)
	s := newTestSession(t, c, q, nil)
	r, err := s.NewReceiver("source", nil)
	require.NoError(t, err)

	r.SetSettleMode(ModeSecond)
	require.Equal(t, ModeSecond, r.SettleMode())
	require.NoError(t, s.Attach(r, nil))
	q.Run()

	r.SetSettleMode(ModeFirst)
	require.Equal(t, ModeSecond, r.SettleMode())
}

// gateHandler refuses deliveries while closed.
type gateHandler struct {
	open    bool
	got     []uint32
	resumes []func()
}

func (g *gateHandler) Offer(_ *Receiver, id uint32, _ *Message) bool {
	if !g.open {
		return false
	}
	g.got = append(g.got, id)
	return true
}

func (g *gateHandler) Refiller(task func()) {
	g.resumes = append(g.resumes, task)
}

func TestReceiverBackPressure(t *testing.T) {
	gate := &gateHandler{}
	r, tr, q := receiverHarness(t, &ReceiverOptions{Credit: 10, MessageHandler: gate})

	for i := uint32(0); i < 3; i++ {
		tr.SendFrame(fake.PerformTransfer(0, 0, i, []byte("m")))
	}
	q.Run()

	require.Empty(t, gate.got)
	require.Len(t, gate.resumes, 1)
	require.Equal(t, 3, r.Unsettled())
	require.Equal(t, uint32(7), r.LinkCredit())
	require.Empty(t, written[*frames.PerformDisposition](tr))

	gate.open = true
	gate.resumes[0]()
	q.Run()
	require.Equal(t, []uint32{0, 1, 2}, gate.got)
	require.Zero(t, r.Unsettled())
	require.Len(t, written[*frames.PerformDisposition](tr), 3)

	// only the first call resumes
	gate.resumes[0]()
	q.Run()
	require.Len(t, gate.got, 3)

	tr.SendFrame(fake.PerformTransfer(0, 0, 3, []byte("m")))
	q.Run()
	require.Equal(t, []uint32{0, 1, 2, 3}, gate.got)
}

func TestReceiverBackPressureRefusedAgain(t *testing.T) {
	gate := &gateHandler{}
	_, tr, q := receiverHarness(t, &ReceiverOptions{Credit: 10, MessageHandler: gate})

	tr.SendFrame(fake.PerformTransfer(0, 0, 0, []byte("m")))
	tr.SendFrame(fake.PerformTransfer(0, 0, 1, []byte("m")))
	q.Run()
	require.Len(t, gate.resumes, 1)

	// still closed: the head is refused again and a new task handed out
	gate.resumes[0]()
	q.Run()
	require.Empty(t, gate.got)
	require.Len(t, gate.resumes, 2)

	gate.open = true
	gate.resumes[1]()
	q.Run()
	require.Equal(t, []uint32{0, 1}, gate.got)
}

func TestReceiverNoHandler(t *testing.T) {
	r, tr, q := receiverHarness(t, &ReceiverOptions{Credit: 10})

	tr.SendFrame(fake.PerformTransfer(0, 0, 0, []byte("a")))
	tr.SendFrame(fake.PerformTransfer(0, 0, 1, []byte("b")))
	q.Run()

	var got []string
	r.SetMessageHandler(MessageHandlerFunc(func(_ *Receiver, _ uint32, msg *Message) {
		got = append(got, string(msg.Payload))
	}))
	q.Run()
	require.Equal(t, []string{"a", "b"}, got)
}

func TestReceiverDrain(t *testing.T) {
	var handled int
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit:         10,
		MessageHandler: MessageHandlerFunc(func(*Receiver, uint32, *Message) { handled++ }),
		CreditHandler: CreditHandlerFunc(func(r *Receiver) {
			require.NoError(t, r.AddLinkCredit(1))
		}),
	})

	for i := uint32(0); i < 3; i++ {
		tr.SendFrame(fake.PerformTransfer(0, 0, i, []byte("m")))
	}
	q.Run()
	require.Equal(t, 3, handled)
	require.Equal(t, uint32(10), r.LinkCredit())
	require.Equal(t, uint32(3), r.DeliveryCount())
	tr.Reset()

	require.NoError(t, r.DrainLinkCredit())
	require.True(t, r.Draining())
	flows := written[*frames.PerformFlow](tr)
	require.Len(t, flows, 1)
	require.True(t, flows[0].Drain)
	require.Equal(t, uint32(10), *flows[0].LinkCredit)
	require.Equal(t, uint32(3), *flows[0].DeliveryCount)

	// the sender had nothing left and advanced delivery-count
	tr.SendFrame(fake.LinkFlow(0, 0, 13, 0, true))
	q.Run()
	require.Zero(t, r.LinkCredit())
	require.Equal(t, uint32(13), r.DeliveryCount())
	require.False(t, r.Draining())
}

func TestReceiverWindowCredit(t *testing.T) {
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit:         4,
		MessageHandler: MessageHandlerFunc(func(*Receiver, uint32, *Message) {}),
		CreditHandler:  WindowCredit{Max: 4},
	})

	tr.SendFrame(fake.PerformTransfer(0, 0, 0, []byte("m")))
	q.Run()
	require.Equal(t, uint32(3), r.LinkCredit())
	require.Empty(t, written[*frames.PerformFlow](tr))

	tr.SendFrame(fake.PerformTransfer(0, 0, 1, []byte("m")))
	q.Run()
	require.Equal(t, uint32(4), r.LinkCredit())
	flows := written[*frames.PerformFlow](tr)
	require.Len(t, flows, 1)
	require.Equal(t, uint32(4), *flows[0].LinkCredit)
}

func TestReceiverCreditViolation(t *testing.T) {
	var got int
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit:         1,
		MessageHandler: MessageHandlerFunc(func(*Receiver, uint32, *Message) { got++ }),
	})
	var detachErr error
	r.OnDetach(func(err error) { detachErr = err })

	tr.SendFrame(fake.PerformTransfer(0, 0, 0, []byte("m")))
	tr.SendFrame(fake.PerformTransfer(0, 0, 1, []byte("m")))
	q.Run()

	require.Equal(t, 1, got)
	detaches := written[*frames.PerformDetach](tr)
	require.Len(t, detaches, 1)
	require.Equal(t, ErrCondTransferLimitExceeded, detaches[0].Error.Condition)
	require.Equal(t, LinkDetached, r.State())
	var amqpErr *Error
	require.ErrorAs(t, detachErr, &amqpErr)
	require.Equal(t, ErrCondTransferLimitExceeded, amqpErr.Condition)
}

func TestReceiverDeliveryIDOutOfSequence(t *testing.T) {
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit:         5,
		MessageHandler: MessageHandlerFunc(func(*Receiver, uint32, *Message) {}),
	})
	c := r.Session().Conn()

	tr.SendFrame(fake.PerformTransfer(0, 0, 0, []byte("m")))
	tr.SendFrame(fake.PerformTransfer(0, 0, 2, []byte("m")))
	q.Run()

	require.Equal(t, ConnClosed, c.State())
	closes := written[*frames.PerformClose](tr)
	require.Len(t, closes, 1)
	require.Equal(t, ErrCondNotAllowed, closes[0].Error.Condition)
	require.Equal(t, LinkDetached, r.State())
}

func TestReceiverMultiFrame(t *testing.T) {
	var got []recordedDelivery
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit: 5,
		MessageHandler: MessageHandlerFunc(func(_ *Receiver, id uint32, msg *Message) {
			got = append(got, recordedDelivery{id: id, msg: msg})
		}),
	})

	for _, fr := range fake.MultiFrameTransfer(0, 0, 0, []byte("hello world"), 4, nil) {
		tr.SendFrame(fr)
	}
	q.Run()

	require.Len(t, got, 1)
	require.Equal(t, []byte("hello world"), got[0].msg.Payload)
	require.Equal(t, uint32(4), r.LinkCredit())
	require.Equal(t, uint32(1), r.DeliveryCount())
	require.Equal(t, uint32(3), defaultWindow-r.Session().IncomingWindow())
}

func TestReceiverMultiFrameSettledLate(t *testing.T) {
	var got []*Message
	_, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit: 5,
		MessageHandler: MessageHandlerFunc(func(_ *Receiver, _ uint32, msg *Message) {
			got = append(got, msg)
		}),
	})

	frs := fake.MultiFrameTransfer(0, 0, 0, []byte("abcdef"), 2, func(i int, fr *frames.PerformTransfer) {
		fr.Settled = i == 2
	})
	for _, fr := range frs {
		tr.SendFrame(fr)
	}
	q.Run()

	require.Len(t, got, 1)
	require.True(t, got[0].Settled)
	require.Empty(t, written[*frames.PerformDisposition](tr))
}

func TestReceiverAborted(t *testing.T) {
	var got []recordedDelivery
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit: 5,
		MessageHandler: MessageHandlerFunc(func(_ *Receiver, id uint32, msg *Message) {
			got = append(got, recordedDelivery{id: id, msg: msg})
		}),
	})

	frs := fake.MultiFrameTransfer(0, 0, 0, []byte("abcdef"), 2, func(i int, fr *frames.PerformTransfer) {
		if i == 2 {
			fr.Aborted = true
		}
	})
	for _, fr := range frs {
		tr.SendFrame(fr)
	}
	q.Run()
	require.Empty(t, got)
	require.Zero(t, r.Unsettled())
	require.Equal(t, uint32(4), r.LinkCredit())

	tr.SendFrame(fake.PerformTransfer(0, 0, 1, []byte("next")))
	q.Run()
	require.Len(t, got, 1)
	require.Equal(t, uint32(1), got[0].id)
	require.Equal(t, []byte("next"), got[0].msg.Payload)
}

func TestReceiverMaxMessageSize(t *testing.T) {
	var got int
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit:         5,
		MaxMessageSize: 4,
		MessageHandler: MessageHandlerFunc(func(*Receiver, uint32, *Message) { got++ }),
	})

	tr.SendFrame(fake.PerformTransfer(0, 0, 0, []byte("12345")))
	q.Run()

	require.Zero(t, got)
	detaches := written[*frames.PerformDetach](tr)
	require.Len(t, detaches, 1)
	require.Equal(t, ErrCondMessageSizeExceeded, detaches[0].Error.Condition)
	require.Equal(t, LinkDetached, r.State())
}

func TestReceiverMaxMessageSizeMultiFrame(t *testing.T) {
	var got int
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit:         5,
		MaxMessageSize: 4,
		MessageHandler: MessageHandlerFunc(func(*Receiver, uint32, *Message) { got++ }),
	})
	c := r.Session().Conn()
	// our Detach stays unanswered while the rest of the delivery arrives
	tr.SetResponder(nil)

	for _, fr := range fake.MultiFrameTransfer(0, 0, 0, []byte("12345678"), 3, nil) {
		tr.SendFrame(fr)
	}
	q.Run()

	require.Zero(t, got)
	require.Equal(t, ConnOpen, c.State())
	require.NoError(t, c.Err())
	require.Equal(t, LinkDetaching, r.State())
	detaches := written[*frames.PerformDetach](tr)
	require.Len(t, detaches, 1)
	require.Equal(t, ErrCondMessageSizeExceeded, detaches[0].Error.Condition)

	tr.SendFrame(fake.PerformDetach(0, 0, nil))
	q.Run()
	require.Equal(t, LinkDetached, r.State())
	require.Equal(t, ConnOpen, c.State())
}

func TestReceiverCreditViolationMultiFrame(t *testing.T) {
	var got int
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit:         1,
		MessageHandler: MessageHandlerFunc(func(*Receiver, uint32, *Message) { got++ }),
	})
	c := r.Session().Conn()
	tr.SetResponder(nil)

	tr.SendFrame(fake.PerformTransfer(0, 0, 0, []byte("m")))
	for _, fr := range fake.MultiFrameTransfer(0, 0, 1, []byte("12345678"), 3, nil) {
		tr.SendFrame(fr)
	}
	q.Run()

	require.Equal(t, 1, got)
	require.Equal(t, ConnOpen, c.State())
	require.Equal(t, LinkDetaching, r.State())
	detaches := written[*frames.PerformDetach](tr)
	require.Len(t, detaches, 1)
	require.Equal(t, ErrCondTransferLimitExceeded, detaches[0].Error.Condition)
}

func TestReceiverDetachMidDelivery(t *testing.T) {
	var got int
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit:         5,
		MessageHandler: MessageHandlerFunc(func(*Receiver, uint32, *Message) { got++ }),
	})
	c := r.Session().Conn()
	tr.SetResponder(nil)

	parts := fake.MultiFrameTransfer(0, 0, 0, []byte("12345678"), 3, nil)
	require.Len(t, parts, 3)
	tr.SendFrame(parts[0])
	q.Run()

	r.Detach()
	tr.SendFrame(parts[1])
	tr.SendFrame(parts[2])
	// the next delivery is a new one and is dropped as well
	tr.SendFrame(fake.PerformTransfer(0, 0, 1, []byte("m")))
	q.Run()

	require.Zero(t, got)
	require.Equal(t, ConnOpen, c.State())
	require.Equal(t, LinkDetaching, r.State())
	require.Zero(t, r.Unsettled())
}

func TestReceiverAvailable(t *testing.T) {
	var available []uint32
	r, tr, q := receiverHarness(t, &ReceiverOptions{
		Credit: 5,
		AvailableHandler: AvailableHandlerFunc(func(_ *Receiver, n uint32) {
			available = append(available, n)
		}),
	})

	handle, dc, credit, n := uint32(0), uint32(0), uint32(5), uint32(42)
	tr.SendFrame(frames.Frame{Type: frames.TypeAMQP, Body: &frames.PerformFlow{
		IncomingWindow: 100,
		Handle:         &handle,
		DeliveryCount:  &dc,
		LinkCredit:     &credit,
		Available:      &n,
	}})
	q.Run()

	require.Equal(t, []uint32{42}, available)
	// not draining: the sender's credit view does not replace ours
	require.Equal(t, uint32(5), r.LinkCredit())
	require.Empty(t, tr.Written())
}

func TestReceiverEcho(t *testing.T) {
	r, tr, q := receiverHarness(t, &ReceiverOptions{Credit: 7})

	handle, dc, credit := uint32(0), uint32(0), uint32(7)
	tr.SendFrame(frames.Frame{Type: frames.TypeAMQP, Body: &frames.PerformFlow{
		IncomingWindow: 100,
		Handle:         &handle,
		DeliveryCount:  &dc,
		LinkCredit:     &credit,
		Echo:           true,
	}})
	q.Run()

	flows := written[*frames.PerformFlow](tr)
	require.Len(t, flows, 1)
	require.Equal(t, uint32(7), *flows[0].LinkCredit)
	require.Equal(t, r.Handle(), *flows[0].Handle)
}

func TestReceiverReleaseDropsBuffered(t *testing.T) {
	gate := &gateHandler{}
	r, tr, q := receiverHarness(t, &ReceiverOptions{Credit: 10, MessageHandler: gate})

	tr.SendFrame(fake.PerformTransfer(0, 0, 0, []byte("m")))
	tr.SendFrame(fake.PerformTransfer(0, 0, 1, []byte("m")))
	q.Run()
	require.Len(t, gate.resumes, 1)

	r.Detach()
	q.Run()
	require.Equal(t, LinkDetached, r.State())
	require.Zero(t, r.Unsettled())
	require.Zero(t, r.buffer.Len())

	gate.open = true
	gate.resumes[0]()
	q.Run()
	require.Empty(t, gate.got)
}
