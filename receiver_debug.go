//go:build debug
// +build debug

package amqp

import (
	"github.com/yywing/go-amqp-engine/frames"
	"github.com/yywing/go-amqp-engine/internal/debug"
)

// creditViolation logs the link's credit accounting before detaching. The
// transfer comes from the peer, so even debug builds must not panic here.
func (r *Receiver) creditViolation(fr *frames.PerformTransfer) {
	debug.Log(0, "RX (Receiver %s): transfer without credit: %s (deliveryCount %d, unsettled %d, drain %t)",
		r.key.name, fr, r.deliveryCount, r.unsettled.Len(), r.drain)
	r.detachCreditViolation(fr)
}
