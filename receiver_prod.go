//go:build !debug
// +build !debug

package amqp

import (
	"github.com/yywing/go-amqp-engine/frames"
	"github.com/yywing/go-amqp-engine/internal/debug"
)

// creditViolation handles a transfer the peer sent without credit by
// detaching the link.
func (r *Receiver) creditViolation(fr *frames.PerformTransfer) {
	debug.Log(0, "RX (Receiver %s): transfer without credit: %s", r.key.name, fr)
	r.detachCreditViolation(fr)
}
