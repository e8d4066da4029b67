// Package tracker keeps the in-flight deliveries of one link, ordered by
// delivery id.
package tracker

import (
	"github.com/yywing/go-amqp-engine/encoding"
)

// Delivery is the bookkeeping for one unsettled delivery.
type Delivery struct {
	ID  uint32
	Tag []byte

	// Settled is true once this endpoint has settled the delivery.
	Settled bool

	// RemoteSettled is true once the peer has settled the delivery.
	RemoteSettled bool

	// Decided is true once this endpoint has sent an outcome for the
	// delivery, settled or not.
	Decided bool

	// State is the most recent state, local or remote.
	State encoding.DeliveryState
}

// Done reports whether both endpoints have settled.
func (d *Delivery) Done() bool {
	return d.Settled && d.RemoteSettled
}

// Tracker is not safe for concurrent use. Delivery ids are assumed to be
// recorded in increasing (serial number) order, which holds for a single
// link because ids are allocated sequentially per session.
type Tracker struct {
	byID  map[uint32]*Delivery
	order []uint32
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{byID: map[uint32]*Delivery{}}
}

// Record starts tracking d. Recording an id that is already tracked
// replaces the existing entry.
func (t *Tracker) Record(d *Delivery) {
	if _, ok := t.byID[d.ID]; !ok {
		t.order = append(t.order, d.ID)
	}
	t.byID[d.ID] = d
}

// Get returns the delivery with the given id.
func (t *Tracker) Get(id uint32) (*Delivery, bool) {
	d, ok := t.byID[id]
	return d, ok
}

// Len returns the number of tracked deliveries.
func (t *Tracker) Len() int {
	return len(t.byID)
}

// Each calls fn for every tracked delivery in id order.
func (t *Tracker) Each(fn func(*Delivery)) {
	for _, id := range t.order {
		if d, ok := t.byID[id]; ok {
			fn(d)
		}
	}
}

// ApplyDisposition applies a peer disposition covering the inclusive
// serial-number range first..last. Untracked ids in the range are skipped.
// It returns the affected deliveries in id order.
func (t *Tracker) ApplyDisposition(first, last uint32, settled bool, state encoding.DeliveryState) []*Delivery {
	var affected []*Delivery
	span := last - first
	for _, id := range t.order {
		if id-first > span {
			continue
		}
		d, ok := t.byID[id]
		if !ok {
			continue
		}
		if state != nil {
			d.State = state
		}
		if settled {
			d.RemoteSettled = true
		}
		affected = append(affected, d)
	}
	return affected
}

// Remove stops tracking id.
func (t *Tracker) Remove(id uint32) {
	if _, ok := t.byID[id]; !ok {
		return
	}
	delete(t.byID, id)
	t.compact()
}

// Prune removes every delivery settled by both endpoints and returns how
// many were removed.
func (t *Tracker) Prune() int {
	var n int
	for id, d := range t.byID {
		if d.Done() {
			delete(t.byID, id)
			n++
		}
	}
	if n > 0 {
		t.compact()
	}
	return n
}

// Clear removes and returns every tracked delivery in id order.
func (t *Tracker) Clear() []*Delivery {
	out := make([]*Delivery, 0, len(t.byID))
	t.Each(func(d *Delivery) {
		out = append(out, d)
	})
	t.byID = map[uint32]*Delivery{}
	t.order = nil
	return out
}

func (t *Tracker) compact() {
	live := t.order[:0]
	for _, id := range t.order {
		if _, ok := t.byID[id]; ok {
			live = append(live, id)
		}
	}
	t.order = live
}
