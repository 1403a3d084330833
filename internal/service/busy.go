package service

import (
	"errors"
	"sync/atomic"
)

// ErrBusy is returned when a submission arrives while another is in flight.
var ErrBusy = errors.New("another request is still in progress")

// BusyFlag rejects overlapping submissions from one client. It never
// queues: the second caller gets ErrBusy straight away.
type BusyFlag struct {
	busy atomic.Bool
}

// Acquire marks the client busy. The returned release must be called when
// the submission settles.
func (b *BusyFlag) Acquire() (release func(), err error) {
	if !b.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { b.busy.Store(false) }, nil
}

// Busy reports whether a submission is in flight.
func (b *BusyFlag) Busy() bool {
	return b.busy.Load()
}
