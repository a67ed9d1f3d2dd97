package helper

import (
	"errors"
	"sync/atomic"
)

var ErrBusy = errors.New("another action is still in progress")

// Busy stops one instance from firing the same action twice while the first
// is outstanding. It does nothing for races between instances.
type Busy struct {
	flag atomic.Bool
}

// Enter claims the flag. The returned release must be called when the action
// finishes.
func (b *Busy) Enter() (release func(), err error) {
	if !b.flag.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { b.flag.Store(false) }, nil
}

func (b *Busy) Active() bool {
	return b.flag.Load()
}
