// Package transfer streams file content to and from the remote drive in fixed size
// chunks and reports progress through Callback observers.
package transfer

import (
	"github.com/bitrise-io/go-utils/v2/log"
)

// Callback observes a single transfer. OnUpdate is called after every chunk with a
// non-decreasing current value that never exceeds total. Exactly one of OnComplete or
// OnFailure is called last.
type Callback interface {
	OnUpdate(current, total int64)
	OnComplete(transferred int64)
	OnFailure(err error)
}

// Funcs adapts plain functions to Callback. Nil fields are skipped.
type Funcs struct {
	Update   func(current, total int64)
	Complete func(transferred int64)
	Failure  func(err error)
}

func (f Funcs) OnUpdate(current, total int64) { //nolint:revive
	if f.Update != nil {
		f.Update(current, total)
	}
}

func (f Funcs) OnComplete(transferred int64) { //nolint:revive
	if f.Complete != nil {
		f.Complete(transferred)
	}
}

func (f Funcs) OnFailure(err error) { //nolint:revive
	if f.Failure != nil {
		f.Failure(err)
	}
}

// Chain forwards every event to its observers in order. A panicking observer is
// logged and skipped, it never prevents the others or the transfer from seeing the event.
type Chain struct {
	logger    log.Logger
	callbacks []Callback
}

// NewChain creates a Chain of the non-nil callbacks.
func NewChain(logger log.Logger, callbacks ...Callback) *Chain {
	if logger == nil {
		logger = log.NewLogger()
	}
	c := &Chain{logger: logger}
	for _, cb := range callbacks {
		if cb != nil {
			c.callbacks = append(c.callbacks, cb)
		}
	}
	return c
}

// Len returns the number of observers.
func (c *Chain) Len() int {
	return len(c.callbacks)
}

func (c *Chain) OnUpdate(current, total int64) { //nolint:revive
	for _, cb := range c.callbacks {
		c.invoke("OnUpdate", func() { cb.OnUpdate(current, total) })
	}
}

func (c *Chain) OnComplete(transferred int64) { //nolint:revive
	for _, cb := range c.callbacks {
		c.invoke("OnComplete", func() { cb.OnComplete(transferred) })
	}
}

func (c *Chain) OnFailure(err error) { //nolint:revive
	for _, cb := range c.callbacks {
		c.invoke("OnFailure", func() { cb.OnFailure(err) })
	}
}

func (c *Chain) invoke(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warnf("Progress callback panicked in %s: %v", event, r)
		}
	}()
	fn()
}

func asChain(cb Callback, logger log.Logger) *Chain {
	if chain, ok := cb.(*Chain); ok {
		return chain
	}
	return NewChain(logger, cb)
}
