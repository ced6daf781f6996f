package api

import (
	"sync/atomic"

	"github.com/blueberrycongee/sfnodes"
)

// closer is anything the swapper can retire.
type closer interface{ Close() error }

// swapper holds the live value and retires replaced ones once their last
// lease is returned, so a batch never runs on a closed client.
type swapper[T closer] struct {
	live atomic.Pointer[leased[T]]
}

type leased[T closer] struct {
	value   T
	leases  atomic.Int64
	retired atomic.Bool
	closed  atomic.Bool
}

func newSwapper[T closer](value T) *swapper[T] {
	s := &swapper[T]{}
	s.live.Store(&leased[T]{value: value})
	return s
}

// lease returns the live value and the func that gives it back.
func (s *swapper[T]) lease() (T, func()) {
	l := s.live.Load()
	if l == nil {
		var zero T
		return zero, func() {}
	}

	l.leases.Add(1)
	return l.value, func() {
		if l.leases.Add(-1) == 0 && l.retired.Load() {
			l.close()
		}
	}
}

// replace installs next and retires the previous value.
func (s *swapper[T]) replace(next T) {
	if prev := s.live.Swap(&leased[T]{value: next}); prev != nil {
		prev.retire()
	}
}

func (s *swapper[T]) retireLive() {
	if l := s.live.Load(); l != nil {
		l.retire()
	}
}

func (s *swapper[T]) peek() T {
	l := s.live.Load()
	if l == nil {
		var zero T
		return zero
	}
	return l.value
}

func (l *leased[T]) retire() {
	l.retired.Store(true)
	if l.leases.Load() == 0 {
		l.close()
	}
}

func (l *leased[T]) close() {
	if l.closed.CompareAndSwap(false, true) {
		_ = l.value.Close()
	}
}

// ClientSwapper hands out the current *sfnodes.Client and lets a config
// reload replace it without interrupting running batches.
type ClientSwapper struct {
	s *swapper[*sfnodes.Client]
}

// NewClientSwapper creates a swapper seeded with client.
func NewClientSwapper(client *sfnodes.Client) *ClientSwapper {
	return &ClientSwapper{s: newSwapper(client)}
}

// Acquire returns the current client and a release function.
// Call release when the batch is done so a replaced client can be closed.
func (c *ClientSwapper) Acquire() (*sfnodes.Client, func()) {
	return c.s.lease()
}

// Swap replaces the current client. The old one is closed once idle.
func (c *ClientSwapper) Swap(next *sfnodes.Client) {
	c.s.replace(next)
}

// Close closes the current client when idle.
func (c *ClientSwapper) Close() {
	c.s.retireLive()
}

// Current returns the current client without taking a lease.
func (c *ClientSwapper) Current() *sfnodes.Client {
	return c.s.peek()
}
