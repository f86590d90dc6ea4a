package hook

import "sync/atomic"

// Guard models the thread-local re-entry flag from spec.md §4.3/§9: set
// while the chain engine performs its own socket operations, so a
// hooked symbol observed re-entering on the same thread acts as a
// pass-through instead of recursing. cmd/libhopchain does not use Guard:
// its guard is a separate C __thread variable (hopchain_guard) with the
// same acquire/release logic. Guard wraps a pointer to an int32 flag so
// that logic is unit-testable without cgo.
type Guard struct {
	flag *int32
}

// NewGuard wraps an existing thread-local flag. flag must point at
// storage unique to the current OS thread.
func NewGuard(flag *int32) Guard { return Guard{flag: flag} }

// Armed reports whether interception should run on this thread (the
// guard is not currently held).
func (g Guard) Armed() bool { return atomic.LoadInt32(g.flag) == 0 }

// Acquire disarms interception for the current thread. Release must be
// called on every exit path, including error paths — callers should
// immediately `defer g.Release()`.
func (g Guard) Acquire() { atomic.StoreInt32(g.flag, 1) }

// Release re-arms interception for the current thread. Safe to call
// even if Acquire was never called.
func (g Guard) Release() { atomic.StoreInt32(g.flag, 0) }
