package ringpool

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Host is one ring node and its connect health. A Host is shared by every
// connection and survives ring refreshes for as long as its address stays in the ring.
type Host struct {
	address  string
	lastUsed atomic.Int64 // unix ms of the last connect attempt
	bad      atomic.Bool
}

func newHost(address string) *Host {
	return &Host{address: address}
}

// Address returns the host, optionally with :port.
func (h *Host) Address() string {
	return h.address
}

// IsGood reports whether the last connect attempt to this host succeeded (true when never tried).
func (h *Host) IsGood() bool {
	return !h.bad.Load()
}

// LastUsed returns the time of the last connect attempt, zero when never tried.
func (h *Host) LastUsed() time.Time {
	ms := h.lastUsed.Load()
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms)
}

func (h *Host) markGood(now time.Time) {
	h.lastUsed.Store(now.UnixMilli())
	h.bad.Store(false)
}

func (h *Host) markBad(now time.Time) {
	h.lastUsed.Store(now.UnixMilli())
	h.bad.Store(true)
}

// retryable is false while a failed host is still inside its backoff window.
func (h *Host) retryable(now time.Time, retryInterval time.Duration) bool {
	if h.IsGood() {
		return true
	}

	return h.lastUsed.Load()+retryInterval.Milliseconds() < now.UnixMilli()
}

func (h *Host) String() string {
	return fmt.Sprintf("[%s,good=%t,lastUsed=%d]", h.address, h.IsGood(), h.lastUsed.Load())
}
