package fudger

import (
	"fmt"
	"time"

	"github.com/dpup/locfudge/internal/cache"
	"github.com/dpup/locfudge/internal/lib/fix"
)

// memo remembers coarse fixes by content fingerprint. Keys carry the vector
// generation, so a result computed against an older vector is never served
// after a refresh even if it lands after the reset. A nil memo is disabled.
type memo struct {
	entries *cache.Cache[fix.Fix]
}

func newMemo(n int, clock Clock) *memo {
	if n <= 0 {
		return nil
	}
	return &memo{
		entries: cache.New[fix.Fix](cache.WithMaxEntries(n), cache.WithClock(clock.Now)),
	}
}

func memoKey(generation uint64, magnitude float64, fine fix.Fix) string {
	return fmt.Sprintf("%d|%g|%s", generation, magnitude, fine.Fingerprint())
}

func (m *memo) get(key string) (fix.Fix, bool) {
	if m == nil {
		return fix.Fix{}, false
	}
	return m.entries.Get(key)
}

func (m *memo) put(key string, coarse fix.Fix, expiresAt time.Time) {
	if m == nil {
		return
	}
	m.entries.Set(key, coarse, expiresAt)
}

func (m *memo) reset() {
	if m == nil {
		return
	}
	m.entries.Clear()
}

func (m *memo) len() int {
	if m == nil {
		return 0
	}
	return m.entries.Len()
}
