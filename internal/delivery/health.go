package delivery

import (
	"sync"
	"time"
)

// transportState tracks degradation for a single transport.
type transportState struct {
	degradedUntil time.Time
	lastFailure   time.Time
}

// HealthBoard is the process-wide transport health record.
//
// A transport goes degraded for a cool-down window after a
// degrade-transport verdict and re-enters rotation automatically once the
// window elapses. Written only by the delivery engine, read by every
// selection call.
type HealthBoard struct {
	mu       sync.Mutex
	cooldown time.Duration
	m        map[string]*transportState
}

func NewHealthBoard(cooldown time.Duration) *HealthBoard {
	if cooldown <= 0 {
		cooldown = 10 * time.Minute
	}
	return &HealthBoard{cooldown: cooldown, m: map[string]*transportState{}}
}

// Degrade opens the cool-down window for the named transport.
func (b *HealthBoard) Degrade(name string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.m[name]
	if st == nil {
		st = &transportState{}
		b.m[name] = st
	}
	st.lastFailure = now
	st.degradedUntil = now.Add(b.cooldown)
}

// Healthy reports whether the named transport is in rotation.
func (b *HealthBoard) Healthy(name string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.m[name]
	if st == nil {
		return true
	}
	return !now.Before(st.degradedUntil)
}

// LastFailure returns when the named transport last drew a degrade
// verdict (zero if never). Diagnostics only.
func (b *HealthBoard) LastFailure(name string) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.m[name]
	if st == nil {
		return time.Time{}
	}
	return st.lastFailure
}
