package resolver

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// domainState tracks one rate-sensitive host. Waiters are served in
// arrival order so no probe starves behind later arrivals.
type domainState struct {
	active        int
	waiters       []chan struct{}
	cooldownUntil time.Time
}

// ErrCoolingDown reports that a host is inside its 429 cooldown window.
// Probes against it are refused outright rather than queued.
var ErrCoolingDown = errors.New("domain cooling down")

// Admission bounds concurrent probes per rate-sensitive domain and refuses
// new probes for a cooldown window after a host answers 429. Domains
// outside the configured list are admitted immediately.
type Admission struct {
	mu            sync.Mutex
	maxConcurrent int
	cooldown      time.Duration
	limited       map[string]bool
	domains       map[string]*domainState
}

func NewAdmission(limitedDomains []string, maxConcurrent int, cooldown time.Duration) *Admission {
	limited := make(map[string]bool, len(limitedDomains))
	for _, d := range limitedDomains {
		limited[strings.ToLower(strings.TrimSpace(d))] = true
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Admission{
		maxConcurrent: maxConcurrent,
		cooldown:      cooldown,
		limited:       limited,
		domains:       make(map[string]*domainState),
	}
}

// Limited reports whether a host is under admission control.
func (a *Admission) Limited(host string) bool {
	return a.limited[strings.ToLower(host)]
}

func (a *Admission) state(host string) *domainState {
	st, ok := a.domains[host]
	if !ok {
		st = &domainState{}
		a.domains[host] = st
	}
	return st
}

// Acquire admits a probe against host, blocking until a slot frees when
// the ceiling is reached. A host inside its cooldown window fails fast
// with ErrCoolingDown. Unlimited hosts return immediately. Every
// successful Acquire must be paired with Release.
func (a *Admission) Acquire(ctx context.Context, host string) error {
	host = strings.ToLower(host)
	if !a.limited[host] {
		return nil
	}

	a.mu.Lock()
	st := a.state(host)

	if time.Now().Before(st.cooldownUntil) {
		a.mu.Unlock()
		return ErrCoolingDown
	}

	if st.active < a.maxConcurrent && len(st.waiters) == 0 {
		st.active++
		a.mu.Unlock()
		return nil
	}

	ch := make(chan struct{})
	st.waiters = append(st.waiters, ch)
	a.mu.Unlock()

	select {
	case <-ctx.Done():
		if !a.removeWaiter(host, ch) {
			// The slot was handed to us between cancellation and
			// removal; give it back.
			a.Release(host)
		}
		return ctx.Err()
	case <-ch:
		// Slot transferred by Release; the active count already reflects
		// us. A cooldown that started while we were queued still refuses
		// the probe.
		a.mu.Lock()
		until := a.state(host).cooldownUntil
		a.mu.Unlock()
		if time.Now().Before(until) {
			a.Release(host)
			return ErrCoolingDown
		}
		return nil
	}
}

// Release frees a slot, handing it straight to the oldest waiter if any.
func (a *Admission) Release(host string) {
	host = strings.ToLower(host)
	if !a.limited[host] {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.state(host)
	if len(st.waiters) > 0 {
		ch := st.waiters[0]
		st.waiters = st.waiters[1:]
		close(ch)
		return
	}
	if st.active > 0 {
		st.active--
	}
}

// ReportRateLimited starts (or extends) the cooldown window for a host.
func (a *Admission) ReportRateLimited(host string) {
	host = strings.ToLower(host)
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.state(host)
	until := time.Now().Add(a.cooldown)
	if until.After(st.cooldownUntil) {
		st.cooldownUntil = until
		log.Printf("[resolver] %s rate limited, cooling down until %s", host, until.Format(time.RFC3339))
	}
}

func (a *Admission) removeWaiter(host string, ch chan struct{}) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.state(host)
	for i, w := range st.waiters {
		if w == ch {
			st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
