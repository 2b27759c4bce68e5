package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/HugeFrog24/create-tg-app/portal"
	"golang.org/x/time/rate"
)

// phoneLimiter paces confirmation code requests for one phone.
type phoneLimiter struct {
	hourlyLimiter *rate.Limiter
	dailyLimiter  *rate.Limiter
	lastReset     time.Time
	banUntil      time.Time
}

// codeLimiter refuses code requests locally once a phone exceeds its hourly
// or daily allowance, then keeps refusing until the temp ban expires.
type codeLimiter struct {
	mu          sync.Mutex
	limits      LimitsConfig
	banDuration time.Duration
	clock       Clock
	phones      map[portal.PhoneNumber]*phoneLimiter
}

func newCodeLimiter(limits LimitsConfig, clock Clock) (*codeLimiter, error) {
	banDuration, err := time.ParseDuration(limits.TempBanDuration)
	if err != nil {
		return nil, fmt.Errorf("invalid temp ban duration: %w", err)
	}
	return &codeLimiter{
		limits:      limits,
		banDuration: banDuration,
		clock:       clock,
		phones:      make(map[portal.PhoneNumber]*phoneLimiter),
	}, nil
}

func (l *codeLimiter) newHourly() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.limits.CodesPerHour)), l.limits.CodesPerHour)
}

func (l *codeLimiter) newDaily() *rate.Limiter {
	return rate.NewLimiter(rate.Every(24*time.Hour/time.Duration(l.limits.CodesPerDay)), l.limits.CodesPerDay)
}

// get must be called with l.mu held.
func (l *codeLimiter) get(phone portal.PhoneNumber, now time.Time) *phoneLimiter {
	limiter, exists := l.phones[phone]
	if !exists {
		limiter = &phoneLimiter{
			hourlyLimiter: l.newHourly(),
			dailyLimiter:  l.newDaily(),
			lastReset:     now,
		}
		l.phones[phone] = limiter
	}
	return limiter
}

// known reports whether phone already has limiter state in this process.
func (l *codeLimiter) known(phone portal.PhoneNumber) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, exists := l.phones[phone]
	return exists
}

// prime consumes allowance already spent by earlier processes, as counted in
// the journal.
func (l *codeLimiter) prime(phone portal.PhoneNumber, lastHour, lastDay int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	limiter := l.get(phone, now)
	limiter.hourlyLimiter.AllowN(now, min(lastHour, l.limits.CodesPerHour))
	limiter.dailyLimiter.AllowN(now, min(lastDay, l.limits.CodesPerDay))
}

// allow reports whether a code may be requested for phone now.
func (l *codeLimiter) allow(phone portal.PhoneNumber) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	limiter := l.get(phone, now)

	if now.Before(limiter.banUntil) {
		return false
	}

	if now.Sub(limiter.lastReset) >= 24*time.Hour {
		limiter.dailyLimiter = l.newDaily()
		limiter.lastReset = now
	}

	if !limiter.hourlyLimiter.AllowN(now, 1) || !limiter.dailyLimiter.AllowN(now, 1) {
		limiter.banUntil = now.Add(l.banDuration)
		return false
	}

	return true
}
