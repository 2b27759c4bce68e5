// clock.go
package main

import "time"

// Clock abstracts time for the code limiter and the journal.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// MockClock is a settable Clock for tests.
type MockClock struct {
	currentTime time.Time
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{currentTime: start}
}

func (mc *MockClock) Now() time.Time {
	return mc.currentTime
}

// Advance moves the mocked time forward by d.
func (mc *MockClock) Advance(d time.Duration) {
	mc.currentTime = mc.currentTime.Add(d)
}
