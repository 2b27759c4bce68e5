package main

import (
	"testing"
	"time"

	"github.com/HugeFrog24/create-tg-app/portal"
)

// TestCodeLimiterAllow verifies that code requests are allowed or denied
// based on the hourly and daily allowance of a phone.
func TestCodeLimiterAllow(t *testing.T) {
	mockClock := NewMockClock(time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC))

	limits := LimitsConfig{
		CodesPerHour:    5,
		CodesPerDay:     10,
		TempBanDuration: "1m",
	}
	limiter, err := newCodeLimiter(limits, mockClock)
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}

	phone := portal.PhoneNumber("99900000000")
	request := func() bool {
		return limiter.allow(phone)
	}

	for i := 0; i < limits.CodesPerHour; i++ {
		if !request() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	// 6th request exceeds the hourly allowance and starts a ban
	if request() {
		t.Errorf("Expected request to be denied due to hourly limit exceeded")
	}
	if request() {
		t.Errorf("Expected request to be denied while phone is banned")
	}

	mockClock.Advance(time.Minute)
	mockClock.Advance(time.Hour)

	if !request() {
		t.Errorf("Expected request to be allowed after ban duration")
	}

	for i := 0; i < limits.CodesPerDay-limits.CodesPerHour-1; i++ {
		if !request() {
			t.Errorf("Expected request %d to be allowed towards daily limit", i+1)
		}
	}

	if request() {
		t.Errorf("Expected request to be denied due to daily limit exceeded")
	}

	// A new day starts with a fresh daily allowance.
	mockClock.Advance(24 * time.Hour)
	if !request() {
		t.Errorf("Expected request to be allowed on the next day")
	}
}

func TestCodeLimiterPhonesAreIndependent(t *testing.T) {
	mockClock := NewMockClock(time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC))
	limiter, err := newCodeLimiter(LimitsConfig{CodesPerHour: 1, CodesPerDay: 1, TempBanDuration: "1m"}, mockClock)
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}

	if !limiter.allow("99900000001") {
		t.Fatalf("Expected first phone to be allowed")
	}
	if limiter.allow("99900000001") {
		t.Errorf("Expected first phone to be denied on its second request")
	}
	if !limiter.allow("99900000002") {
		t.Errorf("Expected second phone to be unaffected by the first")
	}
}

func TestCodeLimiterPrime(t *testing.T) {
	mockClock := NewMockClock(time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC))
	limiter, err := newCodeLimiter(LimitsConfig{CodesPerHour: 3, CodesPerDay: 10, TempBanDuration: "1m"}, mockClock)
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}

	phone := portal.PhoneNumber("99900000000")
	if limiter.known(phone) {
		t.Fatalf("Expected a fresh limiter to know no phones")
	}

	// Two codes were already requested by an earlier process this hour.
	limiter.prime(phone, 2, 2)
	if !limiter.known(phone) {
		t.Fatalf("Expected prime to create limiter state")
	}

	if !limiter.allow(phone) {
		t.Errorf("Expected the third request of the hour to be allowed")
	}
	if limiter.allow(phone) {
		t.Errorf("Expected the fourth request of the hour to be denied")
	}
}

func TestCodeLimiterPrimeClampsToBurst(t *testing.T) {
	mockClock := NewMockClock(time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC))
	limiter, err := newCodeLimiter(LimitsConfig{CodesPerHour: 3, CodesPerDay: 10, TempBanDuration: "1m"}, mockClock)
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}

	phone := portal.PhoneNumber("99900000000")
	limiter.prime(phone, 50, 50)

	if limiter.allow(phone) {
		t.Errorf("Expected a phone over its allowance to be denied")
	}
}

func TestNewCodeLimiterInvalidBan(t *testing.T) {
	_, err := newCodeLimiter(LimitsConfig{CodesPerHour: 1, CodesPerDay: 1, TempBanDuration: "soon"}, RealClock{})
	if err == nil {
		t.Fatalf("Expected an error for an invalid ban duration")
	}
}
