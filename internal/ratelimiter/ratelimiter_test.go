package ratelimiter

import (
	"testing"
)

// TestAllowEnforcesBurst verifies the per-owner burst capacity.
func TestAllowEnforcesBurst(t *testing.T) {
	limiter := New(10, 10)
	defer limiter.Close()

	// First burst is allowed, up to bucket capacity.
	for i := 0; i < 10; i++ {
		if !limiter.Allow("alice") {
			t.Fatalf("request %d should be allowed (within burst)", i)
		}
	}

	// The bucket is now empty.
	if limiter.Allow("alice") {
		t.Error("request beyond burst should be rejected")
	}
}

// TestOwnersAreIsolated verifies one owner draining its bucket does not
// affect another.
func TestOwnersAreIsolated(t *testing.T) {
	limiter := New(5, 5)
	defer limiter.Close()

	for i := 0; i < 5; i++ {
		if !limiter.Allow("alice") {
			t.Fatalf("alice request %d should be allowed", i)
		}
	}
	if limiter.Allow("alice") {
		t.Error("alice should be throttled")
	}

	// Bob has his own bucket.
	if !limiter.Allow("bob") {
		t.Error("bob should not be throttled by alice's traffic")
	}
}

// TestDisabledLimiter verifies a non-positive rate disables limiting.
func TestDisabledLimiter(t *testing.T) {
	limiter := New(0, 0)
	defer limiter.Close()

	for i := 0; i < 1000; i++ {
		if !limiter.Allow("anyone") {
			t.Fatalf("request %d rejected by a disabled limiter", i)
		}
	}
}

// TestConcurrentAccess verifies thread safety under parallel traffic.
func TestConcurrentAccess(t *testing.T) {
	limiter := New(1000, 1000)
	defer limiter.Close()

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(owner string) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				limiter.Allow(owner)
			}
		}([]string{"a", "b", "c", "d"}[g%4])
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
