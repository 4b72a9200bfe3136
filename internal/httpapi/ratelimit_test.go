package httpapi

import "testing"

func TestIPLimiterAllowsBurstThenBlocks(t *testing.T) {
	l := newIPLimiter(1, 3)
	for i := 0; i < 3; i++ {
		if !l.allow("1.2.3.4") {
			t.Fatalf("expected request %d within burst to be allowed", i)
		}
	}
	if l.allow("1.2.3.4") {
		t.Error("expected request beyond burst to be rate limited")
	}
}

func TestIPLimiterTracksIndependentIPs(t *testing.T) {
	l := newIPLimiter(1, 1)
	if !l.allow("1.1.1.1") {
		t.Fatal("expected first request from 1.1.1.1 to be allowed")
	}
	if !l.allow("2.2.2.2") {
		t.Error("a different IP should have its own bucket")
	}
	if l.allow("1.1.1.1") {
		t.Error("1.1.1.1 should be exhausted after its single burst slot")
	}
}
