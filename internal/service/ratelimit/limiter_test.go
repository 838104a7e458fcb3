package ratelimit

import (
    "testing"
    "time"
)

func TestAllowRefills(t *testing.T) {
    l := New()
    now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
    l.now = func() time.Time { return now }

    for i := 0; i < 3; i++ {
        if !l.Allow("a", 3, 1) {
            t.Fatalf("request %d denied", i)
        }
    }
    if l.Allow("a", 3, 1) {
        t.Fatalf("bucket should be empty")
    }
    if !l.Allow("b", 3, 1) {
        t.Fatalf("keys must not share buckets")
    }

    now = now.Add(1500 * time.Millisecond)
    if !l.Allow("a", 3, 1) {
        t.Fatalf("refill did not happen")
    }
    if l.Allow("a", 3, 1) {
        t.Fatalf("only one token should have refilled")
    }
}

func TestSweep(t *testing.T) {
    l := New()
    now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
    l.now = func() time.Time { return now }
    l.Allow("old", 1, 1)
    now = now.Add(time.Hour)
    l.Allow("new", 1, 1)
    if n := l.Sweep(time.Minute); n != 1 {
        t.Fatalf("swept %d", n)
    }
}
