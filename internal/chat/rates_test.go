package chat

import (
	"testing"
	"time"
)

func TestAllow_FixedWindow(t *testing.T) {
	t0 := time.Unix(100, 0)
	start, count := t0, 0
	var ok bool
	var cd time.Duration
	for i := 0; i < 2; i++ {
		start, count, ok, _ = allow(t0, start, count, 10*time.Second, 2)
		if !ok {
			t.Fatalf("call %d refused", i)
		}
	}
	_, _, ok, cd = allow(t0.Add(4*time.Second), start, count, 10*time.Second, 2)
	if ok {
		t.Fatalf("third call allowed")
	}
	if cd != 6*time.Second {
		t.Fatalf("cooldown=%s want 6s", cd)
	}
	_, count, ok, _ = allow(t0.Add(10*time.Second), start, count, 10*time.Second, 2)
	if !ok || count != 1 {
		t.Fatalf("window did not reset: ok=%v count=%d", ok, count)
	}
}

func TestAllow_DisabledWindow(t *testing.T) {
	if _, _, ok, _ := allow(time.Now(), time.Now(), 99, 0, 1); !ok {
		t.Fatalf("zero window must allow")
	}
}
