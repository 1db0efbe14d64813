// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	_ Clock = (*FakeClock)(nil)
	_ Clock = Real()
)

func TestFakeNow(t *testing.T) {
	fake := Fake(epoch)
	if !fake.Now().Equal(epoch) {
		t.Fatalf("Now = %v, want %v", fake.Now(), epoch)
	}
	fake.Advance(90 * time.Minute)
	if want := epoch.Add(90 * time.Minute); !fake.Now().Equal(want) {
		t.Errorf("Now after Advance = %v, want %v", fake.Now(), want)
	}
}

func TestFakeAfter(t *testing.T) {
	fake := Fake(epoch)
	channel := fake.After(time.Hour)

	fake.Advance(59 * time.Minute)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Minute)
	select {
	case fired := <-channel:
		if !fired.Equal(epoch.Add(time.Hour)) {
			t.Errorf("fired at %v", fired)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if fake.PendingCount() != 0 {
		t.Errorf("PendingCount = %d after one-shot fired", fake.PendingCount())
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	fake := Fake(epoch)
	for _, d := range []time.Duration{0, -time.Second} {
		select {
		case <-fake.After(d):
		default:
			t.Errorf("After(%v) did not fire immediately", d)
		}
	}
}

func TestFakeTicker(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Minute)
	defer ticker.Stop()

	for tick := 1; tick <= 3; tick++ {
		fake.Advance(time.Minute)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", tick)
		}
	}

	// A slow receiver sees one buffered tick, not a backlog.
	fake.Advance(5 * time.Minute)
	<-ticker.C
	select {
	case <-ticker.C:
		t.Fatal("ticker queued more than one tick")
	default:
	}
}

func TestFakeTickerStop(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Second)
	ticker.Stop()
	fake.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestFakeTickerPanicsOnNonPositive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewTicker(0) did not panic")
		}
	}()
	Fake(epoch).NewTicker(0)
}

func TestFakeSetBackwardsPanics(t *testing.T) {
	fake := Fake(epoch)
	defer func() {
		if recover() == nil {
			t.Fatal("Set to the past did not panic")
		}
	}()
	fake.Set(epoch.Add(-time.Second))
}

func TestFakeWaitForTimers(t *testing.T) {
	fake := Fake(epoch)
	done := make(chan time.Time)
	go func() {
		done <- <-fake.After(10 * time.Second)
	}()

	fake.WaitForTimers(1)
	fake.Advance(10 * time.Second)

	select {
	case fired := <-done:
		if !fired.Equal(epoch.Add(10 * time.Second)) {
			t.Errorf("fired at %v", fired)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("goroutine never woke")
	}
}

func TestFakeFiresAllExpired(t *testing.T) {
	fake := Fake(epoch)
	late := fake.After(3 * time.Second)
	early := fake.After(time.Second)

	fake.Advance(time.Hour)
	for name, channel := range map[string]<-chan time.Time{"early": early, "late": late} {
		select {
		case <-channel:
		default:
			t.Errorf("%s timer did not fire", name)
		}
	}
}
