// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	fake := Fake(epoch)
	fake.Advance(90 * time.Second)
	if got, want := fake.Now(), epoch.Add(90*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	fake := Fake(epoch)
	channel := fake.After(5 * time.Second)

	fake.Advance(4 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired early")
	default:
	}

	fake.Advance(time.Second)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterFuncOrderAndStop(t *testing.T) {
	fake := Fake(epoch)
	var fired []string

	fake.AfterFunc(3*time.Second, func() { fired = append(fired, "third") })
	fake.AfterFunc(time.Second, func() { fired = append(fired, "first") })
	stopped := fake.AfterFunc(2*time.Second, func() { fired = append(fired, "stopped") })

	if fake.PendingCount() != 3 {
		t.Fatalf("PendingCount = %d, want 3", fake.PendingCount())
	}
	if !stopped.Stop() {
		t.Fatal("Stop on pending timer returned false")
	}
	if stopped.Stop() {
		t.Fatal("second Stop returned true")
	}
	if fake.PendingCount() != 2 {
		t.Fatalf("PendingCount after Stop = %d, want 2", fake.PendingCount())
	}

	fake.Advance(10 * time.Second)

	if len(fired) != 2 || fired[0] != "first" || fired[1] != "third" {
		t.Fatalf("fired = %v, want [first third]", fired)
	}
	if fake.PendingCount() != 0 {
		t.Fatalf("PendingCount after Advance = %d, want 0", fake.PendingCount())
	}
}

func TestFakeAfterFuncNonPositiveRunsInline(t *testing.T) {
	fake := Fake(epoch)
	ran := false
	timer := fake.AfterFunc(0, func() { ran = true })
	if !ran {
		t.Fatal("AfterFunc(0) did not run f inline")
	}
	if timer.Stop() {
		t.Fatal("Stop on an already-run timer returned true")
	}
}

func TestFakeCallbackSchedulesFollowUp(t *testing.T) {
	fake := Fake(epoch)
	count := 0
	var schedule func()
	schedule = func() {
		count++
		if count < 3 {
			fake.AfterFunc(time.Second, schedule)
		}
	}
	fake.AfterFunc(time.Second, schedule)

	fake.Advance(time.Second)
	if count != 1 {
		t.Fatalf("count = %d after one second, want 1", count)
	}
	// The follow-up due at +2s fires inside this window and registers
	// one due at +3s, which Advance also fires.
	fake.Advance(5 * time.Second)
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestWaitForTimersUnblocks(t *testing.T) {
	fake := Fake(epoch)
	done := make(chan struct{})
	go func() {
		fake.WaitForTimers(1)
		close(done)
	}()
	fake.AfterFunc(time.Minute, func() {})
	<-done
}
