package core

import (
	"testing"
	"time"
)

func TestTimedMutexTryLockTimeout(t *testing.T) {
	m := NewTimedMutex()

	if !m.TryLockTimeout(0) {
		t.Fatal("expected immediate lock to succeed on unlocked mutex")
	}

	if m.TryLockTimeout(10 * time.Millisecond) {
		t.Fatal("expected lock attempt to fail while already held")
	}

	m.Unlock()

	if !m.TryLockTimeout(0) {
		t.Fatal("expected lock to succeed after unlock")
	}
	m.Unlock()
}

func TestTimedMutexUnlockPanicsWhenNotHeld(t *testing.T) {
	m := NewTimedMutex()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic from double unlock")
		}
	}()
	m.Unlock()
	m.Unlock()
}
