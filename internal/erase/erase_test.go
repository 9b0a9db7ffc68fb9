package erase

import "testing"

func TestZeroOverwritesSlice(t *testing.T) {
	b := []byte{1, 2, 3, 4, 5}
	Zero(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, v)
		}
	}
}

func TestZeroHandlesNilAndEmpty(t *testing.T) {
	Zero(nil)
	Zero([]byte{})
}

func TestZero32OverwritesArray(t *testing.T) {
	var b [32]byte
	for i := range b {
		b[i] = byte(i + 1)
	}
	Zero32(&b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, v)
		}
	}
}

func TestLockUnlockDoNotPanic(t *testing.T) {
	b := make([]byte, 4096)
	if err := Lock(b); err != nil {
		t.Logf("Lock returned non-fatal error on this platform: %v", err)
	}
	if err := Unlock(b); err != nil {
		t.Logf("Unlock returned non-fatal error on this platform: %v", err)
	}
}
