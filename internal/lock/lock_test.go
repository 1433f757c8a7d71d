package lock

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAcquire_SecondHolderFailsImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "writer.lock")

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire() returned error: %v", err)
	}
	defer first.Release()

	if _, err := Acquire(path); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire() = %v, want ErrHeld", err)
	}
}

func TestRelease_AllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "writer.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release() returned error: %v", err)
	}

	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() after release returned error: %v", err)
	}
	again.Release()
}

func TestRelease_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "writer.lock")
	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() returned error: %v", err)
	}
	var nilLock *FileLock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release() returned error: %v", err)
	}
}
