package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speakupd.pid")
	if err := Acquire(path); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("pid file missing: %v", err)
	}
	Release(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("pid file should be removed after release")
	}
}

func TestSecondAcquireByLiveProcessFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speakupd.pid")
	if err := Acquire(path); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	// This test process is alive, so a second acquire must refuse.
	err := Acquire(path)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	Release(path)
}

func TestStalePIDFileIsReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speakupd.pid")
	// Very unlikely to be a live pid on any test host.
	if err := os.WriteFile(path, []byte("999999999\n"), 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}
	if err := Acquire(path); err != nil {
		t.Fatalf("acquire over stale file: %v", err)
	}
	Release(path)
}

func TestReleaseLeavesForeignPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speakupd.pid")
	if err := os.WriteFile(path, []byte("1\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	Release(path)
	if _, err := os.Stat(path); err != nil {
		t.Fatal("release must not remove a pid file owned by another process")
	}
}
