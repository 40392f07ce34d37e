//go:build !windows

package ptyadapter

import (
	"testing"
	"time"
)

func TestSpawnEchoesInput(t *testing.T) {
	p, err := Spawn(Size{Cols: 80, Rows: 24}, []string{"/bin/cat"}, []string{"TERM=xterm"}, "")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	if _, err := p.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 64)
	done := make(chan struct{})
	var n int
	var readErr error
	go func() {
		n, readErr = p.Read(buf)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PTY echo")
	}
	if readErr != nil {
		t.Fatalf("Read: %v", readErr)
	}
	if n == 0 {
		t.Fatal("expected echoed bytes")
	}
}

func TestResizeIdempotent(t *testing.T) {
	p, err := Spawn(Size{Cols: 80, Rows: 24}, []string{"/bin/cat"}, nil, "")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	if err := p.Resize(Size{Cols: 80, Rows: 24}); err != nil {
		t.Fatalf("Resize 1: %v", err)
	}
	if err := p.Resize(Size{Cols: 80, Rows: 24}); err != nil {
		t.Fatalf("Resize 2: %v", err)
	}
}

func TestCloseReleasesChild(t *testing.T) {
	p, err := Spawn(Size{Cols: 80, Rows: 24}, []string{"/bin/sleep", "30"}, nil, "")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not terminate child within timeout")
	}
}
