package serial

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// chanSource feeds scripted chunks to a ReadLoop.
type chanSource struct {
	chunks chan string
	err    error

	mu     sync.Mutex
	closed bool
}

func newChanSource() *chanSource {
	return &chanSource{chunks: make(chan string, 16)}
}

func (s *chanSource) Read(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case chunk, ok := <-s.chunks:
		if !ok {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}
		return chunk, nil
	}
}

func (s *chanSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *chanSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestReadLoop_DeliversLinesInOrder(t *testing.T) {
	src := newChanSource()
	var mu sync.Mutex
	var got []string
	loop := NewReadLoop(src, func(line string) {
		mu.Lock()
		got = append(got, line)
		mu.Unlock()
	})

	src.chunks <- "AB12 3.85\nCD34 "
	src.chunks <- "PLAY forward\n"
	close(src.chunks)

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLoop did not exit after stream end")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"AB12 3.85", "CD34 PLAY forward"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d lines, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if !src.isClosed() {
		t.Error("Source was not closed on loop exit")
	}
}

func TestReadLoop_DisconnectStopsLoop(t *testing.T) {
	src := newChanSource()
	loop := NewReadLoop(src, func(string) {})

	go loop.Run(context.Background())
	time.Sleep(10 * time.Millisecond)

	finished := make(chan struct{})
	go func() {
		loop.Disconnect()
		loop.Disconnect() // second call must not panic or hang
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not return")
	}
	if !src.isClosed() {
		t.Error("Source was not closed on disconnect")
	}
}

func TestReadLoop_ReadErrorExitsCleanly(t *testing.T) {
	src := newChanSource()
	src.err = errors.New("device unplugged")
	close(src.chunks)

	loop := NewReadLoop(src, func(string) {
		t.Error("Handler should not run on a failed read")
	})

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLoop did not exit on read error")
	}
}
