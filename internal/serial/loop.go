package serial

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
)

// LineHandler receives each complete line in arrival order.
type LineHandler func(line string)

// ReadLoop owns a Source for the duration of one connection. It frames
// chunks into lines and hands them to the handler synchronously, preserving
// FIFO order. The loop exits on context cancellation, Disconnect, stream end,
// or a read error; the source is always closed before Run returns.
type ReadLoop struct {
	source  Source
	handler LineHandler

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewReadLoop(source Source, handler LineHandler) *ReadLoop {
	return &ReadLoop{
		source:  source,
		handler: handler,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run blocks until the loop exits. Read errors are logged, never propagated:
// a dead connection just ends the loop and the session carries on without
// live data.
func (l *ReadLoop) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.stop:
			cancel()
			// Unblock a Read that ignores context cancellation.
			l.source.Close()
		case <-ctx.Done():
		}
	}()

	defer close(l.done)
	defer l.source.Close()

	var framer LineFramer
	for {
		chunk, err := l.source.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
				log.Printf("serial: read error, stopping loop: %v", err)
			}
			return
		}

		for _, line := range framer.Push(chunk) {
			if ctx.Err() != nil {
				return
			}
			l.handler(line)
		}
	}
}

// Disconnect stops a running loop and waits for it to release the source.
// Safe to call more than once.
func (l *ReadLoop) Disconnect() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}
