package logging

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/diode"
)

// OverflowPolicy selects what happens when the bounded log queue is full.
// The choice is explicit configuration: silently dropping without
// signaling loss is a correctness gap this package does not have.
type OverflowPolicy string

const (
	// PolicyBlock makes producers wait for queue space. No line is ever
	// lost, at the cost of backpressure on logging goroutines.
	PolicyBlock OverflowPolicy = "block"

	// PolicyDrop overwrites the oldest queued lines and reports the number
	// of dropped lines through OnDrop. Producers never block.
	PolicyDrop OverflowPolicy = "drop"
)

// ParseOverflowPolicy parses a policy name.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case PolicyBlock, PolicyDrop:
		return OverflowPolicy(s), nil
	}
	return "", fmt.Errorf("unknown writer policy %q (expected block or drop)", s)
}

// WriterOptions configures NewAsyncWriter.
type WriterOptions struct {
	// Size is the queue capacity in lines. Defaults to 1000.
	Size int

	// Policy selects the queue-full behavior. Defaults to PolicyDrop.
	Policy OverflowPolicy

	// OnDrop is called with the number of lines lost under PolicyDrop.
	// Loss is always signaled; a nil OnDrop is replaced by a no-op only
	// after the caller has explicitly chosen the policy.
	OnDrop func(missed int)

	// OnError is called when the background drain fails to write a line.
	OnError func(err error)
}

// NewAsyncWriter wraps w in a bounded queue drained by one background
// goroutine, so goroutines emitting log events are never blocked on slow
// downstream I/O. Close flushes everything still queued and stops the
// drain goroutine.
func NewAsyncWriter(w io.Writer, opts WriterOptions) io.WriteCloser {
	if opts.Size <= 0 {
		opts.Size = 1000
	}
	if opts.Policy == "" {
		opts.Policy = PolicyDrop
	}
	if opts.OnDrop == nil {
		opts.OnDrop = func(int) {}
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}

	if opts.Policy == PolicyDrop {
		dw := diode.NewWriter(w, opts.Size, 10*time.Millisecond, diode.Alerter(func(missed int) {
			opts.OnDrop(missed)
		}))
		return &dw
	}

	bw := &blockingWriter{
		out:     w,
		ch:      make(chan []byte, opts.Size),
		done:    make(chan struct{}),
		onError: opts.OnError,
	}
	go bw.drain()
	return bw
}

// blockingWriter is the PolicyBlock sink: a bounded channel drained by one
// goroutine. diode only supports the dropping discipline, so the blocking
// variant is implemented here.
type blockingWriter struct {
	out     io.Writer
	ch      chan []byte
	done    chan struct{}
	onError func(error)

	// mu orders in-flight sends against Close: writers hold the read side
	// across the channel send so Close never closes under a sender.
	mu     sync.RWMutex
	closed bool
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	// the encoder reuses its buffer after Write returns
	cp := make([]byte, len(p))
	copy(cp, p)
	w.ch <- cp
	return len(p), nil
}

func (w *blockingWriter) drain() {
	defer close(w.done)
	for line := range w.ch {
		if _, err := w.out.Write(line); err != nil {
			w.onError(err)
		}
	}
}

// Close stops accepting lines, flushes the queue, and waits for the drain
// goroutine to finish.
func (w *blockingWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	<-w.done
	return nil
}
