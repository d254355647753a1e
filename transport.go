// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import (
	"io"
	"net"
	"sync"
	"time"
)

// Transport is the raw write primitive a Session streams through.
//
// Semantics:
//   - Write either accepts all of p or returns an error. (len(p), nil) means p
//     was accepted and the transport can take more right away.
//   - (len(p), ErrWouldBlock) means p was accepted, but the backlog is now
//     above the high-water mark: the caller must not write again before the
//     channel returned by NotifyReady is closed. Returned bytes are real
//     progress, exactly as with iox.ErrWouldBlock.
//   - Any other error is terminal for the transport.
//
// NotifyReady returns a channel that is closed once the backlog has drained
// or the transport has failed, and a stop function that deregisters the
// waiter. stop reports whether it deregistered a still-pending waiter.
type Transport interface {
	io.Writer
	NotifyReady() (ready <-chan struct{}, stop func() bool)
}

var readyNow = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func stopNothing() bool { return false }

// ConnTransport implements Transport on top of a net.Conn.
//
// Writes are queued without copying and flushed by a single background
// goroutine using vectored writes. The queue is the transport's buffer: Write
// reports ErrWouldBlock while queued-but-unsent bytes exceed the high-water
// mark, and NotifyReady fires when they reach zero.
//
// Byte slices passed to Write are retained until flushed and must not be
// modified by the caller.
type ConnTransport struct {
	conn         net.Conn
	highWater    int
	writeTimeout time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	queue   net.Buffers
	pending int // queued plus in-flight bytes
	err     error
	closing bool
	ready   chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewConnTransport starts a transport on conn. Socket options (no-delay on TCP)
// are applied before the first write.
func NewConnTransport(conn net.Conn, opts ...Option) *ConnTransport {
	o := buildOptions(opts)
	if o.NoDelay {
		_ = setNoDelay(conn)
	}
	t := &ConnTransport{
		conn:         conn,
		highWater:    o.HighWaterMark,
		writeTimeout: o.WriteTimeout,
		done:         make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	go t.flush()
	return t
}

// Write queues p. See Transport for the return contract.
func (t *ConnTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return 0, err
	}
	if t.closing {
		t.mu.Unlock()
		return 0, ErrClosed
	}
	if len(p) == 0 {
		t.mu.Unlock()
		return 0, nil
	}
	t.queue = append(t.queue, p)
	t.pending += len(p)
	over := t.pending > t.highWater
	t.cond.Signal()
	t.mu.Unlock()

	if over {
		return len(p), ErrWouldBlock
	}
	return len(p), nil
}

// NotifyReady implements Transport.
func (t *ConnTransport) NotifyReady() (<-chan struct{}, func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == 0 || t.err != nil {
		return readyNow, stopNothing
	}
	if t.ready == nil {
		t.ready = make(chan struct{})
	}
	ch := t.ready
	return ch, func() bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.ready != ch {
			return false
		}
		t.ready = nil
		return true
	}
}

// Buffered returns the number of accepted bytes not yet handed to the socket.
func (t *ConnTransport) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Err returns the error that broke the transport, if any.
func (t *ConnTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close flushes the backlog, then closes the connection. It is safe to call
// more than once; later calls wait for the first to finish.
func (t *ConnTransport) Close() error {
	t.mu.Lock()
	t.closing = true
	t.cond.Signal()
	t.mu.Unlock()

	<-t.done
	t.closeConn()

	t.mu.Lock()
	err := t.err
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return t.closeErr
}

// Abort drops the backlog and closes the connection immediately.
func (t *ConnTransport) Abort() {
	t.mu.Lock()
	t.closing = true
	if t.err == nil {
		t.err = ErrClosed
	}
	t.queue = nil
	t.pending = 0
	t.signalReady()
	t.cond.Signal()
	t.mu.Unlock()

	t.closeConn()
	<-t.done
}

func (t *ConnTransport) closeConn() {
	t.closeOnce.Do(func() { t.closeErr = t.conn.Close() })
}

// signalReady wakes the registered waiter. Called with t.mu held.
func (t *ConnTransport) signalReady() {
	if t.ready != nil {
		close(t.ready)
		t.ready = nil
	}
}

func (t *ConnTransport) flush() {
	defer close(t.done)

	t.mu.Lock()
	for {
		for len(t.queue) == 0 && !t.closing && t.err == nil {
			t.cond.Wait()
		}
		if len(t.queue) == 0 || t.err != nil {
			t.mu.Unlock()
			return
		}
		bufs := t.queue
		t.queue = nil
		t.mu.Unlock()

		n, err := t.writev(bufs)

		t.mu.Lock()
		if err != nil && t.err == nil {
			t.err = err
		}
		if t.err != nil {
			t.queue = nil
			t.pending = 0
			t.signalReady()
			t.mu.Unlock()
			return
		}
		t.pending -= int(n)
		if t.pending == 0 {
			t.signalReady()
		}
	}
}

func (t *ConnTransport) writev(bufs net.Buffers) (int64, error) {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return bufs.WriteTo(t.conn)
}
