// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed_test

import (
	"io"
	"net"
	"testing"
	"time"

	cs "code.hybscloud.com/chunkspeed"
)

func TestConnTransport_HighWaterMark(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	tr := cs.NewConnTransport(server, cs.WithHighWaterMark(4))
	defer tr.Abort()

	n, err := tr.Write([]byte("0123456789"))
	if n != 10 || err != cs.ErrWouldBlock {
		t.Fatalf("n=%d err=%v want 10, ErrWouldBlock", n, err)
	}
	ready, _ := tr.NotifyReady()
	select {
	case <-ready:
		t.Fatal("ready before the peer read anything")
	default:
	}

	buf := make([]byte, 10)
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("not ready after drain")
	}
	if string(buf) != "0123456789" {
		t.Fatalf("read %q", buf)
	}
	if tr.Buffered() != 0 {
		t.Fatalf("buffered=%d", tr.Buffered())
	}
	if n, err := tr.Write([]byte("ab")); n != 2 || err != nil {
		t.Fatalf("n=%d err=%v want 2, nil", n, err)
	}
}

func TestConnTransport_CloseFlushes(t *testing.T) {
	server, client := net.Pipe()
	got := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(client)
		got <- b
	}()

	// Pipes have no coalescing to turn off; the option is a no-op here.
	tr := cs.NewConnTransport(server, cs.WithNoDelay(false))
	for _, p := range []string{"hello", " ", "world"} {
		if _, err := tr.Write([]byte(p)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if b := <-got; string(b) != "hello world" {
		t.Fatalf("peer read %q", b)
	}
	if _, err := tr.Write([]byte("x")); err != cs.ErrClosed {
		t.Fatalf("err=%v want ErrClosed", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestConnTransport_PeerGone(t *testing.T) {
	server, client := net.Pipe()
	client.Close()
	tr := cs.NewConnTransport(server)
	defer tr.Abort()

	if _, err := tr.Write([]byte("x")); err != nil && err != cs.ErrWouldBlock {
		t.Fatalf("first write err=%v", err)
	}
	ready, _ := tr.NotifyReady()
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("failure did not wake the waiter")
	}
	if tr.Err() == nil {
		t.Fatal("want transport error")
	}
	if _, err := tr.Write([]byte("y")); err == nil || err == cs.ErrWouldBlock {
		t.Fatalf("write after failure err=%v", err)
	}
}

func TestConnTransport_StopDeregisters(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	tr := cs.NewConnTransport(server, cs.WithHighWaterMark(0))

	if _, err := tr.Write([]byte("abc")); err != cs.ErrWouldBlock {
		t.Fatalf("err=%v want ErrWouldBlock", err)
	}
	ready, stop := tr.NotifyReady()
	if !stop() {
		t.Fatal("stop on pending waiter returned false")
	}
	if stop() {
		t.Fatal("second stop returned true")
	}
	tr.Abort()
	select {
	case <-ready:
		t.Fatal("stopped waiter was woken")
	default:
	}
	if _, err := tr.Write([]byte("x")); err != cs.ErrClosed {
		t.Fatalf("err=%v want ErrClosed", err)
	}
}

func TestConnTransport_WriteTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	tr := cs.NewConnTransport(server, cs.WithWriteTimeout(20*time.Millisecond), cs.WithHighWaterMark(0))
	defer tr.Abort()

	if _, err := tr.Write([]byte("never read")); err != cs.ErrWouldBlock {
		t.Fatalf("err=%v want ErrWouldBlock", err)
	}
	ready, _ := tr.NotifyReady()
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("write deadline did not fail the transport")
	}
	if err := tr.Err(); err == nil {
		t.Fatal("want timeout error")
	}
}
