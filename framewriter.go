// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import (
	"io"
	"runtime"
)

// Wire layout of a download (default framing):
//
//	HTTP/1.1 200 OK CRLF headers CRLF
//	1;data=<payload ...> CRLF { CRLF          dummy chunk, 1 data byte: "{"
//	<hex len> CRLF <json without "{"> CRLF    metrics chunk
//	0 CRLF CRLF                               last chunk
//
// The payload lives in the chunk-extension of the dummy chunk, so agents that
// transform or buffer chunk data never see it, while the client still reads
// it off the socket. Compat framing cuts the extension into tokens of at most
// FragmentLimit bytes by closing the dummy chunk with a one-space data byte
// and opening a new one.

const responseHead = "HTTP/1.1 200 OK\r\n" +
	"Content-Type: application/json\r\n" +
	"Transfer-Encoding: chunked\r\n" +
	"\r\n"

var (
	bytesHeadOpener = []byte(responseHead + "1;data=")
	bytesCompatCut  = []byte("\r\n \r\n1;data=")
)

// FrameWriter writes download payload into chunk-extension tokens.
//
// Every method follows the Transport contract: (n, ErrWouldBlock) means the
// bytes were accepted but the caller must wait for readiness before writing
// more. If the underlying writer accepts only part of a buffer with
// ErrWouldBlock, FrameWriter waits (on NotifyReady when the writer is a
// Transport, otherwise by yielding) and retries, so frames are never torn.
type FrameWriter struct {
	wr     io.Writer
	compat bool
	limit  int

	run      int // bytes in the currently open extension token
	opened   bool
	finished bool
}

// NewFrameWriter returns a FrameWriter on w. compat selects fragmented framing.
func NewFrameWriter(w io.Writer, compat bool, opts ...Option) *FrameWriter {
	o := buildOptions(opts)
	return &FrameWriter{wr: w, compat: compat, limit: o.FragmentLimit}
}

// Compat reports whether fragmented framing is in use.
func (fw *FrameWriter) Compat() bool { return fw.compat }

// Open writes the response head and opens the first dummy chunk.
func (fw *FrameWriter) Open() (n int, err error) {
	if fw.wr == nil {
		return 0, ErrInvalidArgument
	}
	if fw.opened {
		return 0, nil
	}
	fw.opened = true
	return fw.writeFull(bytesHeadOpener)
}

// WritePayload appends p to the open extension token. n counts payload bytes
// only, never framing bytes.
func (fw *FrameWriter) WritePayload(p []byte) (n int, err error) {
	if fw.wr == nil {
		return 0, ErrInvalidArgument
	}
	if fw.finished {
		return 0, ErrClosed
	}
	if !fw.opened {
		if _, err = fw.Open(); err != nil && err != ErrWouldBlock {
			return 0, err
		}
	}
	blocked := err == ErrWouldBlock

	if !fw.compat {
		n, err = fw.writeFull(p)
		if err == nil && blocked {
			err = ErrWouldBlock
		}
		return n, err
	}

	for len(p) > 0 {
		if fw.run >= fw.limit {
			if _, we := fw.writeFull(bytesCompatCut); we != nil {
				if we != ErrWouldBlock {
					return n, we
				}
				blocked = true
			}
			fw.run = 0
		}
		k := min(len(p), fw.limit-fw.run)
		wn, we := fw.writeFull(p[:k])
		n += wn
		fw.run += wn
		p = p[wn:]
		if we != nil {
			if we != ErrWouldBlock {
				return n, we
			}
			blocked = true
		}
	}
	if blocked {
		return n, ErrWouldBlock
	}
	return n, nil
}

// Finish writes the closing frame (see FinalFrame) and rejects later writes.
func (fw *FrameWriter) Finish(frame []byte) (n int, err error) {
	if fw.wr == nil {
		return 0, ErrInvalidArgument
	}
	if fw.finished {
		return 0, ErrClosed
	}
	fw.finished = true
	return fw.writeFull(frame)
}

// writeFull writes all of p, waiting out partial ErrWouldBlock progress.
func (fw *FrameWriter) writeFull(p []byte) (n int, err error) {
	blocked := false
	for n < len(p) {
		wn, we := fw.wr.Write(p[n:])
		// Guard against broken Writers that violate the io.Writer contract by
		// returning (0, nil) on a non-empty buffer.
		if wn == 0 && we == nil {
			return n, io.ErrShortWrite
		}
		n += wn
		if we == nil {
			continue
		}
		if we != ErrWouldBlock {
			return n, we
		}
		blocked = true
		if n < len(p) {
			fw.waitOnce()
		}
	}
	if blocked {
		return n, ErrWouldBlock
	}
	return n, nil
}

func (fw *FrameWriter) waitOnce() {
	if t, ok := fw.wr.(Transport); ok {
		ready, _ := t.NotifyReady()
		<-ready
		return
	}
	// Cooperative yield to avoid burning a full core on a non-blocking writer.
	runtime.Gosched()
}
