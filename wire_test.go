package chunkspeed

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// wire is a decoded hand-framed response.
type wire struct {
	head       string
	extensions []string // data= value of every chunk-size line that carried one
	payload    []byte   // extensions concatenated
	body       []byte   // chunk data concatenated
	terminated bool     // last chunk seen and nothing after it
}

func decodeWire(raw []byte) (wire, error) {
	var w wire
	i := bytes.Index(raw, []byte("\r\n\r\n"))
	if i < 0 {
		return w, errors.New("no header terminator")
	}
	w.head = string(raw[:i+4])
	rest := raw[i+4:]

	for len(rest) > 0 {
		eol := bytes.Index(rest, []byte("\r\n"))
		if eol < 0 {
			return w, errors.New("unterminated chunk-size line")
		}
		line := string(rest[:eol])
		rest = rest[eol+2:]

		sizeStr, ext, hasExt := strings.Cut(line, ";")
		size, err := strconv.ParseInt(sizeStr, 16, 64)
		if err != nil {
			return w, fmt.Errorf("chunk size %q: %w", sizeStr, err)
		}
		if hasExt {
			v, ok := strings.CutPrefix(ext, "data=")
			if !ok {
				return w, fmt.Errorf("unexpected extension %q", ext)
			}
			w.extensions = append(w.extensions, v)
			w.payload = append(w.payload, v...)
		}
		if size == 0 {
			if !bytes.Equal(rest, []byte("\r\n")) {
				return w, fmt.Errorf("trailing bytes after last chunk: %q", rest)
			}
			w.terminated = true
			return w, nil
		}
		if int64(len(rest)) < size+2 {
			return w, errors.New("truncated chunk data")
		}
		w.body = append(w.body, rest[:size]...)
		if string(rest[size:size+2]) != "\r\n" {
			return w, errors.New("chunk data not followed by CRLF")
		}
		rest = rest[size+2:]
	}
	return w, errors.New("missing last chunk")
}

// memTransport is a Transport recording everything written. When blockOver
// is positive, a write that pushes the unread total past it reports
// ErrWouldBlock, and readiness fires after the backlog is "drained" by a
// background goroutine.
type memTransport struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	writes     int
	blockOver  int
	backlog    int
	failAfter  int // fail once this many bytes are written; 0 = never
	ready      chan struct{}
	neverDrain bool
}

var errPeerGone = errors.New("peer gone")

func (m *memTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter > 0 && m.buf.Len()+len(p) > m.failAfter {
		return 0, errPeerGone
	}
	m.writes++
	m.buf.Write(p)
	if m.blockOver > 0 {
		m.backlog += len(p)
		if m.backlog > m.blockOver {
			return len(p), ErrWouldBlock
		}
	}
	return len(p), nil
}

func (m *memTransport) NotifyReady() (<-chan struct{}, func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backlog <= m.blockOver {
		return readyNow, stopNothing
	}
	if m.ready == nil {
		m.ready = make(chan struct{})
		if !m.neverDrain {
			go m.drainLater(m.ready)
		}
	}
	ch := m.ready
	return ch, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.ready != ch {
			return false
		}
		m.ready = nil
		return true
	}
}

func (m *memTransport) drainLater(ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backlog = 0
	if m.ready == ch {
		close(ch)
		m.ready = nil
	}
}

func (m *memTransport) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.buf.Bytes()...)
}
