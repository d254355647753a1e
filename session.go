// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"code.hybscloud.com/iox"
)

// State is a Session lifecycle state.
type State uint32

const (
	StateInit State = iota
	StateReceivingUpload
	StateUploadDone
	StateStreamingDownload
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReceivingUpload:
		return "receiving-upload"
	case StateUploadDone:
		return "upload-done"
	case StateStreamingDownload:
		return "streaming-download"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Reason tells why a session finished.
type Reason uint8

const (
	ReasonNone Reason = iota
	// ReasonTarget: the byte target was reached.
	ReasonTarget
	// ReasonDuration: the streaming window elapsed.
	ReasonDuration
	// ReasonTimeout: the session context ended (deadline or shutdown).
	ReasonTimeout
	// ReasonDisconnect: the transport failed mid-stream.
	ReasonDisconnect
	// ReasonAborted: the session ended before any response byte was written.
	ReasonAborted
)

func (r Reason) String() string {
	switch r {
	case ReasonTarget:
		return "target"
	case ReasonDuration:
		return "duration"
	case ReasonTimeout:
		return "timeout"
	case ReasonDisconnect:
		return "disconnect"
	case ReasonAborted:
		return "aborted"
	default:
		return "none"
	}
}

// Report summarizes a finished session.
type Report struct {
	Plan          Plan
	Compat        bool
	Reason        Reason
	UploadBytes   int64
	DownloadBytes int64
	Upload        time.Duration
	Download      time.Duration
	Metrics       Metrics
}

// Observer is notified about session lifecycles. Implementations must be
// safe for concurrent use; every started session is finished exactly once.
type Observer interface {
	SessionStarted()
	SessionFinished(Report)
}

// Session is one throughput measurement on one connection.
//
// Lifecycle: init → receiving-upload → upload-done → streaming-download →
// finalizing → closed. Finalization is guarded by a compare-and-swap on the
// ended flag, so exactly one completion trigger writes the metrics chunk and
// the last chunk; later triggers are dropped.
//
// Apart from the atomics, a Session is owned by the goroutine that drives it:
// Receive and Download must be called from that goroutine, in order.
type Session struct {
	pool   *PayloadPool
	opts   Options
	log    *slog.Logger
	compat bool

	plan          Plan
	timer         *ThroughputTimer
	uploadBytes   int64
	downloadBytes int64

	tr Transport
	fw *FrameWriter

	state  atomic.Uint32
	ended  atomic.Bool
	reason Reason
	report Report
}

// NewSession returns a session whose upload phase started at accepted.
func NewSession(pool *PayloadPool, accepted time.Time, compat bool, opts ...Option) *Session {
	o := buildOptions(opts)
	s := &Session{
		pool:   pool,
		opts:   o,
		log:    o.Logger,
		compat: compat,
		timer:  NewThroughputTimer(accepted),
	}
	if o.Observer != nil {
		o.Observer.SessionStarted()
	}
	return s
}

func (s *Session) State() State         { return State(s.state.Load()) }
func (s *Session) Ended() bool          { return s.ended.Load() }
func (s *Session) Plan() Plan           { return s.plan }
func (s *Session) Compat() bool         { return s.compat }
func (s *Session) UploadBytes() int64   { return s.uploadBytes }
func (s *Session) DownloadBytes() int64 { return s.downloadBytes }

func (s *Session) advance(from, to State) bool {
	return s.state.CompareAndSwap(uint32(from), uint32(to))
}

// uploadCounter is the sink of the upload phase.
type uploadCounter struct{ s *Session }

func (c uploadCounter) Write(p []byte) (int, error) {
	c.s.uploadBytes += int64(len(p))
	return len(p), nil
}

// Receive consumes the request body, counting its bytes. A read failure
// aborts the session.
func (s *Session) Receive(body io.Reader) error {
	if !s.advance(StateInit, StateReceivingUpload) {
		return ErrClosed
	}
	if body != nil {
		if _, err := iox.CopyPolicy(uploadCounter{s}, body, &iox.ReturnPolicy{}); err != nil {
			s.Abort()
			return fmt.Errorf("chunkspeed: receive upload: %w", err)
		}
	}
	s.timer.MarkUploadEnd()
	if !s.advance(StateReceivingUpload, StateUploadDone) {
		return ErrClosed
	}
	return nil
}

// Download streams plan through tr and finalizes the session.
//
// A transport failure is a normal completion (ReasonDisconnect); the
// returned error is non-nil only when the session was not in a state to
// download.
func (s *Session) Download(ctx context.Context, tr Transport, plan Plan) (Report, error) {
	if tr == nil {
		return Report{}, ErrInvalidArgument
	}
	if !s.advance(StateUploadDone, StateStreamingDownload) {
		return s.report, ErrClosed
	}
	if s.opts.MaxSession > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.MaxSession)
		defer cancel()
	}
	s.plan = plan
	s.tr = tr
	s.fw = NewFrameWriter(tr, s.compat, WithFragmentLimit(s.opts.FragmentLimit))

	s.finalize(s.drain(ctx))
	return s.report, nil
}

// Abort ends the session without writing anything further. It is a no-op
// once the session has finished.
func (s *Session) Abort() {
	s.finalize(ReasonAborted)
}

// Report returns the final report. It is only meaningful once the session
// is closed.
func (s *Session) Report() Report { return s.report }

func (s *Session) metrics() Metrics {
	return s.timer.Metrics(s.uploadBytes, s.downloadBytes)
}

// finalize runs at most once per session; it reports whether this call won.
func (s *Session) finalize(reason Reason) bool {
	if !s.ended.CompareAndSwap(false, true) {
		return false
	}
	s.state.Store(uint32(StateFinalizing))
	s.reason = reason
	if s.fw != nil {
		s.timer.MarkDownloadEnd()
	}
	s.timer.Freeze()

	m := s.metrics()
	if s.fw != nil && reason != ReasonDisconnect && reason != ReasonAborted {
		if err := s.writeResults(m); err != nil {
			s.log.Debug("results not delivered", "err", err)
		}
	}

	s.report = Report{
		Plan:          s.plan,
		Compat:        s.compat,
		Reason:        reason,
		UploadBytes:   s.uploadBytes,
		DownloadBytes: s.downloadBytes,
		Upload:        s.timer.Upload(),
		Download:      s.timer.Download(),
		Metrics:       m,
	}
	s.state.Store(uint32(StateClosed))

	s.log.Debug("session finished",
		"mode", s.plan.Mode.String(),
		"target", s.plan.Bytes,
		"duration", s.plan.Duration,
		"compat", s.compat,
		"reason", reason.String(),
		"upload_bytes", s.uploadBytes,
		"download_bytes", s.downloadBytes,
	)
	if s.opts.Observer != nil {
		s.opts.Observer.SessionFinished(s.report)
	}
	return true
}

func (s *Session) writeResults(m Metrics) error {
	js, err := EncodeMetrics(m)
	if err != nil {
		return fmt.Errorf("chunkspeed: encode metrics: %w", err)
	}
	if _, err = s.fw.Finish(FinalFrame(js, s.compat)); err != nil && err != ErrWouldBlock {
		return err
	}
	return nil
}
