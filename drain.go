// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import (
	"context"
	"runtime"
	"time"
)

// drain writes the download payload until a completion trigger fires and
// returns that trigger.
//
// Scheduling:
//   - After a write the transport took without backpressure, the loop yields
//     to the scheduler (or sleeps YieldDelay) and continues. It never recurses.
//   - After (n, ErrWouldBlock) it suspends until the transport is ready, the
//     streaming window expires, or ctx ends. The readiness registration is
//     stopped on every path that does not consume it.
//   - downloadBytes grows only after a write returns, by the bytes accepted.
func (s *Session) drain(ctx context.Context) Reason {
	_, err := s.fw.Open()
	s.timer.MarkDownloadStart()

	var expiry <-chan time.Time
	if s.plan.Mode == ModeDuration {
		t := time.NewTimer(s.plan.Duration)
		defer t.Stop()
		expiry = t.C
	}

	for {
		switch {
		case err == nil:
			if !s.yield(ctx) {
				return ReasonTimeout
			}
		case err == ErrWouldBlock:
			if reason, ok := s.awaitReady(ctx, expiry); !ok {
				return reason
			}
		default:
			return ReasonDisconnect
		}

		if s.ended.Load() {
			return ReasonAborted
		}
		if reason, done := s.reached(); done {
			return reason
		}

		var n int
		n, err = s.fw.WritePayload(s.nextPayload())
		s.downloadBytes += int64(n)
	}
}

// reached reports whether the plan's target has been met.
func (s *Session) reached() (Reason, bool) {
	if s.plan.Mode == ModeDuration {
		if s.timer.now().Sub(s.timer.DownloadStart()) >= s.plan.Duration {
			return ReasonDuration, true
		}
		return ReasonNone, false
	}
	if s.downloadBytes >= s.plan.Bytes {
		return ReasonTarget, true
	}
	return ReasonNone, false
}

func (s *Session) nextPayload() []byte {
	if s.plan.Mode == ModeDuration {
		return s.pool.Slice(s.plan.WriteSize)
	}
	return s.pool.Slice(s.plan.Bytes - s.downloadBytes)
}

// awaitReady blocks until the transport drains. ok is false when another
// trigger fired first; reason names it.
func (s *Session) awaitReady(ctx context.Context, expiry <-chan time.Time) (reason Reason, ok bool) {
	ready, stop := s.tr.NotifyReady()
	select {
	case <-ready:
		return ReasonNone, true
	case <-expiry:
		stop()
		return ReasonDuration, false
	case <-ctx.Done():
		stop()
		return ReasonTimeout, false
	}
}

// yield gives other goroutines a turn between unbuffered writes.
func (s *Session) yield(ctx context.Context) bool {
	if d := s.opts.YieldDelay; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return true
		case <-ctx.Done():
			return false
		}
	}
	runtime.Gosched()
	return ctx.Err() == nil
}
