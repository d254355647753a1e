// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import (
	"log/slog"
	"time"
)

// DefaultFragmentLimit is the longest chunk-extension token written in
// compat framing.
const DefaultFragmentLimit = 16000

// Options configures transports, sessions and the server.
type Options struct {
	// HighWaterMark is the transport backlog (bytes) above which Write reports
	// ErrWouldBlock.
	HighWaterMark int

	// WriteTimeout bounds a single socket flush. Zero means no deadline.
	WriteTimeout time.Duration

	// NoDelay disables write coalescing on TCP transports.
	NoDelay bool

	// FragmentLimit caps an extension token in compat framing.
	FragmentLimit int

	// YieldDelay controls what the drain loop does after a write the transport
	// accepted without backpressure:
	//   - zero: yield (runtime.Gosched) and continue
	//   - positive: sleep for the duration and continue
	YieldDelay time.Duration

	// MaxSession bounds the download phase of a session. Zero means no bound.
	MaxSession time.Duration

	Logger   *slog.Logger
	Observer Observer
}

var defaultOptions = Options{
	HighWaterMark: 64 * 1024,
	WriteTimeout:  30 * time.Second,
	NoDelay:       true,
	FragmentLimit: DefaultFragmentLimit,
	YieldDelay:    0, // default: yield
}

type Option func(*Options)

func WithHighWaterMark(n int) Option {
	return func(o *Options) { o.HighWaterMark = n }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *Options) { o.WriteTimeout = d }
}

func WithFragmentLimit(n int) Option {
	return func(o *Options) { o.FragmentLimit = n }
}

// WithYieldDelay sets the pause between unbuffered writes. Zero yields.
func WithYieldDelay(d time.Duration) Option {
	return func(o *Options) { o.YieldDelay = d }
}

func WithMaxSession(d time.Duration) Option {
	return func(o *Options) { o.MaxSession = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithObserver registers an Observer notified when each session finishes.
func WithObserver(obs Observer) Option {
	return func(o *Options) { o.Observer = obs }
}

func buildOptions(opts []Option) Options {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.HighWaterMark < 0 {
		o.HighWaterMark = 0
	}
	if o.FragmentLimit <= 0 {
		o.FragmentLimit = DefaultFragmentLimit
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
