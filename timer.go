// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import "time"

// ThroughputTimer records the four phase boundaries of a session.
//
// Timestamps come from time.Now and carry Go's monotonic clock reading, so
// elapsed times are immune to wall-clock steps and have nanosecond
// resolution. After Freeze every Mark call is a no-op.
type ThroughputTimer struct {
	uploadStart   time.Time
	uploadEnd     time.Time
	downloadStart time.Time
	downloadEnd   time.Time
	frozen        bool

	now func() time.Time
}

// NewThroughputTimer returns a timer whose upload phase started at accepted.
// A zero accepted time means now.
func NewThroughputTimer(accepted time.Time) *ThroughputTimer {
	t := &ThroughputTimer{now: time.Now}
	if accepted.IsZero() {
		accepted = t.now()
	}
	t.uploadStart = accepted
	return t
}

func (t *ThroughputTimer) mark(dst *time.Time) time.Time {
	if t.frozen {
		return *dst
	}
	*dst = t.now()
	return *dst
}

// MarkUploadEnd records that the request body has been fully received.
func (t *ThroughputTimer) MarkUploadEnd() time.Time { return t.mark(&t.uploadEnd) }

// MarkDownloadStart records that the first response bytes were queued.
func (t *ThroughputTimer) MarkDownloadStart() time.Time { return t.mark(&t.downloadStart) }

// MarkDownloadEnd records that the download phase is over.
func (t *ThroughputTimer) MarkDownloadEnd() time.Time { return t.mark(&t.downloadEnd) }

// Freeze stops all further sampling.
func (t *ThroughputTimer) Freeze() { t.frozen = true }

// DownloadStart returns the recorded download start.
func (t *ThroughputTimer) DownloadStart() time.Time { return t.downloadStart }

// Upload returns the elapsed upload time.
func (t *ThroughputTimer) Upload() time.Duration { return span(t.uploadStart, t.uploadEnd) }

// Download returns the elapsed download time.
func (t *ThroughputTimer) Download() time.Duration { return span(t.downloadStart, t.downloadEnd) }

func span(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from)
}

// Metrics computes the result mapping from final counters.
func (t *ThroughputTimer) Metrics(uploadBytes, downloadBytes int64) Metrics {
	return Metrics{
		Upload:   NewPhaseMetrics(uploadBytes, t.Upload()),
		Download: NewPhaseMetrics(downloadBytes, t.Download()),
	}
}

// PhaseMetrics are the throughput figures of one direction.
type PhaseMetrics struct {
	Milliseconds       float64
	Seconds            float64
	Bytes              float64
	Kilobytes          float64
	Megabytes          float64
	BytesPerSecond     float64
	BitsPerSecond      float64
	KilobytesPerSecond float64
	KilobitsPerSecond  float64
	MegabytesPerSecond float64
	MegabitsPerSecond  float64
}

// NewPhaseMetrics derives the figures for bytes moved in elapsed. It returns
// nil when nothing was transferred.
//
// Rates are derived from bytes per second: bits = bytes × 8, kilo = /1024,
// mega = /1024². A zero elapsed time makes the rates non-finite.
func NewPhaseMetrics(bytes int64, elapsed time.Duration) *PhaseMetrics {
	if bytes <= 0 {
		return nil
	}
	ms := float64(elapsed) / float64(time.Millisecond)
	b := float64(bytes)
	bps := b / (ms / 1000)
	return &PhaseMetrics{
		Milliseconds:       ms,
		Seconds:            ms / 1000,
		Bytes:              b,
		Kilobytes:          b / 1024,
		Megabytes:          b / 1024 / 1024,
		BytesPerSecond:     bps,
		BitsPerSecond:      bps * 8,
		KilobytesPerSecond: bps / 1024,
		KilobitsPerSecond:  bps / 1024 * 8,
		MegabytesPerSecond: bps / 1024 / 1024,
		MegabitsPerSecond:  bps / 1024 / 1024 * 8,
	}
}
