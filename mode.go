// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Mode selects how a session decides it has sent enough.
type Mode uint8

const (
	// ModeFixedBytes streams until a byte target is reached.
	ModeFixedBytes Mode = iota
	// ModeDuration streams fixed-size writes until a wall-clock duration elapses.
	ModeDuration
)

func (m Mode) String() string {
	switch m {
	case ModeFixedBytes:
		return "bytes"
	case ModeDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// DurationWriteSize is the per-write payload length in duration mode.
const DurationWriteSize = 64 * 1024

// Plan is a resolved download request.
type Plan struct {
	Mode Mode

	// Bytes is the download target in ModeFixedBytes.
	Bytes int64

	// Duration is the streaming window in ModeDuration.
	Duration time.Duration

	// WriteSize is the fixed per-write length in ModeDuration.
	WriteSize int64
}

// ResolvePath splits an URL path into its unit and amount tokens. Empty
// segments are skipped. ok is false when fewer than two tokens are present.
func ResolvePath(path string) (unit, amount string, ok bool) {
	tokens := make([]string, 0, 2)
	for _, s := range strings.Split(path, "/") {
		if s == "" {
			continue
		}
		tokens = append(tokens, s)
		if len(tokens) == 2 {
			return tokens[0], tokens[1], true
		}
	}
	return "", "", false
}

// Resolve maps a unit/amount pair to a Plan.
//
// Unknown units, unparsable amounts and non-finite or negative targets all
// resolve to a zero-byte download. In duration mode any upload forces the
// download target to zero.
func Resolve(unit, amount string, uploadBytes int64) Plan {
	n := parseAmount(amount)

	if unit == "seconds" {
		if uploadBytes > 0 {
			return Plan{Mode: ModeFixedBytes}
		}
		secs := n
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
			secs = 0
		}
		d := time.Duration(math.MaxInt64)
		if secs < float64(math.MaxInt64)/float64(time.Second) {
			d = time.Duration(secs * float64(time.Second))
		}
		return Plan{Mode: ModeDuration, Duration: d, WriteSize: DurationWriteSize}
	}

	var multiplier float64
	switch unit {
	case "byte", "bytes":
		multiplier = 1
	case "kilobyte", "kilobytes":
		multiplier = 1024
	case "megabyte", "megabytes":
		multiplier = 1024 * 1024
	}
	return Plan{Mode: ModeFixedBytes, Bytes: byteTarget(n * multiplier)}
}

func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func byteTarget(v float64) int64 {
	switch {
	case math.IsNaN(v), math.IsInf(v, 0), v <= 0:
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	default:
		return int64(v)
	}
}

// IsCompatClient reports whether a User-Agent belongs to the Chromium engine,
// whose chunk-extension buffering needs fragmented framing.
func IsCompatClient(userAgent string) bool {
	return strings.Contains(userAgent, "Chrome/")
}
