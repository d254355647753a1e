// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Metrics is the result mapping sent at the end of a download. A nil phase
// contributes no keys.
type Metrics struct {
	Upload   *PhaseMetrics
	Download *PhaseMetrics
}

// MarshalJSON writes upload keys, then download keys, in a fixed order.
// Non-finite numbers are written as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	first := true
	if m.Upload != nil {
		m.Upload.appendFields(&b, "upload", &first)
	}
	if m.Download != nil {
		m.Download.appendFields(&b, "download", &first)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (p *PhaseMetrics) appendFields(b *bytes.Buffer, prefix string, first *bool) {
	fields := [...]struct {
		name string
		v    float64
	}{
		{"Milliseconds", p.Milliseconds},
		{"Seconds", p.Seconds},
		{"Bytes", p.Bytes},
		{"Kilobytes", p.Kilobytes},
		{"Megabytes", p.Megabytes},
		{"BytesPerSecond", p.BytesPerSecond},
		{"BitsPerSecond", p.BitsPerSecond},
		{"KilobytesPerSecond", p.KilobytesPerSecond},
		{"KilobitsPerSecond", p.KilobitsPerSecond},
		{"MegabytesPerSecond", p.MegabytesPerSecond},
		{"MegabitsPerSecond", p.MegabitsPerSecond},
	}
	for _, f := range fields {
		if !*first {
			b.WriteByte(',')
		}
		*first = false
		b.WriteByte('"')
		b.WriteString(prefix)
		b.WriteString(f.name)
		b.WriteString(`":`)
		appendNumber(b, f.v)
	}
}

func appendNumber(b *bytes.Buffer, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		b.WriteString("null")
		return
	}
	// json.Marshal of a float64 never fails for finite values and uses the
	// same shortest round-trip formatting as JavaScript clients expect.
	enc, _ := json.Marshal(v)
	b.Write(enc)
}

// EncodeMetrics serializes m as indented JSON (two spaces).
func EncodeMetrics(m Metrics) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

var (
	bytesCloseDefault = []byte("\r\n{\r\n")
	bytesCloseCompat  = []byte("\r\n \r\n")
	bytesLastChunk    = []byte("0\r\n\r\n")
	bytesCRLF         = []byte("\r\n")
)

// FinalFrame builds everything written after the payload, as one buffer:
// the end of the open dummy chunk, the metrics chunk, and the last chunk.
//
// In default framing the dummy chunk's single data byte is the opening brace,
// so the metrics chunk carries the JSON text without its own leading "{". In
// compat framing the dummy chunk carries a space and the metrics chunk
// carries the whole JSON text between line breaks.
func FinalFrame(js []byte, compat bool) []byte {
	closing := bytesCloseDefault
	body := js
	if compat {
		closing = bytesCloseCompat
	} else if len(body) > 0 && body[0] == '{' {
		body = body[1:]
	}
	size := len(body)
	if compat {
		size += 2 * len(bytesCRLF)
	}

	out := make([]byte, 0, len(closing)+20+size+len(bytesLastChunk))
	out = append(out, closing...)
	out = strconv.AppendInt(out, int64(size), 16)
	out = append(out, bytesCRLF...)
	if compat {
		out = append(out, bytesCRLF...)
	}
	out = append(out, body...)
	if compat {
		out = append(out, bytesCRLF...)
	}
	out = append(out, bytesCRLF...)
	out = append(out, bytesLastChunk...)
	return out
}
