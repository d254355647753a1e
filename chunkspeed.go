// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package chunkspeed implements a bandwidth-measurement endpoint that streams
// its download payload inside HTTP/1.1 chunk-extensions and appends the
// measured throughput, as JSON, to the same response.
//
// Semantics and design:
//   - Request: /{unit}/{amount} where unit is byte(s), kilobyte(s),
//     megabyte(s) or seconds. The request body is the upload. Anything
//     malformed resolves to a zero-byte download, never to an error status.
//   - Framing: the response is written by hand onto the hijacked connection.
//     Payload bytes travel in the extension of a dummy 1-byte chunk, so
//     intermediaries that rewrite or buffer chunk data leave them alone.
//     Chromium clients get the extension cut into bounded tokens.
//   - Flow control: writes go through a Transport that never blocks and
//     reports backpressure with ErrWouldBlock (iox semantics: the bytes were
//     accepted, wait for readiness before writing more).
//   - Completion: reaching the byte target, the end of the streaming window,
//     the session deadline and a disconnect all race to finalize; a
//     compare-and-swap lets exactly one of them write the metrics chunk and
//     the last chunk.
//
// Wire format (default framing):
//
//	1;data=<payload> CRLF { CRLF <hex> CRLF <json minus "{"> CRLF 0 CRLF CRLF
package chunkspeed

import "code.hybscloud.com/iox"

// These are provided as package-level aliases so callers can reference the
// semantic control-flow errors without importing iox directly.
var (
	// ErrWouldBlock means “accepted, but no further progress without waiting”.
	//
	// It is an expected, non-failure control-flow signal. Any returned byte
	// count (n) still represents real progress.
	//
	// Caller action: stop writing and wait on Transport.NotifyReady.
	ErrWouldBlock = iox.ErrWouldBlock
)
