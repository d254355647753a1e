// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import "math/rand/v2"

// PoolSize is the size of a PayloadPool in bytes (1 MiB).
const PoolSize = 1 << 20

// payloadAlphabet holds HTTP token characters only, so pool bytes are legal
// inside a chunk-extension value.
const payloadAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// PayloadPool is an immutable source of pseudo-random payload bytes.
//
// A pool is built once and shared by reference between all sessions. Its
// buffer is never written after NewPayloadPool returns, so concurrent
// readers need no synchronization.
type PayloadPool struct {
	buf []byte
}

// NewPayloadPool generates a PoolSize pool.
func NewPayloadPool() *PayloadPool {
	buf := make([]byte, PoolSize)
	for i := range buf {
		buf[i] = payloadAlphabet[rand.IntN(len(payloadAlphabet))]
	}
	return &PayloadPool{buf: buf}
}

// Len returns the pool size in bytes.
func (p *PayloadPool) Len() int { return len(p.buf) }

// Slice returns the first min(length, Len()) pool bytes. A non-positive
// length yields an empty slice. Callers assembling larger outputs call
// Slice repeatedly, one pool-sized batch at a time.
//
// The returned slice aliases the pool and must not be modified.
func (p *PayloadPool) Slice(length int64) []byte {
	if length <= 0 {
		return p.buf[:0:0]
	}
	if length > int64(len(p.buf)) {
		length = int64(len(p.buf))
	}
	return p.buf[:length:length]
}
