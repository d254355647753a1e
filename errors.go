// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import "errors"

var (
	// ErrInvalidArgument reports an invalid configuration or nil writer/transport.
	ErrInvalidArgument = errors.New("chunkspeed: invalid argument")

	// ErrClosed reports a write on a transport that has been closed.
	ErrClosed = errors.New("chunkspeed: transport closed")

	// ErrHijack reports that the HTTP connection could not be taken over for
	// hand-framed output (HTTP/2, or a ResponseWriter without Hijack support).
	ErrHijack = errors.New("chunkspeed: connection cannot be hijacked")
)
