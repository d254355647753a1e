// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import (
	"crypto/tls"
	"net"
)

// Socket option helpers.
//
// Transport kind → socket options applied by NewConnTransport:
//   - TCP         → no-delay on (coalescing off, so write completion timing is real)
//   - TLS over TCP → no-delay on the underlying TCP connection
//   - Unix stream / in-memory pipes → nothing to apply

type netKind uint8

const (
	netOther netKind = iota
	netTCP
	netUnixStream
)

func kindOf(conn net.Conn) (netKind, net.Conn) {
	if tc, ok := conn.(*tls.Conn); ok {
		conn = tc.NetConn()
	}
	switch conn.(type) {
	case *net.TCPConn:
		return netTCP, conn
	case *net.UnixConn:
		return netUnixStream, conn
	default:
		return netOther, conn
	}
}

// setNoDelay disables Nagle-style coalescing where the transport has it.
func setNoDelay(conn net.Conn) error {
	kind, raw := kindOf(conn)
	if kind != netTCP {
		return nil
	}
	return raw.(*net.TCPConn).SetNoDelay(true)
}

// WithNoDelay controls whether NewConnTransport disables write coalescing.
// It is on by default.
func WithNoDelay(on bool) Option {
	return func(o *Options) { o.NoDelay = on }
}
