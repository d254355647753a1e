// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkspeed

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type acceptedKey struct{}

// Server serves /{unit}/{amount} measurement requests.
//
// Each request becomes one Session: the request body is counted as the
// upload, then the connection is hijacked and the download, metrics and last
// chunk are written by hand. The connection is closed afterwards.
type Server struct {
	pool *PayloadPool
	opts []Option
	log  *slog.Logger
}

// NewServer returns a Server drawing payload from pool. The options apply to
// every session and transport it creates.
func NewServer(pool *PayloadPool, opts ...Option) *Server {
	o := buildOptions(opts)
	return &Server{pool: pool, opts: opts, log: o.Logger}
}

// ConnContext records when a connection was accepted; install it as
// http.Server.ConnContext so the upload phase is timed from accept.
func (srv *Server) ConnContext(ctx context.Context, _ net.Conn) context.Context {
	return context.WithValue(ctx, acceptedKey{}, time.Now())
}

// AcceptedAt returns the accept time stored by ConnContext, or the zero time.
func AcceptedAt(ctx context.Context) time.Time {
	t, _ := ctx.Value(acceptedKey{}).(time.Time)
	return t
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := NewSession(srv.pool, AcceptedAt(r.Context()), IsCompatClient(r.UserAgent()), srv.opts...)
	defer s.Abort()

	if err := s.Receive(r.Body); err != nil {
		srv.log.Debug("upload failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	unit, amount, _ := ResolvePath(r.URL.Path)
	plan := Resolve(unit, amount, s.UploadBytes())

	conn, err := hijack(w, r)
	if err != nil {
		srv.log.Warn("cannot frame response", "remote", r.RemoteAddr, "proto", r.Proto, "err", err)
		http.Error(w, http.StatusText(http.StatusHTTPVersionNotSupported), http.StatusHTTPVersionNotSupported)
		return
	}
	tr := NewConnTransport(conn, srv.opts...)
	defer func() {
		if err := tr.Close(); err != nil {
			srv.log.Debug("close transport", "remote", r.RemoteAddr, "err", err)
		}
	}()

	if _, err := s.Download(r.Context(), tr, plan); err != nil {
		srv.log.Debug("download", "remote", r.RemoteAddr, "err", err)
	}
}

func hijack(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	if r.ProtoMajor != 1 {
		return nil, fmt.Errorf("%w: %s", ErrHijack, r.Proto)
	}
	conn, _, err := http.NewResponseController(w).Hijack()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHijack, err)
	}
	// Deadlines left by the http.Server no longer apply; the transport sets
	// its own per flush.
	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}
