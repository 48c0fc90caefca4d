// Package server runs echolite's TCP accept loop: one task per accepted
// connection, driving the handshake and then the session command loop.
// Grounded on the teacher's internal/proxy.Server (acceptLoop,
// handleConnection, context-cancellation-based Stop), narrowed from
// "one listener per DB engine" to one listener for this one protocol.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"echolite/internal/auth"
	"echolite/internal/backend"
	"echolite/internal/backend/sqlitebackend"
	"echolite/internal/handshake"
	"echolite/internal/metrics"
	"echolite/internal/session"
	"echolite/internal/wire"
)

// Server accepts connections on one TCP listener and drives each through
// the handshake and command loop.
type Server struct {
	listener net.Listener
	password *auth.SecurePassword
	limiter  *auth.Limiter
	params   auth.Params
	metrics  *metrics.Collector
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Server. password is the one long-lived handle, shared
// read-only by every connection's handshake without being cloned; the
// Server releases it on Stop.
func New(password *auth.SecurePassword, limiter *auth.Limiter, params auth.Params, mc *metrics.Collector, log *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{password: password, limiter: limiter, params: params, metrics: mc, log: log, ctx: ctx, cancel: cancel}
}

// Listen binds addr and starts accepting connections in the background.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", addr, err)
	}
	s.listener = ln
	s.log.Info("protocol listener started", "addr", addr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return nil
}

// Addr returns the listener's bound address, useful when Listen was
// called with a ":0" port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// acceptLoop retries transient Accept errors after a 3-second backoff,
// the way long-running TCP servers in this corpus guard against
// file-descriptor exhaustion spinning the loop hot; it returns
// immediately once the listener is closed by Stop.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				s.log.Warn("transient accept error, retrying", "err", err)
				time.Sleep(3 * time.Second)
				continue
			}
			s.log.Error("fatal accept error", "err", err)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	start := time.Now()
	be, err := s.runHandshake(conn)
	s.metrics.HandshakeCompleted(time.Since(start))
	if err != nil {
		s.log.Warn("handshake failed", "remote", conn.RemoteAddr(), "err", err)
		return
	}

	sess := session.New(conn, be, s.metrics, s.log)
	sess.Run(s.ctx)
}

// runHandshake drives the eight-step exchange (spec.md §4.3) and, on
// success, opens the backend the session will own.
func (s *Server) runHandshake(conn net.Conn) (backend.Backend, error) {
	if err := handshake.WriteVersion(conn); err != nil {
		return nil, fmt.Errorf("writing version: %w", err)
	}

	clientSalt, err := handshake.ReadSalt(conn)
	if err != nil {
		return nil, fmt.Errorf("reading client salt: %w", err)
	}

	serverSalt, err := handshake.RandomSalt()
	if err != nil {
		return nil, err
	}
	if err := handshake.WriteSalt(conn, serverSalt); err != nil {
		return nil, fmt.Errorf("writing server salt: %w", err)
	}

	if err := handshake.WriteHashParams(conn, s.params); err != nil {
		return nil, fmt.Errorf("writing hash params: %w", err)
	}

	claimed, err := handshake.ReadHashedPassword(conn)
	if err != nil {
		return nil, fmt.Errorf("reading hashed password: %w", err)
	}

	hashStart := time.Now()
	ok, err := s.password.Verify(s.ctx, s.limiter, clientSalt, serverSalt, s.params, claimed)
	s.metrics.HashCompleted(time.Since(hashStart))
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.metrics.AuthFailed()
		wire.WriteStatus(conn, wire.ErrStatus("Password verification failed"))
		return nil, fmt.Errorf("password verification failed")
	}
	if err := wire.WriteStatus(conn, wire.StatusOK); err != nil {
		return nil, fmt.Errorf("writing auth status: %w", err)
	}

	path, flags, err := handshake.ReadOpenRequest(byteReaderConn{conn})
	if err != nil {
		return nil, fmt.Errorf("reading open request: %w", err)
	}

	be, err := sqlitebackend.Open(s.ctx, path, flags)
	if err != nil {
		wire.WriteStatus(conn, wire.ErrStatus(err.Error()))
		return nil, fmt.Errorf("opening backend: %w", err)
	}
	if err := wire.WriteStatus(conn, wire.StatusOK); err != nil {
		be.Close()
		return nil, fmt.Errorf("writing open status: %w", err)
	}

	return be, nil
}

// Stop closes the listener and waits for in-flight connections to finish.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	s.password.Release()
	s.log.Info("protocol listener stopped")
}

// byteReaderConn adapts a net.Conn to the io.Reader+io.ByteReader pair
// the wire/handshake decoders need.
type byteReaderConn struct {
	net.Conn
}

func (c byteReaderConn) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(c.Conn, b[:])
	return b[0], err
}
