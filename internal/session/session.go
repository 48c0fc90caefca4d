// Package session drives the post-handshake command loop: read one
// Command frame, dispatch it to a backend.Backend, write exactly one
// Status frame (plus a Query frame for a successful SimpleQuery), repeat
// until Disconnect or a fatal I/O error. Grounded on the teacher's
// per-connection-task model in internal/proxy/server.go, narrowed from a
// multi-protocol relay to this one command loop.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"echolite/internal/backend"
	"echolite/internal/metrics"
	"echolite/internal/wire"
)

// State is the session's position in the Ready/Executing/Responding/Closed
// state machine (spec.md §4.4). Transitions are strictly serial per
// connection — there is no pipelining or out-of-order responses.
type State int

const (
	StateReady State = iota
	StateExecuting
	StateResponding
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session owns one connection's backend handle and drives its command
// loop from a single goroutine. It is not safe for concurrent use.
type Session struct {
	conn    net.Conn
	rw      *bufio.ReadWriter
	backend backend.Backend
	metrics *metrics.Collector
	log     *slog.Logger
	state   State
}

// New wraps an already-open connection and backend after a successful
// handshake. The caller retains ownership of conn's lifecycle up to this
// point; Session.Run takes over the read/write loop from here.
func New(conn net.Conn, be backend.Backend, mc *metrics.Collector, log *slog.Logger) *Session {
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	return &Session{conn: conn, rw: rw, backend: be, metrics: mc, log: log, state: StateReady}
}

// Run executes the command loop until Disconnect, a fatal protocol/I/O
// error, or ctx cancellation. It always closes the backend on return so
// any transaction left open by an abrupt disconnect is rolled back
// (spec.md §5 "Cancellation").
func (s *Session) Run(ctx context.Context) {
	defer func() {
		s.state = StateClosed
		if err := s.backend.Close(); err != nil {
			s.log.Warn("backend close failed", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.state = StateReady
		cmd, err := wire.ReadCommand(s.rw)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warn("fatal protocol error reading command", "err", err)
			}
			return
		}

		s.state = StateExecuting
		if cmd.Kind == wire.CmdDisconnect {
			// No status is written for Disconnect (spec.md §4.4 step 5).
			return
		}

		start := time.Now()
		status, query, hasQuery := s.dispatch(ctx, cmd)
		s.metrics.CommandCompleted(cmd.Kind.String(), time.Since(start), !status.Ok)

		s.state = StateResponding
		if err := wire.WriteStatus(s.rw, status); err != nil {
			s.log.Warn("fatal protocol error writing status", "err", err)
			return
		}
		if hasQuery {
			if err := wire.WriteQuery(s.rw, query); err != nil {
				s.log.Warn("fatal protocol error writing query", "err", err)
				return
			}
		}
		if err := s.rw.Flush(); err != nil {
			s.log.Warn("fatal protocol error flushing response", "err", err)
			return
		}
	}
}

// dispatch runs one command against the backend and returns the status
// frame to send, plus a Query frame when the command was a successful
// SimpleQuery (spec.md §4.4's per-command behavior table).
func (s *Session) dispatch(ctx context.Context, cmd wire.Command) (wire.Status, wire.Query, bool) {
	switch cmd.Kind {
	case wire.CmdPing:
		return wire.StatusOK, wire.Query{}, false

	case wire.CmdSimpleExecute:
		if err := s.backend.ExecuteBatch(ctx, cmd.SQL); err != nil {
			return wire.ErrStatus(err.Error()), wire.Query{}, false
		}
		return wire.StatusOK, wire.Query{}, false

	case wire.CmdSimpleQuery:
		q, err := s.backend.Query(ctx, cmd.SQL)
		if err != nil {
			return wire.ErrStatus(err.Error()), wire.Query{}, false
		}
		return wire.StatusOK, q, true

	case wire.CmdTransaction:
		if len(cmd.SQLs) == 0 {
			return wire.StatusOK, wire.Query{}, false
		}
		if err := s.backend.Transaction(ctx, cmd.SQLs); err != nil {
			return wire.ErrStatus(err.Error()), wire.Query{}, false
		}
		return wire.StatusOK, wire.Query{}, false

	default:
		// ReadCommand never returns an unrecognized Kind — any such tag is
		// already a fatal ErrUnknownCommand at the wire layer — but guard
		// against a future Command variant landing here unhandled.
		return wire.ErrStatus(fmt.Sprintf("unhandled command kind %v", cmd.Kind)), wire.Query{}, false
	}
}

// State reports the session's current position in the state machine,
// primarily for tests and diagnostics.
func (s *Session) State() State {
	return s.state
}
