// Package client is an importable echolite client: connect, authenticate,
// open a database, and issue commands over the wire protocol defined in
// internal/wire and internal/handshake. Grounded on
// original_source/client/src/lib.rs's Connection type, translated from
// async Rust to Go's synchronous net.Conn plus context.Context for
// cancellation, the way this corpus wraps blocking I/O.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"echolite/internal/auth"
	"echolite/internal/handshake"
	"echolite/internal/wire"
)

// ErrUnsupportedVersion mirrors handshake.ErrUnsupportedVersion for
// callers who only import this package.
type ErrUnsupportedVersion struct {
	Got wire.Version
}

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("client: unsupported protocol version %+v", e.Got)
}

// ErrStatus wraps a non-Ok Status frame returned by the server.
type ErrStatus struct {
	Message string
}

func (e ErrStatus) Error() string { return fmt.Sprintf("client: %s", e.Message) }

// byteReaderConn adapts a net.Conn into the io.Reader+io.ByteReader pair
// the wire decoders require, the same small adapter the server side uses.
type byteReaderConn struct {
	net.Conn
}

func (c byteReaderConn) ReadByte() (byte, error) {
	var b [1]byte
	_, err := c.Conn.Read(b[:])
	return b[0], err
}

// Connection is one authenticated, database-bound command channel.
// Commands are strictly serial: a Connection must not be used from more
// than one goroutine at a time, matching the server's no-pipelining rule
// (spec.md §4.4).
type Connection struct {
	conn net.Conn
	br   byteReaderConn
	bw   *bufio.Writer
}

// Connect performs the eight-step handshake (spec.md §4.3) over conn and
// returns an authenticated Connection with path opened under flags.
func Connect(ctx context.Context, conn net.Conn, password string, path string, flags wire.Flags) (*Connection, error) {
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
		defer conn.SetDeadline(time.Time{})
	}

	br := byteReaderConn{conn}
	bw := bufio.NewWriter(conn)

	version, err := handshake.ReadVersion(conn)
	if err != nil {
		var uv handshake.ErrUnsupportedVersion
		if errors.As(err, &uv) {
			return nil, ErrUnsupportedVersion{Got: uv.Got}
		}
		return nil, fmt.Errorf("client: reading version: %w", err)
	}
	if version.Major != wire.ProtocolMajor {
		return nil, ErrUnsupportedVersion{Got: version}
	}

	clientSalt, err := handshake.RandomSalt()
	if err != nil {
		return nil, err
	}
	if err := handshake.WriteSalt(bw, clientSalt); err != nil {
		return nil, fmt.Errorf("client: writing client salt: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}

	serverSalt, err := handshake.ReadSalt(conn)
	if err != nil {
		return nil, fmt.Errorf("client: reading server salt: %w", err)
	}

	params, err := handshake.ReadHashParams(br)
	if err != nil {
		return nil, fmt.Errorf("client: reading hash params: %w", err)
	}

	hashed := auth.Hash([]byte(password), clientSalt, serverSalt, params)
	if err := handshake.WriteHashedPassword(bw, hashed); err != nil {
		return nil, fmt.Errorf("client: writing hashed password: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}

	if err := readOkStatus(br); err != nil {
		return nil, err
	}

	if err := handshake.WriteOpenRequest(bw, path, flags); err != nil {
		return nil, fmt.Errorf("client: writing open request: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}

	if err := readOkStatus(br); err != nil {
		return nil, err
	}

	return &Connection{conn: conn, br: br, bw: bw}, nil
}

func readOkStatus(r byteReaderConn) error {
	status, err := wire.ReadStatus(r)
	if err != nil {
		return fmt.Errorf("client: reading status: %w", err)
	}
	if !status.Ok {
		return ErrStatus{Message: status.Message}
	}
	return nil
}

func (c *Connection) send(cmd wire.Command) error {
	if err := wire.WriteCommand(c.bw, cmd); err != nil {
		return err
	}
	return c.bw.Flush()
}

// Ping round-trips a liveness check.
func (c *Connection) Ping() error {
	if err := c.send(wire.PingCommand()); err != nil {
		return err
	}
	return readOkStatus(c.br)
}

// Execute runs one or more ';'-separated statements with no result set.
func (c *Connection) Execute(sql string) error {
	if err := c.send(wire.SimpleExecuteCommand(sql)); err != nil {
		return err
	}
	return readOkStatus(c.br)
}

// Query runs a single SELECT and returns its result rows.
func (c *Connection) Query(sql string) (wire.Query, error) {
	if err := c.send(wire.SimpleQueryCommand(sql)); err != nil {
		return wire.Query{}, err
	}
	if err := readOkStatus(c.br); err != nil {
		return wire.Query{}, err
	}
	q, err := wire.ReadQuery(c.br)
	if err != nil {
		return wire.Query{}, fmt.Errorf("client: reading query result: %w", err)
	}
	return q, nil
}

// Transaction runs sqls atomically: all statements commit, or the first
// failure rolls back everything.
func (c *Connection) Transaction(sqls []string) error {
	if err := c.send(wire.TransactionCommand(sqls)); err != nil {
		return err
	}
	return readOkStatus(c.br)
}

// Disconnect tells the server to close the connection; no response is
// sent for this command, so Disconnect only closes the local socket.
func (c *Connection) Disconnect() error {
	if err := c.send(wire.DisconnectCommand()); err != nil {
		return err
	}
	return c.conn.Close()
}

// Close closes the underlying connection without sending Disconnect,
// for callers that abandon a Connection after an unrecoverable error.
func (c *Connection) Close() error {
	return c.conn.Close()
}
