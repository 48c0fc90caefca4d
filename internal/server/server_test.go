package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"echolite/internal/auth"
	"echolite/internal/handshake"
	"echolite/internal/metrics"
	"echolite/internal/wire"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clientByteReader struct {
	net.Conn
}

func (c clientByteReader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(c.Conn, b[:])
	return b[0], err
}

func startTestServer(t *testing.T, password string) string {
	t.Helper()
	params := auth.Params{MCost: 64, TCost: 1, PCost: 1}
	sp := auth.NewSecurePassword([]byte(password))
	limiter := auth.NewLimiter(2)
	srv := New(sp, limiter, params, metrics.New(), newTestLogger())

	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv.listener.Addr().String()
}

func clientHandshake(t *testing.T, addr, password string) (net.Conn, wire.Status) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if _, err := handshake.ReadVersion(conn); err != nil {
		t.Fatalf("ReadVersion: %v", err)
	}

	clientSalt, _ := handshake.RandomSalt()
	if err := handshake.WriteSalt(conn, clientSalt); err != nil {
		t.Fatalf("WriteSalt: %v", err)
	}

	serverSalt, err := handshake.ReadSalt(conn)
	if err != nil {
		t.Fatalf("ReadSalt: %v", err)
	}

	params, err := handshake.ReadHashParams(clientByteReader{conn})
	if err != nil {
		t.Fatalf("ReadHashParams: %v", err)
	}

	hashed := auth.Hash([]byte(password), clientSalt, serverSalt, params)
	if err := handshake.WriteHashedPassword(conn, hashed); err != nil {
		t.Fatalf("WriteHashedPassword: %v", err)
	}

	authStatus, err := wire.ReadStatus(clientByteReader{conn})
	if err != nil {
		t.Fatalf("ReadStatus(auth): %v", err)
	}
	if !authStatus.Ok {
		return conn, authStatus
	}

	if err := handshake.WriteOpenRequest(conn, ":memory:", wire.FlagMemory|wire.DefaultFlags()); err != nil {
		t.Fatalf("WriteOpenRequest: %v", err)
	}

	openStatus, err := wire.ReadStatus(clientByteReader{conn})
	if err != nil {
		t.Fatalf("ReadStatus(open): %v", err)
	}
	return conn, openStatus
}

func TestFullHandshakeAndPing(t *testing.T) {
	addr := startTestServer(t, "hunter2")
	conn, status := clientHandshake(t, addr, "hunter2")
	defer conn.Close()

	if !status.Ok {
		t.Fatalf("handshake failed: %+v", status)
	}

	if err := wire.WriteCommand(conn, wire.PingCommand()); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}
	pingStatus, err := wire.ReadStatus(clientByteReader{conn})
	if err != nil {
		t.Fatalf("ReadStatus(ping): %v", err)
	}
	if !pingStatus.Ok {
		t.Errorf("expected Ping to return Ok, got %+v", pingStatus)
	}
}

func TestWrongPasswordFailsHandshake(t *testing.T) {
	addr := startTestServer(t, "correct-password")
	conn, status := clientHandshake(t, addr, "wrong-password")
	defer conn.Close()

	if status.Ok {
		t.Fatal("expected auth failure with the wrong password")
	}
	if status.Message != "Password verification failed" {
		t.Errorf("got message %q", status.Message)
	}
}

func TestEndToEndExecuteAndQuery(t *testing.T) {
	addr := startTestServer(t, "")
	conn, status := clientHandshake(t, addr, "")
	defer conn.Close()
	if !status.Ok {
		t.Fatalf("handshake failed: %+v", status)
	}

	wire.WriteCommand(conn, wire.SimpleExecuteCommand("create table t (id integer, value text)"))
	st, err := wire.ReadStatus(clientByteReader{conn})
	if err != nil || !st.Ok {
		t.Fatalf("create table: status=%+v err=%v", st, err)
	}

	wire.WriteCommand(conn, wire.SimpleExecuteCommand(
		"insert into t values (1, 'hello Dog'); insert into t values (2, 'hello Cat'); insert into t values (3, 'hello Monkey')"))
	st, err = wire.ReadStatus(clientByteReader{conn})
	if err != nil || !st.Ok {
		t.Fatalf("insert: status=%+v err=%v", st, err)
	}

	wire.WriteCommand(conn, wire.SimpleQueryCommand("select id, value from t order by id"))
	st, err = wire.ReadStatus(clientByteReader{conn})
	if err != nil || !st.Ok {
		t.Fatalf("query: status=%+v err=%v", st, err)
	}
	q, err := wire.ReadQuery(clientByteReader{conn})
	if err != nil {
		t.Fatalf("ReadQuery: %v", err)
	}
	if len(q.Values) != 6 || q.RowsAffected != 3 {
		t.Errorf("got %+v", q)
	}

	wire.WriteCommand(conn, wire.TransactionCommand([]string{
		"insert into t values (4, 'x')",
		"insert into t values (1, 'duplicate-ish but no pk, so this actually succeeds')",
	}))
	st, err = wire.ReadStatus(clientByteReader{conn})
	if err != nil || !st.Ok {
		t.Fatalf("transaction: status=%+v err=%v", st, err)
	}

	wire.WriteCommand(conn, wire.DisconnectCommand())
}

var _ = context.Background
