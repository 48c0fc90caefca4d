package client

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"echolite/internal/auth"
	"echolite/internal/metrics"
	"echolite/internal/server"
	"echolite/internal/wire"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, password string) string {
	t.Helper()
	sp := auth.NewSecurePassword([]byte(password))
	limiter := auth.NewLimiter(2)
	srv := server.New(sp, limiter, auth.Params{MCost: 64, TCost: 1, PCost: 1}, metrics.New(), newTestLogger())
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv.Addr()
}

func dial(t *testing.T, addr, password string) *Connection {
	t.Helper()
	raw, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := Connect(ctx, raw, password, ":memory:", wire.DefaultFlags())
	if err != nil {
		raw.Close()
		t.Fatalf("Connect: %v", err)
	}
	return conn
}

func TestConnectAndPing(t *testing.T) {
	addr := startServer(t, "s3cret")
	conn := dial(t, addr, "s3cret")
	defer conn.Close()

	if err := conn.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestConnectWrongPassword(t *testing.T) {
	addr := startServer(t, "right")
	raw, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer raw.Close()

	_, err = Connect(context.Background(), raw, "wrong", ":memory:", wire.DefaultFlags())
	if err == nil {
		t.Fatal("expected an error for the wrong password")
	}
	if _, ok := err.(ErrStatus); !ok {
		t.Errorf("got %T, want ErrStatus", err)
	}
}

func TestExecuteQueryTransactionAndDisconnect(t *testing.T) {
	addr := startServer(t, "")
	conn := dial(t, addr, "")

	if err := conn.Execute("create table t (id integer primary key, value text)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	if err := conn.Execute(`
		insert into t (value) values ('hello Dog');
		insert into t (value) values ('hello Cat');
		insert into t (value) values ('hello Monkey');
	`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	q, err := conn.Query("select id, value from t order by id")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(q.Columns) != 2 || q.RowsAffected != 3 {
		t.Errorf("got %+v", q)
	}

	if err := conn.Transaction([]string{"delete from t where id = 1", "delete from t where id = 2"}); err != nil {
		t.Fatalf("Transaction: %v", err)
	}

	if err := conn.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
}
