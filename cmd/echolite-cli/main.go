// Command echolite-cli is a small end-to-end demonstration of the client
// library, mirroring original_source/client/examples/client.rs: connect,
// ping, create a table, insert a few rows, query them back, delete them,
// then disconnect.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"echolite/internal/client"
	"echolite/internal/wire"
)

var (
	addr     string
	password string
	dbPath   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "echolite-cli",
	Short: "connect to an echolite server and run a scripted demo session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return demo()
	},
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:4567", "server address")
	rootCmd.Flags().StringVar(&password, "password", "", "server password")
	rootCmd.Flags().StringVar(&dbPath, "db", ":memory:", "database path to open")
}

func demo() error {
	raw, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := client.Connect(ctx, raw, password, dbPath, wire.DefaultFlags())
	if err != nil {
		raw.Close()
		return fmt.Errorf("connecting: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Println("ping ok")

	if err := conn.Execute("create table test (id integer primary key, value text)"); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	if err := conn.Execute(`
		insert into test (value) values ('hello Dog');
		insert into test (value) values ('hello Cat');
		insert into test (value) values ('hello Monkey');
	`); err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	q, err := conn.Query("select * from test")
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	fmt.Printf("query result: %+v\n", q)

	if err := conn.Execute("delete from test"); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	return conn.Disconnect()
}
