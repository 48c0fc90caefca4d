package wire

import (
	"fmt"
	"io"
)

// CommandKind tags a Command's variant.
type CommandKind uint8

const (
	CmdPing CommandKind = iota
	CmdDisconnect
	CmdSimpleExecute
	CmdSimpleQuery
	CmdTransaction
)

// String names a command kind for metrics labels and log fields.
func (k CommandKind) String() string {
	switch k {
	case CmdPing:
		return "ping"
	case CmdDisconnect:
		return "disconnect"
	case CmdSimpleExecute:
		return "execute"
	case CmdSimpleQuery:
		return "query"
	case CmdTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// Command is the tagged union of client requests.
type Command struct {
	Kind CommandKind
	SQL  string   // SimpleExecute, SimpleQuery
	SQLs []string // Transaction
}

// PingCommand returns the Ping variant.
func PingCommand() Command { return Command{Kind: CmdPing} }

// DisconnectCommand returns the Disconnect variant.
func DisconnectCommand() Command { return Command{Kind: CmdDisconnect} }

// SimpleExecuteCommand returns the SimpleExecute variant.
func SimpleExecuteCommand(sql string) Command {
	return Command{Kind: CmdSimpleExecute, SQL: sql}
}

// SimpleQueryCommand returns the SimpleQuery variant.
func SimpleQueryCommand(sql string) Command {
	return Command{Kind: CmdSimpleQuery, SQL: sql}
}

// TransactionCommand returns the Transaction variant.
func TransactionCommand(sqls []string) Command {
	return Command{Kind: CmdTransaction, SQLs: sqls}
}

// ErrUnknownCommand is returned when a command tag byte is outside 0..4.
type ErrUnknownCommand struct{ Tag byte }

func (e ErrUnknownCommand) Error() string {
	return fmt.Sprintf("wire: unknown command tag %d", e.Tag)
}

// WriteCommand writes a Command frame.
func WriteCommand(w io.Writer, c Command) error {
	switch c.Kind {
	case CmdPing:
		_, err := w.Write([]byte{0})
		return err
	case CmdDisconnect:
		_, err := w.Write([]byte{1})
		return err
	case CmdSimpleExecute:
		if _, err := w.Write([]byte{2}); err != nil {
			return err
		}
		return WriteString(w, c.SQL)
	case CmdSimpleQuery:
		if _, err := w.Write([]byte{3}); err != nil {
			return err
		}
		return WriteString(w, c.SQL)
	case CmdTransaction:
		if _, err := w.Write([]byte{4}); err != nil {
			return err
		}
		if err := WriteVarint(w, uint64(len(c.SQLs))); err != nil {
			return err
		}
		for _, sql := range c.SQLs {
			if err := WriteString(w, sql); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("wire: write unknown command kind %d", c.Kind)
	}
}

// ReadCommand reads a Command frame.
func ReadCommand(r reader) (Command, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return Command{}, err
	}
	switch tag {
	case 0:
		return PingCommand(), nil
	case 1:
		return DisconnectCommand(), nil
	case 2:
		sql, err := ReadString(r)
		if err != nil {
			return Command{}, err
		}
		return SimpleExecuteCommand(sql), nil
	case 3:
		sql, err := ReadString(r)
		if err != nil {
			return Command{}, err
		}
		return SimpleQueryCommand(sql), nil
	case 4:
		n, err := ReadVarint(r)
		if err != nil {
			return Command{}, err
		}
		sqls := make([]string, 0, n)
		for i := uint64(0); i < n; i++ {
			sql, err := ReadString(r)
			if err != nil {
				return Command{}, err
			}
			sqls = append(sqls, sql)
		}
		return TransactionCommand(sqls), nil
	default:
		return Command{}, ErrUnknownCommand{Tag: tag}
	}
}
