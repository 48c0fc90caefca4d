package wire

import (
	"fmt"
	"io"
)

// Column describes one result column. Datatype is an advisory string from
// the backend and may be empty.
type Column struct {
	Name     string
	Datatype string
}

// Query is a fully materialized SimpleQuery result.
type Query struct {
	Columns      []Column
	Values       []Value // row-major: row0col0, row0col1, ..., row1col0, ...
	RowsAffected uint64
	DurationMs   uint64
}

// ErrInvalidQueryShape is returned when a decoded Query's values length is
// inconsistent with its column count.
type ErrInvalidQueryShape struct {
	Values  int
	Columns int
}

func (e ErrInvalidQueryShape) Error() string {
	return fmt.Sprintf("wire: invalid query shape: %d values, %d columns", e.Values, e.Columns)
}

func writeColumns(w io.Writer, columns []Column) error {
	if err := WriteVarint(w, uint64(len(columns))); err != nil {
		return err
	}
	for _, c := range columns {
		if err := WriteString(w, c.Name); err != nil {
			return err
		}
		if err := WriteString(w, c.Datatype); err != nil {
			return err
		}
	}
	return nil
}

func readColumns(r reader) ([]Column, error) {
	n, err := ReadVarint(r)
	if err != nil {
		return nil, err
	}
	columns := make([]Column, 0, n)
	for i := uint64(0); i < n; i++ {
		name, err := ReadString(r)
		if err != nil {
			return nil, err
		}
		datatype, err := ReadString(r)
		if err != nil {
			return nil, err
		}
		columns = append(columns, Column{Name: name, Datatype: datatype})
	}
	return columns, nil
}

// WriteQuery writes a Query frame: columns, values, rows_affected, duration_ms.
func WriteQuery(w io.Writer, q Query) error {
	if err := writeColumns(w, q.Columns); err != nil {
		return err
	}
	if err := WriteValues(w, q.Values); err != nil {
		return err
	}
	if err := WriteVarint(w, q.RowsAffected); err != nil {
		return err
	}
	return WriteVarint(w, q.DurationMs)
}

// ReadQuery reads a Query frame and validates the columns/values shape
// invariant: empty columns implies empty values; otherwise
// len(values) % len(columns) == 0.
func ReadQuery(r reader) (Query, error) {
	columns, err := readColumns(r)
	if err != nil {
		return Query{}, err
	}
	values, err := ReadValues(r)
	if err != nil {
		return Query{}, err
	}
	rowsAffected, err := ReadVarint(r)
	if err != nil {
		return Query{}, err
	}
	durationMs, err := ReadVarint(r)
	if err != nil {
		return Query{}, err
	}
	if len(columns) == 0 && len(values) != 0 {
		return Query{}, ErrInvalidQueryShape{Values: len(values), Columns: len(columns)}
	}
	if len(values) != 0 && len(values)%len(columns) != 0 {
		return Query{}, ErrInvalidQueryShape{Values: len(values), Columns: len(columns)}
	}
	return Query{
		Columns:      columns,
		Values:       values,
		RowsAffected: rowsAffected,
		DurationMs:   durationMs,
	}, nil
}
