package wire

import (
	"fmt"
	"io"
)

// Status is the Ok/Err frame that precedes every response that isn't
// itself a Status.
type Status struct {
	Ok      bool
	Message string // only meaningful when !Ok
}

// StatusOK is the success status.
var StatusOK = Status{Ok: true}

// ErrStatus builds an Err status carrying a human-readable message.
func ErrStatus(message string) Status {
	return Status{Ok: false, Message: message}
}

// ErrUnknownStatus is returned when a status tag byte is outside 0..1.
type ErrUnknownStatus struct{ Tag byte }

func (e ErrUnknownStatus) Error() string { return fmt.Sprintf("wire: unknown status tag %d", e.Tag) }

// WriteStatus writes a Status frame.
func WriteStatus(w io.Writer, s Status) error {
	if s.Ok {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	return WriteString(w, s.Message)
}

// ReadStatus reads a Status frame.
func ReadStatus(r reader) (Status, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return Status{}, err
	}
	switch tag {
	case 0:
		return StatusOK, nil
	case 1:
		msg, err := ReadString(r)
		if err != nil {
			return Status{}, err
		}
		return ErrStatus(msg), nil
	default:
		return Status{}, ErrUnknownStatus{Tag: tag}
	}
}
