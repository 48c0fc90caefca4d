package wire

import "io"

// Flags is the signed 32-bit SQLite open-mode bitfield, carried opaquely
// over the wire. Interpretation belongs to the SQL backend.
//
// From: https://www.sqlite.org/c3ref/c_open_autoproxy.html
type Flags int32

const (
	FlagReadOnly      Flags = 0x00000001
	FlagReadWrite     Flags = 0x00000002
	FlagCreate        Flags = 0x00000004
	FlagDeleteOnClose Flags = 0x00000008
	FlagExclusive     Flags = 0x00000010
	FlagAutoProxy     Flags = 0x00000020
	FlagURI           Flags = 0x00000040
	FlagMemory        Flags = 0x00000080
	FlagMainDB        Flags = 0x00000100
	FlagTempDB        Flags = 0x00000200
	FlagTransientDB   Flags = 0x00000400
	FlagMainJournal   Flags = 0x00000800
	FlagTempJournal   Flags = 0x00001000
	FlagSubjournal    Flags = 0x00002000
	FlagSuperJournal  Flags = 0x00004000
	FlagNoMutex       Flags = 0x00008000
	FlagFullMutex     Flags = 0x00010000
	FlagSharedCache   Flags = 0x00020000
	FlagPrivateCache  Flags = 0x00040000
	FlagWAL           Flags = 0x00080000
	FlagNoFollow      Flags = 0x01000000
	FlagExResCode     Flags = 0x02000000

	// knownFlags is the union of every bit this implementation recognizes.
	// Any bit outside this set is rejected by the backend as InvalidFlags.
	knownFlags = FlagReadOnly | FlagReadWrite | FlagCreate | FlagDeleteOnClose |
		FlagExclusive | FlagAutoProxy | FlagURI | FlagMemory | FlagMainDB |
		FlagTempDB | FlagTransientDB | FlagMainJournal | FlagTempJournal |
		FlagSubjournal | FlagSuperJournal | FlagNoMutex | FlagFullMutex |
		FlagSharedCache | FlagPrivateCache | FlagWAL | FlagNoFollow | FlagExResCode
)

// DefaultFlags matches rusqlite's default open mode:
// {READWRITE, CREATE, NOMUTEX, URI}.
func DefaultFlags() Flags {
	return FlagReadWrite | FlagCreate | FlagNoMutex | FlagURI
}

// Has reports whether f has every bit of flag set.
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// Valid reports whether f contains only recognized bits.
func (f Flags) Valid() bool {
	return f & ^Flags(knownFlags) == 0
}

// WriteFlags writes the raw big-endian signed 32-bit flags value.
func WriteFlags(w io.Writer, f Flags) error {
	buf := [4]byte{byte(f >> 24), byte(f >> 16), byte(f >> 8), byte(f)}
	_, err := w.Write(buf[:])
	return err
}

// ReadFlags reads the raw big-endian signed 32-bit flags value.
func ReadFlags(r io.Reader) (Flags, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	v := int32(buf[0])<<24 | int32(buf[1])<<16 | int32(buf[2])<<8 | int32(buf[3])
	return Flags(v), nil
}
