// Package handshake implements the eight-step echolite handshake
// (spec.md §4.3): version exchange, mutual salt exchange, Argon2id
// parameter negotiation, password authentication, and database open. The
// same step functions drive both the server (internal/server) and the
// client (internal/client) sides.
package handshake

import (
	"crypto/rand"
	"fmt"
	"io"

	"echolite/internal/auth"
	"echolite/internal/wire"
)

// reader is the minimal interface the handshake needs from a connection:
// buffered byte-at-a-time reads for varints plus bulk reads for payloads.
type reader interface {
	io.Reader
	io.ByteReader
}

// ErrUnsupportedVersion is returned by the client when the server's major
// version isn't 1.
type ErrUnsupportedVersion struct {
	Got wire.Version
}

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("handshake: unsupported protocol version %d.%d", e.Got.Major, e.Got.Minor)
}

// RandomSalt draws a fresh 16-byte salt from a CSPRNG.
func RandomSalt() (auth.Salt, error) {
	var s auth.Salt
	if _, err := rand.Read(s[:]); err != nil {
		return auth.Salt{}, fmt.Errorf("handshake: generating salt: %w", err)
	}
	return s, nil
}

// WriteVersion writes the server's protocol version (step 1).
func WriteVersion(w io.Writer) error {
	return wire.WriteVersion(w, wire.CurrentVersion)
}

// ReadVersion reads a protocol version and rejects any major other than 1
// (step 1, client side).
func ReadVersion(r io.Reader) (wire.Version, error) {
	v, err := wire.ReadVersion(r)
	if err != nil {
		return wire.Version{}, err
	}
	if v.Major != wire.ProtocolMajor {
		return v, ErrUnsupportedVersion{Got: v}
	}
	return v, nil
}

// WriteSalt writes a raw 16-byte salt (steps 2 and 3).
func WriteSalt(w io.Writer, s auth.Salt) error {
	_, err := w.Write(s[:])
	return err
}

// ReadSalt reads a raw 16-byte salt (steps 2 and 3).
func ReadSalt(r io.Reader) (auth.Salt, error) {
	var s auth.Salt
	if _, err := io.ReadFull(r, s[:]); err != nil {
		return auth.Salt{}, err
	}
	return s, nil
}

// ErrArgon2Params is returned when a negotiated cost parameter doesn't fit
// in a uint32.
var ErrArgon2Params = fmt.Errorf("handshake: argon2 parameter overflow")

// WriteHashParams writes the three Argon2id cost parameters as varints
// (step 4).
func WriteHashParams(w io.Writer, p auth.Params) error {
	if err := wire.WriteVarint(w, uint64(p.MCost)); err != nil {
		return err
	}
	if err := wire.WriteVarint(w, uint64(p.TCost)); err != nil {
		return err
	}
	return wire.WriteVarint(w, uint64(p.PCost))
}

// ReadHashParams reads the three Argon2id cost parameters (step 4).
func ReadHashParams(r reader) (auth.Params, error) {
	m, err := wire.ReadVarint(r)
	if err != nil {
		return auth.Params{}, err
	}
	tt, err := wire.ReadVarint(r)
	if err != nil {
		return auth.Params{}, err
	}
	pp, err := wire.ReadVarint(r)
	if err != nil {
		return auth.Params{}, err
	}
	mc, err := checkU32(m)
	if err != nil {
		return auth.Params{}, err
	}
	tc, err := checkU32(tt)
	if err != nil {
		return auth.Params{}, err
	}
	pc, err := checkU32(pp)
	if err != nil {
		return auth.Params{}, err
	}
	return auth.Params{MCost: mc, TCost: tc, PCost: pc}, nil
}

func checkU32(v uint64) (uint32, error) {
	if v > 0xFFFFFFFF {
		return 0, ErrArgon2Params
	}
	return uint32(v), nil
}

// WriteHashedPassword writes the raw 32-byte Argon2id output (step 5).
func WriteHashedPassword(w io.Writer, h auth.HashedPassword) error {
	_, err := w.Write(h[:])
	return err
}

// ReadHashedPassword reads the raw 32-byte Argon2id output (step 5).
func ReadHashedPassword(r io.Reader) (auth.HashedPassword, error) {
	var h auth.HashedPassword
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return auth.HashedPassword{}, err
	}
	return h, nil
}

// WriteOpenRequest writes the database path and open flags (step 7).
func WriteOpenRequest(w io.Writer, path string, flags wire.Flags) error {
	if err := wire.WriteString(w, path); err != nil {
		return err
	}
	return wire.WriteFlags(w, flags)
}

// ReadOpenRequest reads the database path and open flags (step 7).
func ReadOpenRequest(r reader) (path string, flags wire.Flags, err error) {
	path, err = wire.ReadString(r)
	if err != nil {
		return "", 0, err
	}
	flags, err = wire.ReadFlags(r)
	if err != nil {
		return "", 0, err
	}
	return path, flags, nil
}
