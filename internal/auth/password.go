// Package auth implements echolite's password handshake primitives:
// Argon2id key derivation, constant-time verification, a zero-on-release
// secret handle, and the process-wide concurrency limiter that bounds
// simultaneous hash computations.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/argon2"
)

// Salt is the fixed 16-byte value each side of the handshake contributes.
type Salt [16]byte

// HashedPassword is the fixed 32-byte Argon2id output exchanged during
// authentication.
type HashedPassword [32]byte

// Params are the Argon2id cost parameters negotiated during the handshake.
type Params struct {
	MCost uint32 // memory cost, KiB
	TCost uint32 // time cost (iterations)
	PCost uint32 // parallelism
}

// DefaultParams matches the server's configured defaults (§3):
// m_cost=65536 KiB, t_cost=8, p_cost=1.
var DefaultParams = Params{MCost: 65536, TCost: 8, PCost: 1}

// Hash derives the 32-byte Argon2id output for password, salted with
// clientSalt||serverSalt (client first), using params. The caller is
// responsible for holding a Limiter permit around this call — Hash itself
// does no concurrency control, since the caller may need to bracket the
// permit around more than just this call (e.g. also zeroing the password
// copy).
func Hash(password []byte, clientSalt, serverSalt Salt, params Params) HashedPassword {
	salt := make([]byte, 0, 32)
	salt = append(salt, clientSalt[:]...)
	salt = append(salt, serverSalt[:]...)

	out := argon2.IDKey(password, salt, params.TCost, params.MCost, uint8(params.PCost), 32)
	var hashed HashedPassword
	copy(hashed[:], out)
	Wipe(out)
	Wipe(salt)
	return hashed
}

// Equal performs a constant-time comparison of two hashed passwords.
func Equal(a, b HashedPassword) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// Wipe overwrites b with zeros in place. Call it on any byte slice that
// held plaintext password material or a derived hash once it is no longer
// needed.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// SecurePassword is a reference-counted handle to the server's configured
// password. Clone hands out further ref-counted handles to the same
// buffer (no copy of the plaintext is made); the underlying plaintext is
// zeroed exactly once, when the last reference is released. Go has no deterministic destructors, so callers
// must call Release explicitly — typically via a `defer`.
type SecurePassword struct {
	buf    []byte
	refs   *int32
	closed *int32
}

// NewSecurePassword takes ownership of password's backing array. Callers
// must not use password after this call; use the returned handle instead.
func NewSecurePassword(password []byte) *SecurePassword {
	refs := int32(1)
	closed := int32(0)
	return &SecurePassword{buf: password, refs: &refs, closed: &closed}
}

// Clone returns a new handle sharing the same underlying buffer and bumps
// the reference count. Each returned handle must be Released exactly once.
func (p *SecurePassword) Clone() *SecurePassword {
	atomic.AddInt32(p.refs, 1)
	return &SecurePassword{buf: p.buf, refs: p.refs, closed: p.closed}
}

// Release decrements the reference count and wipes the underlying buffer
// once it reaches zero. Safe to call exactly once per handle (including
// the original returned by NewSecurePassword and every Clone).
func (p *SecurePassword) Release() {
	if atomic.AddInt32(p.refs, -1) == 0 {
		if atomic.CompareAndSwapInt32(p.closed, 0, 1) {
			Wipe(p.buf)
		}
	}
}

// IsEmpty reports whether the configured password is the empty string.
func (p *SecurePassword) IsEmpty() bool {
	return len(p.buf) == 0
}

type hashResult struct {
	ok  bool
	err error
}

// Verify hashes the configured plaintext held by p with the given
// salts/params and compares it in constant time against the client's
// claimed HashedPassword. It always runs the full derivation, even for an
// empty password, per spec.md §8's "never short-circuits" property.
//
// The derivation runs on its own goroutine, guarded by limiter, and the
// caller selects on its result channel against ctx — the same
// handoff-to-a-bounded-worker-and-await-on-a-channel shape the teacher
// uses for background work (internal/pool's reaper/warm-up goroutines),
// adapted here so a canceled connection doesn't leave the I/O goroutine
// blocked inside a synchronous Argon2id call.
func (p *SecurePassword) Verify(ctx context.Context, limiter *Limiter, clientSalt, serverSalt Salt, params Params, claimed HashedPassword) (bool, error) {
	resultCh := make(chan hashResult, 1)
	go func() {
		if err := limiter.Acquire(ctx); err != nil {
			resultCh <- hashResult{err: fmt.Errorf("auth: acquiring hash permit: %w", err)}
			return
		}
		defer limiter.Release()
		computed := Hash(p.buf, clientSalt, serverSalt, params)
		resultCh <- hashResult{ok: Equal(computed, claimed)}
	}()

	select {
	case res := <-resultCh:
		return res.ok, res.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
