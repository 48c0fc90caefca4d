package handshake

import (
	"bufio"
	"bytes"
	"testing"

	"echolite/internal/auth"
	"echolite/internal/wire"
)

func bufOf(b []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(b))
}

func TestVersionStep(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVersion(&buf); err != nil {
		t.Fatalf("WriteVersion: %v", err)
	}
	got, err := ReadVersion(bufOf(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadVersion: %v", err)
	}
	if got != wire.CurrentVersion {
		t.Errorf("got %+v, want %+v", got, wire.CurrentVersion)
	}
}

func TestReadVersionRejectsUnsupportedMajor(t *testing.T) {
	var buf bytes.Buffer
	wire.WriteVersion(&buf, wire.Version{Major: 9, Minor: 0})
	_, err := ReadVersion(bufOf(buf.Bytes()))
	if _, ok := err.(ErrUnsupportedVersion); !ok {
		t.Fatalf("got %v, want ErrUnsupportedVersion", err)
	}
}

func TestSaltRoundTrip(t *testing.T) {
	s, err := RandomSalt()
	if err != nil {
		t.Fatalf("RandomSalt: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteSalt(&buf, s); err != nil {
		t.Fatalf("WriteSalt: %v", err)
	}
	got, err := ReadSalt(bufOf(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadSalt: %v", err)
	}
	if got != s {
		t.Errorf("round trip salt mismatch")
	}
}

func TestTwoRandomSaltsDiffer(t *testing.T) {
	a, _ := RandomSalt()
	b, _ := RandomSalt()
	if a == b {
		t.Fatal("two random salts collided — RNG looks broken")
	}
}

func TestHashParamsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	p := auth.DefaultParams
	if err := WriteHashParams(&buf, p); err != nil {
		t.Fatalf("WriteHashParams: %v", err)
	}
	got, err := ReadHashParams(bufOf(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadHashParams: %v", err)
	}
	if got != p {
		t.Errorf("got %+v, want %+v", got, p)
	}
}

func TestHashedPasswordRoundTrip(t *testing.T) {
	h := auth.Hash([]byte("pw"), auth.Salt{1}, auth.Salt{2}, auth.Params{MCost: 64, TCost: 1, PCost: 1})
	var buf bytes.Buffer
	if err := WriteHashedPassword(&buf, h); err != nil {
		t.Fatalf("WriteHashedPassword: %v", err)
	}
	got, err := ReadHashedPassword(bufOf(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadHashedPassword: %v", err)
	}
	if !auth.Equal(got, h) {
		t.Errorf("round trip hash mismatch")
	}
}

func TestOpenRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOpenRequest(&buf, "/tmp/test.db", wire.DefaultFlags()); err != nil {
		t.Fatalf("WriteOpenRequest: %v", err)
	}
	path, flags, err := ReadOpenRequest(bufOf(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadOpenRequest: %v", err)
	}
	if path != "/tmp/test.db" || flags != wire.DefaultFlags() {
		t.Errorf("got (%q, %v)", path, flags)
	}
}
