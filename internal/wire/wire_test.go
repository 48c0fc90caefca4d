package wire

import (
	"bufio"
	"bytes"
	"math"
	"testing"
)

func bufOf(b []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(b))
}

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 16384, 1 << 35, math.MaxUint64}
	for _, n := range cases {
		var buf bytes.Buffer
		if err := WriteVarint(&buf, n); err != nil {
			t.Fatalf("WriteVarint(%d): %v", n, err)
		}
		got, err := ReadVarint(bufOf(buf.Bytes()))
		if err != nil {
			t.Fatalf("ReadVarint(%d): %v", n, err)
		}
		if got != n {
			t.Errorf("round trip %d: got %d", n, got)
		}
	}
}

func TestVarintKnownEncodings(t *testing.T) {
	cases := []struct {
		n    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{math.MaxUint64, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}},
	}
	for _, tt := range cases {
		var buf bytes.Buffer
		if err := WriteVarint(&buf, tt.n); err != nil {
			t.Fatalf("WriteVarint(%d): %v", tt.n, err)
		}
		if !bytes.Equal(buf.Bytes(), tt.want) {
			t.Errorf("WriteVarint(%d) = % X, want % X", tt.n, buf.Bytes(), tt.want)
		}
	}
}

func TestVarintOverflow(t *testing.T) {
	// 10 continuation bytes push the shift to 70, past the 64-bit limit.
	malformed := bytes.Repeat([]byte{0xFF}, 10)
	_, err := ReadVarint(bufOf(malformed))
	if err != ErrVarint {
		t.Fatalf("got %v, want ErrVarint", err)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	cases := [][]byte{nil, {}, []byte("hello"), bytes.Repeat([]byte{0x42}, 1000)}
	for _, b := range cases {
		var buf bytes.Buffer
		if err := WriteBytes(&buf, b); err != nil {
			t.Fatalf("WriteBytes: %v", err)
		}
		got, err := ReadBytes(bufOf(buf.Bytes()))
		if err != nil {
			t.Fatalf("ReadBytes: %v", err)
		}
		if !bytes.Equal(got, b) {
			t.Errorf("round trip %q: got %q", b, got)
		}
	}
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	WriteBytes(&buf, []byte{0xff, 0xfe, 0xfd})
	_, err := ReadString(bufOf(buf.Bytes()))
	if err != ErrInvalidUTF8 {
		t.Fatalf("got %v, want ErrInvalidUTF8", err)
	}
}

func TestZigZagRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 2, -2, math.MaxInt64, math.MinInt64}
	for _, v := range cases {
		got := ZigZagDecode(ZigZagEncode(v))
		if got != v {
			t.Errorf("zigzag round trip %d: got %d", v, got)
		}
	}
}

func TestValueRoundTrip(t *testing.T) {
	cases := []Value{
		NullValue(),
		I64Value(0),
		I64Value(42),
		I64Value(-42),
		I64Value(math.MinInt64),
		I64Value(math.MaxInt64),
		F64Value(3.14159),
		F64Value(-0.0),
		BytesValue(nil),
		BytesValue([]byte{1, 2, 3}),
		TextValue(nil),
		TextValue([]byte("hello world")),
	}
	for _, v := range cases {
		var buf bytes.Buffer
		if err := WriteValue(&buf, v); err != nil {
			t.Fatalf("WriteValue(%+v): %v", v, err)
		}
		got, err := ReadValue(bufOf(buf.Bytes()))
		if err != nil {
			t.Fatalf("ReadValue(%+v): %v", v, err)
		}
		if got.Kind != v.Kind || got.I64 != v.I64 || got.F64 != v.F64 || !bytes.Equal(got.Bytes, v.Bytes) {
			if !(len(got.Bytes) == 0 && len(v.Bytes) == 0) {
				t.Errorf("round trip %+v: got %+v", v, got)
			}
		}
	}
}

func TestValueTagTwoAcceptedForNonNegative(t *testing.T) {
	// Manually encode 5 with tag 2 (zig-zag of 5 is 10).
	var buf bytes.Buffer
	buf.WriteByte(2)
	WriteVarint(&buf, ZigZagEncode(5))

	got, err := ReadValue(bufOf(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if got.Kind != KindI64 || got.I64 != 5 {
		t.Errorf("got %+v, want I64(5)", got)
	}
}

func TestValueUnknownTag(t *testing.T) {
	_, err := ReadValue(bufOf([]byte{99}))
	if _, ok := err.(ErrUnknownValue); !ok {
		t.Fatalf("got %v, want ErrUnknownValue", err)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	cases := []Command{
		PingCommand(),
		DisconnectCommand(),
		SimpleExecuteCommand("create table t (id integer)"),
		SimpleQueryCommand("select * from t"),
		TransactionCommand(nil),
		TransactionCommand([]string{"insert into t values (1)", "insert into t values (2)"}),
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := WriteCommand(&buf, c); err != nil {
			t.Fatalf("WriteCommand: %v", err)
		}
		got, err := ReadCommand(bufOf(buf.Bytes()))
		if err != nil {
			t.Fatalf("ReadCommand: %v", err)
		}
		if got.Kind != c.Kind || got.SQL != c.SQL || len(got.SQLs) != len(c.SQLs) {
			t.Errorf("round trip %+v: got %+v", c, got)
		}
	}
}

func TestCommandUnknownTag(t *testing.T) {
	_, err := ReadCommand(bufOf([]byte{200}))
	if _, ok := err.(ErrUnknownCommand); !ok {
		t.Fatalf("got %v, want ErrUnknownCommand", err)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusOK, ErrStatus("boom")} {
		var buf bytes.Buffer
		if err := WriteStatus(&buf, s); err != nil {
			t.Fatalf("WriteStatus: %v", err)
		}
		got, err := ReadStatus(bufOf(buf.Bytes()))
		if err != nil {
			t.Fatalf("ReadStatus: %v", err)
		}
		if got.Ok != s.Ok || got.Message != s.Message {
			t.Errorf("round trip %+v: got %+v", s, got)
		}
	}
}

func TestStatusUnknownTag(t *testing.T) {
	_, err := ReadStatus(bufOf([]byte{7}))
	if _, ok := err.(ErrUnknownStatus); !ok {
		t.Fatalf("got %v, want ErrUnknownStatus", err)
	}
}

func TestQueryRoundTrip(t *testing.T) {
	q := Query{
		Columns: []Column{{Name: "id", Datatype: "INTEGER"}, {Name: "value", Datatype: "TEXT"}},
		Values: []Value{
			I64Value(1), TextValue([]byte("hello Dog")),
			I64Value(2), TextValue([]byte("hello Cat")),
			I64Value(3), TextValue([]byte("hello Monkey")),
		},
		RowsAffected: 3,
		DurationMs:   1,
	}
	var buf bytes.Buffer
	if err := WriteQuery(&buf, q); err != nil {
		t.Fatalf("WriteQuery: %v", err)
	}
	got, err := ReadQuery(bufOf(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadQuery: %v", err)
	}
	if len(got.Columns) != 2 || len(got.Values) != 6 || got.RowsAffected != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestQueryRejectsValuesWithoutColumns(t *testing.T) {
	var buf bytes.Buffer
	writeColumns(&buf, nil)
	WriteValues(&buf, []Value{I64Value(1)})
	WriteVarint(&buf, 0)
	WriteVarint(&buf, 0)

	_, err := ReadQuery(bufOf(buf.Bytes()))
	if _, ok := err.(ErrInvalidQueryShape); !ok {
		t.Fatalf("got %v, want ErrInvalidQueryShape", err)
	}
}

func TestQueryRejectsMisalignedValues(t *testing.T) {
	var buf bytes.Buffer
	writeColumns(&buf, []Column{{Name: "a"}, {Name: "b"}})
	WriteValues(&buf, []Value{I64Value(1), I64Value(2), I64Value(3)})
	WriteVarint(&buf, 0)
	WriteVarint(&buf, 0)

	_, err := ReadQuery(bufOf(buf.Bytes()))
	if _, ok := err.(ErrInvalidQueryShape); !ok {
		t.Fatalf("got %v, want ErrInvalidQueryShape", err)
	}
}

func TestVersionRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVersion(&buf, CurrentVersion); err != nil {
		t.Fatalf("WriteVersion: %v", err)
	}
	if buf.Bytes()[0] != 1 || buf.Bytes()[1] != 0 {
		t.Fatalf("got % X, want [1 0]", buf.Bytes())
	}
	got, err := ReadVersion(bufOf(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadVersion: %v", err)
	}
	if got != CurrentVersion {
		t.Errorf("got %+v, want %+v", got, CurrentVersion)
	}
}

func TestFlagsDefault(t *testing.T) {
	f := DefaultFlags()
	if !f.Has(FlagReadWrite) || !f.Has(FlagCreate) || !f.Has(FlagNoMutex) || !f.Has(FlagURI) {
		t.Errorf("DefaultFlags() = %v missing expected bits", f)
	}
	if !f.Valid() {
		t.Errorf("DefaultFlags() should be valid")
	}
}

func TestFlagsInvalidBits(t *testing.T) {
	f := Flags(1 << 30)
	if f.Valid() {
		t.Errorf("unrecognized bit should be invalid")
	}
}

func TestFlagsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := FlagReadOnly
	if err := WriteFlags(&buf, f); err != nil {
		t.Fatalf("WriteFlags: %v", err)
	}
	got, err := ReadFlags(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadFlags: %v", err)
	}
	if got != f {
		t.Errorf("got %v, want %v", got, f)
	}
}
