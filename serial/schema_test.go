package serial

import "testing"

func TestScalarRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		schema Schema
		value  Value
	}{
		{"bool-true", B(), Bool(true)},
		{"bool-false", B(), Bool(false)},
		{"u8", U8(), Int(250)},
		{"u32", U32(), Int(123456789)},
		{"u64", U64(), Int(1<<62 + 7)},
		{"f32", F32(), Float(3.5)},
		{"f64", F64(), Float(3.14159)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Encode(tc.schema, tc.value)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, n, err := Decode(tc.schema, b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if n != len(b) {
				t.Fatalf("decode consumed %d of %d bytes", n, len(b))
			}
			switch tc.schema.Kind {
			case KindBool:
				if got.Bool != tc.value.Bool {
					t.Fatalf("bool mismatch: got %v want %v", got.Bool, tc.value.Bool)
				}
			case KindInt:
				if got.Int != tc.value.Int {
					t.Fatalf("int mismatch: got %v want %v", got.Int, tc.value.Int)
				}
			case KindFloat:
				if got.Float != tc.value.Float {
					t.Fatalf("float mismatch: got %v want %v", got.Float, tc.value.Float)
				}
			}
		})
	}
}

func TestByteSequenceRoundTrip(t *testing.T) {
	s := ByteSeq()
	v := Bytes([]byte("hello, shimmer"))
	b, err := Encode(s, v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(b) != 8+len(v.Bytes) {
		t.Fatalf("unexpected encoded length: %d", len(b))
	}
	got, n, err := Decode(s, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(b) {
		t.Fatalf("short decode: %d of %d", n, len(b))
	}
	if string(got.Bytes) != "hello, shimmer" {
		t.Fatalf("mismatch: got %q", got.Bytes)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	schema := RecordOf(
		Field{Name: "id", Schema: U32()},
		Field{Name: "name", Schema: ByteSeq()},
		Field{Name: "score", Schema: F64()},
	)
	v := Rec(Int(7), Bytes([]byte("alice")), Float(99.5))
	b, err := Encode(schema, v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n, err := Decode(schema, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(b) {
		t.Fatalf("short decode")
	}
	if got.Record[0].Int != 7 || string(got.Record[1].Bytes) != "alice" || got.Record[2].Float != 99.5 {
		t.Fatalf("record mismatch: %+v", got.Record)
	}
}

func TestFixedArrayRoundTrip(t *testing.T) {
	schema := ArrayOf(U16(), 3)
	v := Seq(Int(1), Int(2), Int(3))
	b, err := Encode(schema, v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(b) != 6 {
		t.Fatalf("unexpected length %d", len(b))
	}
	got, _, err := Decode(schema, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i, want := range []int64{1, 2, 3} {
		if got.Items[i].Int != want {
			t.Fatalf("item %d: got %d want %d", i, got.Items[i].Int, want)
		}
	}
}

func TestDecodeUnderMismatchedSchemaDoesNotCorrupt(t *testing.T) {
	b, err := Encode(U32(), Int(42))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Decoding a 4-byte encoding as a u64 should fail cleanly, not panic.
	if _, _, err := Decode(U64(), b); err == nil {
		t.Fatalf("expected short-read error decoding under mismatched schema")
	}
}

func TestUnsupportedFloatWidthRejectedNotPanicked(t *testing.T) {
	for _, width := range []int{16, 80, 128} {
		s := Schema{Kind: KindFloat, Width: width}
		if _, err := Encode(s, Float(1.5)); err == nil {
			t.Fatalf("width %d: expected encode to reject unsupported float width", width)
		}
	}

	// A buffer matching a 16-bit width must fail decode cleanly too,
	// not panic inside decodeUint on an undersized slice.
	s16 := Schema{Kind: KindFloat, Width: 16}
	if _, _, err := Decode(s16, []byte{0x00, 0x3c}); err == nil {
		t.Fatalf("expected decode to reject unsupported float width 16")
	}
}

func TestUnsupportedIntWidthRejected(t *testing.T) {
	s := Schema{Kind: KindInt, Width: 24}
	if _, err := Encode(s, Int(5)); err == nil {
		t.Fatalf("expected encode to reject unsupported int width")
	}
}

func TestSequenceOfRecords(t *testing.T) {
	elem := RecordOf(Field{Name: "k", Schema: ByteSeq()}, Field{Name: "v", Schema: ByteSeq()})
	schema := SeqOf(elem)
	v := Seq(
		Rec(Bytes([]byte("a")), Bytes([]byte("1"))),
		Rec(Bytes([]byte("b")), Bytes([]byte("2"))),
	)
	b, err := Encode(schema, v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n, err := Decode(schema, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(b) {
		t.Fatalf("short decode")
	}
	if len(got.Items) != 2 || string(got.Items[1].Record[0].Bytes) != "b" {
		t.Fatalf("mismatch: %+v", got.Items)
	}
}
