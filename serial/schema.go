// Package serial implements the schema-directed value codec: encoding and
// decoding of scalars, fixed arrays, variable-length sequences, and
// records to and from a little-endian, length-prefixed byte
// representation. It is used both for typed user values and for the
// whole-database snapshot format.
//
// The technique generalizes the fixed 16-byte-header, length-prefixed
// node encoding DaemonDB used for a single B+-tree node into a recursive
// schema walk over an arbitrary Kind tree.
package serial

import (
	"encoding/binary"
	"math"

	"shimmer/errs"
)

// Kind names one shape in the closed serialization grammar.
type Kind int

const (
	KindVoid Kind = iota
	KindBool
	KindInt   // width-bit integer, little-endian; decoded zero-extended, so negative values narrower than 64 bits do not round-trip
	KindFloat // width-bit IEEE-754 bit pattern, little-endian
	KindFixedArray
	KindSequence // variable-length, 8-byte length prefix
	KindRecord
	KindRef // single-owner reference: encoding of the referent
)

// Schema describes one node of the grammar. Width is in bits and applies
// to KindInt/KindFloat. Count applies to KindFixedArray. Elem describes
// the element type for KindFixedArray/KindSequence/KindRef. Fields
// describes named fields in declaration order for KindRecord.
type Schema struct {
	Kind   Kind
	Width  int
	Count  int
	Elem   *Schema
	Fields []Field
}

// Field is one named record member.
type Field struct {
	Name   string
	Schema Schema
}

// Value is the decoded, host-side representation of an encoded byte
// string. Its shape mirrors Schema: Bool/Int/Float hold scalars,
// Bytes holds raw sequence bytes (the common case of seq<u8>), Items
// holds decoded elements for arrays/sequences of non-byte element type,
// and Record holds the field values in declaration order.
type Value struct {
	Bool    bool
	Int     int64
	Float   float64
	Bytes   []byte
	Items   []Value
	Record  []Value
}

func Void() Value { return Value{} }

func Bool(b bool) Value { return Value{Bool: b} }

func Int(v int64) Value { return Value{Int: v} }

func Float(v float64) Value { return Value{Float: v} }

func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{Bytes: cp}
}

func Seq(items ...Value) Value { return Value{Items: items} }

func Rec(fields ...Value) Value { return Value{Record: fields} }

// Schema constructors for common shapes.

func U8() Schema  { return Schema{Kind: KindInt, Width: 8} }
func U16() Schema { return Schema{Kind: KindInt, Width: 16} }
func U32() Schema { return Schema{Kind: KindInt, Width: 32} }
func U64() Schema { return Schema{Kind: KindInt, Width: 64} }
func F32() Schema { return Schema{Kind: KindFloat, Width: 32} }
func F64() Schema { return Schema{Kind: KindFloat, Width: 64} }
func B() Schema   { return Schema{Kind: KindBool} }

func ByteSeq() Schema {
	elem := U8()
	return Schema{Kind: KindSequence, Elem: &elem}
}

func SeqOf(elem Schema) Schema {
	return Schema{Kind: KindSequence, Elem: &elem}
}

func ArrayOf(elem Schema, n int) Schema {
	return Schema{Kind: KindFixedArray, Elem: &elem, Count: n}
}

func RecordOf(fields ...Field) Schema {
	return Schema{Kind: KindRecord, Fields: fields}
}

// Encode renders v according to schema s into a freshly allocated byte
// slice.
func Encode(s Schema, v Value) ([]byte, error) {
	buf := make([]byte, 0, 32)
	out, err := encodeInto(buf, s, v)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func encodeInto(buf []byte, s Schema, v Value) ([]byte, error) {
	switch s.Kind {
	case KindVoid:
		return buf, nil
	case KindBool:
		if v.Bool {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case KindInt:
		if s.Width != 8 && s.Width != 16 && s.Width != 32 && s.Width != 64 {
			return nil, errs.Wrapf(errs.ErrInvalidDataType, "unsupported int width %d", s.Width)
		}
		return encodeUint(buf, uint64(v.Int), s.Width), nil
	case KindFloat:
		fb, err := encodeFloatBits(s.Width, v.Float)
		if err != nil {
			return nil, err
		}
		return append(buf, fb...), nil
	case KindFixedArray:
		if s.Elem == nil {
			return nil, errs.Wrap(errs.ErrInvalidDataType, "fixed array missing element schema")
		}
		if len(v.Items) != s.Count {
			return nil, errs.Wrapf(errs.ErrInvalidSize, "fixed array: want %d elements, got %d", s.Count, len(v.Items))
		}
		var err error
		for i := 0; i < s.Count; i++ {
			buf, err = encodeInto(buf, *s.Elem, v.Items[i])
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KindSequence:
		if s.Elem == nil {
			return nil, errs.Wrap(errs.ErrInvalidDataType, "sequence missing element schema")
		}
		if isByteElem(*s.Elem) {
			lenBuf := make([]byte, 8)
			binary.LittleEndian.PutUint64(lenBuf, uint64(len(v.Bytes)))
			buf = append(buf, lenBuf...)
			buf = append(buf, v.Bytes...)
			return buf, nil
		}
		lenBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(lenBuf, uint64(len(v.Items)))
		buf = append(buf, lenBuf...)
		var err error
		for _, it := range v.Items {
			buf, err = encodeInto(buf, *s.Elem, it)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KindRecord:
		if len(v.Record) != len(s.Fields) {
			return nil, errs.Wrapf(errs.ErrInvalidSize, "record: want %d fields, got %d", len(s.Fields), len(v.Record))
		}
		var err error
		for i, f := range s.Fields {
			buf, err = encodeInto(buf, f.Schema, v.Record[i])
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KindRef:
		if s.Elem == nil {
			return nil, errs.Wrap(errs.ErrInvalidDataType, "ref missing referent schema")
		}
		return encodeInto(buf, *s.Elem, v)
	default:
		return nil, errs.Wrapf(errs.ErrInvalidDataType, "unsupported kind %d", s.Kind)
	}
}

// Decode parses data according to schema s, returning the decoded value
// and the number of bytes consumed.
func Decode(s Schema, data []byte) (Value, int, error) {
	return decodeAt(s, data, 0)
}

func decodeAt(s Schema, data []byte, off int) (Value, int, error) {
	switch s.Kind {
	case KindVoid:
		return Value{}, off, nil
	case KindBool:
		if off >= len(data) {
			return Value{}, off, errs.Wrap(errs.ErrInvalidSize, "bool: short read")
		}
		return Value{Bool: data[off] != 0}, off + 1, nil
	case KindInt:
		if s.Width != 8 && s.Width != 16 && s.Width != 32 && s.Width != 64 {
			return Value{}, off, errs.Wrapf(errs.ErrInvalidDataType, "unsupported int width %d", s.Width)
		}
		n := s.Width / 8
		if off+n > len(data) {
			return Value{}, off, errs.Wrap(errs.ErrInvalidSize, "int: short read")
		}
		u := decodeUint(data[off:off+n], s.Width)
		return Value{Int: int64(u)}, off + n, nil
	case KindFloat:
		n := s.Width / 8
		if off+n > len(data) {
			return Value{}, off, errs.Wrap(errs.ErrInvalidSize, "float: short read")
		}
		f, err := decodeFloatBits(data[off:off+n], s.Width)
		if err != nil {
			return Value{}, off, err
		}
		return Value{Float: f}, off + n, nil
	case KindFixedArray:
		if s.Elem == nil {
			return Value{}, off, errs.Wrap(errs.ErrInvalidDataType, "fixed array missing element schema")
		}
		items := make([]Value, 0, s.Count)
		cur := off
		for i := 0; i < s.Count; i++ {
			var item Value
			var err error
			item, cur, err = decodeAt(*s.Elem, data, cur)
			if err != nil {
				return Value{}, off, err
			}
			items = append(items, item)
		}
		return Value{Items: items}, cur, nil
	case KindSequence:
		if s.Elem == nil {
			return Value{}, off, errs.Wrap(errs.ErrInvalidDataType, "sequence missing element schema")
		}
		if off+8 > len(data) {
			return Value{}, off, errs.Wrap(errs.ErrInvalidSize, "sequence length: short read")
		}
		n := binary.LittleEndian.Uint64(data[off : off+8])
		cur := off + 8
		if isByteElem(*s.Elem) {
			end := cur + int(n)
			if end > len(data) || end < cur {
				return Value{}, off, errs.Wrap(errs.ErrInvalidSize, "sequence bytes: short read")
			}
			b := make([]byte, n)
			copy(b, data[cur:end])
			return Value{Bytes: b}, end, nil
		}
		items := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			var item Value
			var err error
			item, cur, err = decodeAt(*s.Elem, data, cur)
			if err != nil {
				return Value{}, off, err
			}
			items = append(items, item)
		}
		return Value{Items: items}, cur, nil
	case KindRecord:
		fields := make([]Value, 0, len(s.Fields))
		cur := off
		for _, f := range s.Fields {
			var item Value
			var err error
			item, cur, err = decodeAt(f.Schema, data, cur)
			if err != nil {
				return Value{}, off, err
			}
			fields = append(fields, item)
		}
		return Value{Record: fields}, cur, nil
	case KindRef:
		if s.Elem == nil {
			return Value{}, off, errs.Wrap(errs.ErrInvalidDataType, "ref missing referent schema")
		}
		return decodeAt(*s.Elem, data, off)
	default:
		return Value{}, off, errs.Wrapf(errs.ErrInvalidDataType, "unsupported kind %d", s.Kind)
	}
}

func isByteElem(s Schema) bool {
	return s.Kind == KindInt && s.Width == 8
}

func encodeUint(buf []byte, u uint64, width int) []byte {
	n := width / 8
	tmp := make([]byte, n)
	switch n {
	case 1:
		tmp[0] = byte(u)
	case 2:
		binary.LittleEndian.PutUint16(tmp, uint16(u))
	case 4:
		binary.LittleEndian.PutUint32(tmp, uint32(u))
	case 8:
		binary.LittleEndian.PutUint64(tmp, u)
	}
	return append(buf, tmp...)
}

func decodeUint(b []byte, width int) uint64 {
	switch width / 8 {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// encodeFloatBits renders f as its IEEE-754 bit pattern for width. Go has
// no native bit-pattern accessor for 16/80/128-bit floats, and storing
// them as a disguised 8-byte pattern would silently diverge from the
// width the schema declares on the wire, so those widths are rejected
// rather than faked.
func encodeFloatBits(width int, f float64) ([]byte, error) {
	buf := make([]byte, 0, 8)
	switch width {
	case 32:
		return encodeUint(buf, uint64(math.Float32bits(float32(f))), 32), nil
	case 64:
		return encodeUint(buf, math.Float64bits(f), 64), nil
	default:
		return nil, errs.Wrapf(errs.ErrInvalidDataType, "unsupported float width %d", width)
	}
}

func decodeFloatBits(b []byte, width int) (float64, error) {
	switch width {
	case 32:
		return float64(math.Float32frombits(uint32(decodeUint(b, 32)))), nil
	case 64:
		return math.Float64frombits(decodeUint(b, 64)), nil
	default:
		return 0, errs.Wrapf(errs.ErrInvalidDataType, "unsupported float width %d", width)
	}
}
