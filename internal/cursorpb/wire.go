// Package cursorpb hand-encodes and hand-decodes the subset of Cursor's
// `aiserver.v1` protobuf messages the gateway speaks, using
// google.golang.org/protobuf/encoding/protowire directly rather than
// generated code.
//
// The upstream .proto schema is not available in this environment (Cursor
// ships it pre-compiled; the reference Rust source includes only the
// generated OUT_DIR artifact, which this retrieval did not carry). Field
// numbers below are therefore an internally-consistent reconstruction, not
// a verified match against Cursor's wire schema -- see DESIGN.md for the
// explicit call-out. The wire mechanics (varint/length-delimited framing,
// tag encoding) are exact regardless.
package cursorpb

import "google.golang.org/protobuf/encoding/protowire"

// builder accumulates an encoded protobuf message.
type builder struct {
	buf []byte
}

func (b *builder) string(num protowire.Number, s string) {
	if s == "" {
		return
	}
	b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
	b.buf = protowire.AppendString(b.buf, s)
}

func (b *builder) varint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	b.buf = protowire.AppendTag(b.buf, num, protowire.VarintType)
	b.buf = protowire.AppendVarint(b.buf, v)
}

func (b *builder) boolean(num protowire.Number, v bool) {
	if !v {
		return
	}
	b.varint(num, 1)
}

// boolAlways writes a bool field even when false -- for fields the source
// treats as a required/explicit flag (e.g. should_disable_tools).
func (b *builder) boolAlways(num protowire.Number, v bool) {
	b.buf = protowire.AppendTag(b.buf, num, protowire.VarintType)
	if v {
		b.buf = protowire.AppendVarint(b.buf, 1)
	} else {
		b.buf = protowire.AppendVarint(b.buf, 0)
	}
}

func (b *builder) bytes() []byte { return b.buf }

// walkFields walks a flat (non-nested-aware by default) protobuf message,
// calling visit once per top-level field.
func walkFields(data []byte, visit func(num protowire.Number, typ protowire.Type, val []byte, raw uint64) bool) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			if !visit(num, typ, nil, v) {
				return nil
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			if !visit(num, typ, v, 0) {
				return nil
			}
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}
