package cursorpb

import "google.golang.org/protobuf/encoding/protowire"

// KeyConfig is the dynamic-key payload described in spec.md §4.5 step 4: a
// base64-encoded protobuf attached to a downstream API key, carrying the
// embedded Cursor credential plus a per-key policy overlay.
type KeyConfig struct {
	RawJWT               string
	VisionDisabled       bool
	SlowPool             bool
	UsageCheckModels     []string
	IncludeWebReferences bool
}

// Marshal encodes a KeyConfig to wire bytes.
func (k KeyConfig) Marshal() []byte {
	var b builder
	b.string(1, k.RawJWT)
	b.boolean(2, k.VisionDisabled)
	b.boolean(3, k.SlowPool)
	for _, m := range k.UsageCheckModels {
		b.string(4, m)
	}
	b.boolean(5, k.IncludeWebReferences)
	return b.bytes()
}

// UnmarshalKeyConfig decodes a KeyConfig from wire bytes.
func UnmarshalKeyConfig(data []byte) (KeyConfig, error) {
	var out KeyConfig
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte, raw uint64) bool {
		switch num {
		case 1:
			out.RawJWT = string(val)
		case 2:
			out.VisionDisabled = raw != 0
		case 3:
			out.SlowPool = raw != 0
		case 4:
			out.UsageCheckModels = append(out.UsageCheckModels, string(val))
		case 5:
			out.IncludeWebReferences = raw != 0
		}
		return true
	})
	return out, err
}
