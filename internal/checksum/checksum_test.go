package checksum

import "testing"

func TestChecksumRoundTrip(t *testing.T) {
	t.Parallel()
	c := Random()
	s := c.String()
	if len(s) != 137 {
		t.Fatalf("String() len = %d, want 137", len(s))
	}
	got, err := FromString(s)
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if got.First != c.First || got.Second != c.Second {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, c)
	}
}

func TestChecksumRepairTruncated(t *testing.T) {
	t.Parallel()
	c := Random()
	s := c.String()
	repaired := Repair(s[8:]) // 129-byte form, no timestamp
	if repaired.First != c.First || repaired.Second != c.Second {
		t.Errorf("Repair(129-form) = %+v, want %+v", repaired, c)
	}
}

func TestChecksumRepairGarbage(t *testing.T) {
	t.Parallel()
	r := Repair("not a valid checksum at all")
	if len(r.String()) != 137 {
		t.Errorf("Repair(garbage) did not yield a printable checksum")
	}
}

func TestTimestampHeaderRoundTrip(t *testing.T) {
	t.Parallel()
	ks := uint64(1_700_000)
	h := NewTimestampHeader(ks)
	if len(h) != 8 {
		t.Fatalf("header len = %d, want 8", len(h))
	}
	got, ok := ExtractTimeKS(h)
	if !ok {
		t.Fatal("ExtractTimeKS failed on well-formed header")
	}
	if got != ks {
		t.Errorf("ExtractTimeKS = %d, want %d", got, ks)
	}
}

func TestValidateChecksum(t *testing.T) {
	t.Parallel()
	c := Random()
	s := c.String()
	if !Validate(s) {
		t.Error("Validate rejected a freshly generated 137-byte checksum")
	}
	if Validate(s[8:]) {
		t.Error("Validate accepted a 129-byte checksum (only 72/137 are valid)")
	}
}
