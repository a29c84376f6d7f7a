package tag

import (
	"strings"
	"testing"
)

func pad32(hexBody string) string {
	return "0x" + hexBody + strings.Repeat("0", 64-len(hexBody))
}

func TestDecodeZeroValue(t *testing.T) {
	got, ok := Decode("0x" + strings.Repeat("0", 64))
	if ok {
		t.Errorf("all-zero tag should decode to none, got %q", got)
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	if _, ok := Decode(""); ok {
		t.Error("empty input should decode to none")
	}
}

func TestDecodePackedASCII(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"test", pad32("74657374"), "test"},
		{"fast", pad32("66617374"), "fast"},
		{"single char", pad32("61"), "a"},
		{"helpful", pad32("68656c7066756c"), "helpful"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Decode(tc.in)
			if !ok {
				t.Fatalf("Decode(%s) returned none, want %q", tc.in, tc.want)
			}
			if got != tc.want {
				t.Errorf("Decode(%s) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecodeStopsAtInteriorZero(t *testing.T) {
	// "te\x00st" packed: decoding stops at the first zero byte.
	got, ok := Decode(pad32("74650073740000ff"))
	if !ok || got != "te" {
		t.Errorf("expected %q, got %q (ok=%v)", "te", got, ok)
	}
}

func TestDecodeMalformedReturnsRaw(t *testing.T) {
	// Not valid hex: must come back verbatim, not as none.
	raw := "0xzz657374" + strings.Repeat("0", 56)
	got, ok := Decode(raw)
	if !ok {
		t.Fatal("malformed tag should not decode to none")
	}
	if got != raw {
		t.Errorf("malformed tag should be returned raw, got %q", got)
	}
}

func TestDecodeWithoutPrefix(t *testing.T) {
	got, ok := Decode("74657374" + strings.Repeat("0", 56))
	if !ok || got != "test" {
		t.Errorf("expected %q, got %q (ok=%v)", "test", got, ok)
	}
}
