package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, AddressLength)
	addr := MustNewAddress(DefilPrefix, raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, "defil1") {
		t.Fatalf("unexpected encoding %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %v != %v", decoded, addr)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("payload mismatch")
	}
}

func TestAddressRejectsBadInput(t *testing.T) {
	if _, err := NewAddress(DefilPrefix, []byte{1, 2, 3}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatalf("expected decode failure")
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	a := ModuleAddress("market")
	b := ModuleAddress("market")
	if a != b {
		t.Fatalf("module address not deterministic")
	}
	if a.Prefix() != ModulePrefix {
		t.Fatalf("unexpected prefix %s", a.Prefix())
	}
	if a.Equal(ModuleAddress("other")) {
		t.Fatalf("distinct modules share an address")
	}
}

func TestAddressText(t *testing.T) {
	addr := MustNewAddress(DefilPrefix, bytes.Repeat([]byte{0x01}, AddressLength))
	text, err := addr.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Address
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != addr {
		t.Fatalf("text round trip mismatch")
	}
}
