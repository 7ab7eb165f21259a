package crypto

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the different types of human-readable address prefixes.
type AddressPrefix string

const (
	DefilPrefix  AddressPrefix = "defil"
	ModulePrefix AddressPrefix = "defilmod"
)

// AddressLength is the size of the raw address payload.
const AddressLength = 20

var ErrInvalidAddress = errors.New("crypto: invalid address")

// Address represents a 20-byte participant or module account with a specific
// prefix. Address values are comparable and may be used as map keys.
type Address struct {
	prefix AddressPrefix
	bytes  [AddressLength]byte
}

func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("%w: address must be %d bytes long, got %d", ErrInvalidAddress, AddressLength, len(b))
	}
	if prefix == "" {
		prefix = DefilPrefix
	}
	addr := Address{prefix: prefix}
	copy(addr.bytes[:], b)
	return addr, nil
}

// MustNewAddress is NewAddress for inputs known to be well formed.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// ModuleAddress derives the deterministic account that holds a module's
// assets.
func ModuleAddress(name string) Address {
	digest := crypto.Keccak256([]byte("module/" + name))
	return MustNewAddress(ModulePrefix, digest[len(digest)-AddressLength:])
}

func (a Address) String() string {
	prefix := a.prefix
	if prefix == "" {
		prefix = DefilPrefix
	}
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.bytes[:])
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	if a.prefix == "" {
		return DefilPrefix
	}
	return a.prefix
}

// IsZero reports whether the payload is all zero bytes.
func (a Address) IsZero() bool {
	return a.bytes == [AddressLength]byte{}
}

// Equal compares payloads, ignoring the prefix.
func (a Address) Equal(other Address) bool {
	return a.bytes == other.bytes
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	switch AddressPrefix(prefix) {
	case DefilPrefix, ModulePrefix:
	default:
		return Address{}, fmt.Errorf("%w: unknown prefix %q", ErrInvalidAddress, prefix)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}
