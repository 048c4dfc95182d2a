package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// ErrInvalidAddress is returned when an identity string cannot be parsed.
var ErrInvalidAddress = errors.New("model: invalid address")

// Address is a 20-byte participant identity. It is rendered as 0x-prefixed
// big-endian hex and also accepts Neo base58 addresses on input.
type Address util.Uint160

// ZeroAddress is the null identity. It is never a valid shareholder.
var ZeroAddress Address

// ParseAddress parses "0x"-prefixed hex or a Neo address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroAddress, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		u, err := util.Uint160DecodeStringBE(s[2:])
		if err != nil {
			return ZeroAddress, fmt.Errorf("%w: %s", ErrInvalidAddress, s)
		}
		return Address(u), nil
	}
	u, err := address.StringToUint160(s)
	if err != nil {
		return ZeroAddress, fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	return Address(u), nil
}

// MustParseAddress is ParseAddress that panics on error. Tests and constants only.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes builds an address from 20 big-endian bytes.
func AddressFromBytes(b []byte) (Address, error) {
	u, err := util.Uint160DecodeBytesBE(b)
	if err != nil {
		return ZeroAddress, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return Address(u), nil
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) Bytes() []byte {
	return util.Uint160(a).BytesBE()
}

func (a Address) String() string {
	return "0x" + util.Uint160(a).StringBE()
}

// NeoAddress returns the base58 Neo form of the identity.
func (a Address) NeoAddress() string {
	return address.Uint160ToString(util.Uint160(a))
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
