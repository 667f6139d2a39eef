package catlang

import (
	"fmt"
	"strconv"
)

// Base selects how print statements render integers.
type Base int

const (
	BaseDecimal Base = iota
	BaseHexadecimal
	BaseBinary
)

// Keywords accepted by the config statement.
const (
	keywordDec = "dec"
	keywordHex = "hex"
	keywordBin = "bin"
)

// ParseBase maps dec, hex and bin to a Base. The match is case-sensitive.
func ParseBase(s string) (Base, bool) {
	switch s {
	case keywordDec:
		return BaseDecimal, true
	case keywordHex:
		return BaseHexadecimal, true
	case keywordBin:
		return BaseBinary, true
	}
	return BaseDecimal, false
}

// String returns the config keyword for b.
func (b Base) String() string {
	switch b {
	case BaseHexadecimal:
		return keywordHex
	case BaseBinary:
		return keywordBin
	default:
		return keywordDec
	}
}

// Format renders value in base. Hex and binary use the raw two's-complement
// bit pattern, so negative numbers have no sign.
func Format(value int32, base Base) string {
	switch base {
	case BaseHexadecimal:
		return "0x" + strconv.FormatUint(uint64(uint32(value)), 16)
	case BaseBinary:
		return fmt.Sprintf("%032b", uint32(value))
	default:
		return strconv.FormatInt(int64(value), 10)
	}
}
