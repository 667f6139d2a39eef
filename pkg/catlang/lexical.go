package catlang

import "strings"

// Tokenize splits a line on single spaces the way getline with a ' '
// delimiter does: consecutive spaces yield empty tokens, an empty line yields
// no tokens and one trailing separator does not add a trailing empty token.
func Tokenize(line string) []string {
	if line == "" {
		return nil
	}
	tokens := strings.Split(line, " ")
	if tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isASCIIDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// IsIdentifier reports whether tok matches [a-zA-Z][a-zA-Z0-9]*.
func IsIdentifier(tok string) bool {
	if tok == "" || !isASCIILetter(tok[0]) {
		return false
	}
	for i := 1; i < len(tok); i++ {
		if !isASCIILetter(tok[i]) && !isASCIIDigit(tok[i]) {
			return false
		}
	}
	return true
}

// IsInteger reports whether tok matches -?[0-9]+.
func IsInteger(tok string) bool {
	digits := strings.TrimPrefix(tok, "-")
	if digits == "" {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if !isASCIIDigit(digits[i]) {
			return false
		}
	}
	return true
}

// parseInteger converts a token accepted by IsInteger. Values outside the
// int32 range wrap modulo 2^32, matching native fixed-width arithmetic.
func parseInteger(tok string) int32 {
	negative := strings.HasPrefix(tok, "-")
	digits := strings.TrimPrefix(tok, "-")

	var acc uint32
	for i := 0; i < len(digits); i++ {
		acc = acc*10 + uint32(digits[i]-'0')
	}
	if negative {
		acc = -acc
	}
	return int32(acc)
}
