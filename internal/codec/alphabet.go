// Package codec quantizes concentration values into the 64-symbol alphabet
// the datasets are stored in, and reconstructs value brackets from symbols.
package codec

import "fmt"

// Alphabet is RFC 4648 Table 1 order; index 0 ('A') means no data / zero.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	NoData    Symbol = 0
	MaxSymbol Symbol = 63
)

// Symbol is a quantized bucket in [0, 63].
type Symbol uint8

var decodeMap [256]int8

func init() {
	for i := range decodeMap {
		decodeMap[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		decodeMap[Alphabet[i]] = int8(i)
	}
}

// Char returns the alphabet character for s; s must be <= MaxSymbol.
func (s Symbol) Char() byte { return Alphabet[s&63] }

// SymbolOf returns the symbol for an alphabet character.
func SymbolOf(c byte) (Symbol, bool) {
	v := decodeMap[c]
	if v < 0 {
		return 0, false
	}
	return Symbol(v), true
}

// MustSymbolOf maps characters outside the alphabet to NoData.
func MustSymbolOf(c byte) Symbol {
	v := decodeMap[c]
	if v < 0 {
		return NoData
	}
	return Symbol(v)
}

// FirstInvalid returns the offset of the first byte outside the alphabet, or -1.
func FirstInvalid(s string) int {
	for i := 0; i < len(s); i++ {
		if decodeMap[s[i]] < 0 {
			return i
		}
	}
	return -1
}

// CountNonZero counts symbols other than NoData.
func CountNonZero(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] != Alphabet[NoData] {
			n++
		}
	}
	return n
}

func (s Symbol) String() string {
	return fmt.Sprintf("%d(%c)", uint8(s), s.Char())
}
