package codec

import (
	"math"
	"strings"
)

// Bracket is the closed interval of values a symbol may stand for. Max may be
// +Inf for the top symbol.
type Bracket struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (b Bracket) Contains(v float64) bool { return v >= b.Min && v <= b.Max }

// Unbounded reports whether the bracket has no finite upper limit.
func (b Bracket) Unbounded() bool { return math.IsInf(b.Max, 1) }

// Quantizer is one encoding policy. Encode is lossy; DecodeRange returns the
// bracket of inputs that encode to the symbol. Implementations are immutable
// and safe for concurrent use.
type Quantizer interface {
	Encode(v float64) Symbol
	DecodeRange(s Symbol) Bracket
	Name() string
}

// EncodeString quantizes values into an alphabet string.
func EncodeString(q Quantizer, values []float64) string {
	var b strings.Builder
	b.Grow(len(values))
	for _, v := range values {
		b.WriteByte(q.Encode(v).Char())
	}
	return b.String()
}

// Span merges the brackets of every symbol in s (ignoring NoData) into one
// bracket. ok is false when s holds no data.
func Span(q Quantizer, s string) (Bracket, bool) {
	var seen [64]bool
	for i := 0; i < len(s); i++ {
		seen[MustSymbolOf(s[i])] = true
	}
	out := Bracket{Min: math.Inf(1), Max: math.Inf(-1)}
	ok := false
	for sym := Symbol(1); sym <= MaxSymbol; sym++ {
		if !seen[sym] {
			continue
		}
		br := q.DecodeRange(sym)
		out.Min = math.Min(out.Min, br.Min)
		out.Max = math.Max(out.Max, br.Max)
		ok = true
	}
	if !ok {
		return Bracket{}, false
	}
	return out, true
}
