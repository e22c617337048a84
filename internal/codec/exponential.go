package codec

import "math"

// exponential table: values below linearLimit spread linearly over symbols
// 0..59, then each doubling up to 2048 gets one reserved symbol.
const (
	linearLimit   = 256.0
	linearSymbols = 60
)

var expBreaks = [...]float64{256, 512, 1024, 2048}

// ExponentialTable is the fixed-breakpoint policy.
type ExponentialTable struct{}

var _ Quantizer = ExponentialTable{}

func NewExponentialTable() ExponentialTable { return ExponentialTable{} }

func (ExponentialTable) Name() string { return "exponential" }

func (ExponentialTable) Encode(v float64) Symbol {
	switch {
	case v < 0 || math.IsNaN(v):
		return NoData
	case v < linearLimit:
		return Symbol(math.Floor(v * linearSymbols / linearLimit))
	}
	for i := 1; i < len(expBreaks); i++ {
		if v < expBreaks[i] {
			return Symbol(linearSymbols + i - 1)
		}
	}
	return MaxSymbol
}

func (ExponentialTable) DecodeRange(s Symbol) Bracket {
	if s < linearSymbols {
		step := linearLimit / linearSymbols
		return Bracket{Min: float64(s) * step, Max: float64(s+1) * step}
	}
	i := int(s) - linearSymbols
	if i >= len(expBreaks)-1 {
		return Bracket{Min: expBreaks[len(expBreaks)-1], Max: math.Inf(1)}
	}
	return Bracket{Min: expBreaks[i], Max: expBreaks[i+1]}
}
