package codec

import (
	"errors"
	"fmt"
	"math"
)

// Hybrid encodes linearly up to MaxX and logarithmically above it:
//
//	y = round(x * maxY/maxX)                               0 <= x <= maxX
//	y = min(maxY + ceil(log2 x) - ceil(log2 maxX), 63)     x > maxX
type Hybrid struct {
	maxX      float64
	maxY      int
	slope     float64
	bitOffset int
}

var _ Quantizer = Hybrid{}

func NewHybrid(maxX float64, maxY int) (Hybrid, error) {
	if !(maxX > 0) || math.IsInf(maxX, 0) {
		return Hybrid{}, fmt.Errorf("hybrid: maxX must be positive and finite (got %v)", maxX)
	}
	if maxY <= 0 {
		return Hybrid{}, errors.New("hybrid: maxY must be positive")
	}
	maxY = min(maxY, int(MaxSymbol))
	return Hybrid{
		maxX:      maxX,
		maxY:      maxY,
		slope:     float64(maxY) / maxX,
		bitOffset: ceilLog2(maxX),
	}, nil
}

func (h Hybrid) Name() string { return "hybrid" }

func (h Hybrid) MaxX() float64 { return h.maxX }
func (h Hybrid) MaxY() int     { return h.maxY }

func (h Hybrid) Encode(v float64) Symbol {
	if v < 0 || math.IsNaN(v) {
		return NoData
	}
	if math.IsInf(v, 1) {
		return MaxSymbol
	}
	if v <= h.maxX {
		return Symbol(math.Round(v * h.slope))
	}
	y := h.maxY + ceilLog2(v) - h.bitOffset
	return Symbol(min(y, int(MaxSymbol)))
}

func (h Hybrid) DecodeRange(s Symbol) Bracket {
	y := int(s)
	if y < h.maxY {
		return Bracket{
			Min: math.Max(0, (float64(y)-0.5)/h.slope),
			Max: (float64(y) + 0.5) / h.slope,
		}
	}
	ceilX := math.Exp2(float64(h.bitOffset + y - h.maxY))
	out := Bracket{Min: ceilX / 2, Max: ceilX}
	if y == h.maxY {
		// shared by the top of the linear branch and the first log step
		out.Min = (float64(y) - 0.5) / h.slope
	} else if out.Min < h.maxX {
		out.Min = h.maxX
	}
	if s >= MaxSymbol {
		out.Max = math.Inf(1)
	}
	return out
}

func ceilLog2(v float64) int {
	return int(math.Ceil(math.Log2(v)))
}
