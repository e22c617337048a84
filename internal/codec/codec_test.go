package codec

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func TestAlphabet_OrderAndLookup(t *testing.T) {
	require.Len(t, Alphabet, 64)
	require.Equal(t, byte('A'), Symbol(0).Char())
	require.Equal(t, byte('a'), Symbol(26).Char())
	require.Equal(t, byte('0'), Symbol(52).Char())
	require.Equal(t, byte('/'), MaxSymbol.Char())

	for i := 0; i < 64; i++ {
		s, ok := SymbolOf(Alphabet[i])
		require.True(t, ok)
		require.Equal(t, Symbol(i), s)
	}
	_, ok := SymbolOf('=')
	require.False(t, ok)
	require.Equal(t, NoData, MustSymbolOf('-'))
	require.Equal(t, 3, FirstInvalid("ABC=D"))
	require.Equal(t, -1, FirstInvalid("AB+/"))
	require.Equal(t, 5, CountNonZero("AAABBBAAA/A9"))
}

func TestExponential_EncodeBreakpoints(t *testing.T) {
	q := NewExponentialTable()
	cases := map[float64]Symbol{
		-4:     0,
		0:      0,
		4.2:    0,
		4.3:    1,
		255.99: 59,
		256:    60,
		511:    60,
		512:    61,
		1023:   61,
		1024:   62,
		2047:   62,
		2048:   63,
		1e9:    63,
	}
	for v, want := range cases {
		require.Equal(t, want, q.Encode(v), "value %v", v)
	}
}

func TestExponential_DecodeBracketsOriginal(t *testing.T) {
	q := NewExponentialTable()
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 20000; i++ {
		v := r.Float64() * 4096
		br := q.DecodeRange(q.Encode(v))
		require.True(t, v >= br.Min-eps && v <= br.Max+eps, "v=%v bracket=%+v", v, br)
	}
	top := q.DecodeRange(MaxSymbol)
	require.True(t, top.Unbounded())
	require.Equal(t, 2048.0, top.Min)
}

func TestHybrid_CapsMaxY(t *testing.T) {
	h, err := NewHybrid(100, 200)
	require.NoError(t, err)
	require.Equal(t, 63, h.MaxY())

	_, err = NewHybrid(0, 10)
	require.Error(t, err)
	_, err = NewHybrid(10, 0)
	require.Error(t, err)
}

func TestHybrid_LinearAndLogBranches(t *testing.T) {
	h, err := NewHybrid(100, 50)
	require.NoError(t, err)

	require.Equal(t, NoData, h.Encode(-1))
	require.Equal(t, Symbol(0), h.Encode(0))
	require.Equal(t, Symbol(25), h.Encode(50))
	require.Equal(t, Symbol(50), h.Encode(100))

	// ceil(log2 100) = 7
	require.Equal(t, Symbol(50), h.Encode(128))
	require.Equal(t, Symbol(51), h.Encode(129))
	require.Equal(t, Symbol(51), h.Encode(256))
	require.Equal(t, Symbol(52), h.Encode(257))
	require.Equal(t, MaxSymbol, h.Encode(math.Exp2(40)))
}

func TestHybrid_RoundTripBracketsOriginal(t *testing.T) {
	params := []struct {
		maxX float64
		maxY int
	}{
		{100, 50},
		{256, 40},
		{35.5, 60},
		{0.75, 20},
		{500, 63},
	}
	r := rand.New(rand.NewPCG(7, 11))
	for _, p := range params {
		h, err := NewHybrid(p.maxX, p.maxY)
		require.NoError(t, err)
		for i := 0; i < 20000; i++ {
			var v float64
			if i%2 == 0 {
				v = r.Float64() * p.maxX
			} else {
				v = p.maxX * math.Exp2(r.Float64()*20)
			}
			s := h.Encode(v)
			br := h.DecodeRange(s)
			require.True(t, v >= br.Min-eps && v <= br.Max+eps,
				"maxX=%v maxY=%d v=%v sym=%d bracket=%+v", p.maxX, p.maxY, v, s, br)
		}
	}
}

func TestHybrid_TopSymbolUnbounded(t *testing.T) {
	h, err := NewHybrid(100, 50)
	require.NoError(t, err)
	require.True(t, h.DecodeRange(MaxSymbol).Unbounded())
	require.False(t, h.DecodeRange(55).Unbounded())
}

func TestEncode_NonFinite(t *testing.T) {
	h, err := NewHybrid(100, 50)
	require.NoError(t, err)
	for _, q := range []Quantizer{NewExponentialTable(), h} {
		require.Equal(t, MaxSymbol, q.Encode(math.Inf(1)), q.Name())
		require.Equal(t, NoData, q.Encode(math.Inf(-1)), q.Name())
		require.Equal(t, NoData, q.Encode(math.NaN()), q.Name())
		require.True(t, q.DecodeRange(q.Encode(math.Inf(1))).Contains(math.Inf(1)), q.Name())
	}
	require.Equal(t, MaxSymbol, h.Encode(math.MaxFloat64))
}

func TestEncodeString_AndSpan(t *testing.T) {
	q := NewExponentialTable()
	s := EncodeString(q, []float64{0, 300, 3000, -5})
	require.Equal(t, "A8/A", s)

	br, ok := Span(q, s)
	require.True(t, ok)
	require.Equal(t, 256.0, br.Min)
	require.True(t, br.Unbounded())

	_, ok = Span(q, "AAAA")
	require.False(t, ok)
}

func TestRegistry(t *testing.T) {
	require.Equal(t, []string{"exponential", "hybrid"}, Names())

	q, err := New("hybrid", Params{MaxX: 100, MaxY: 50})
	require.NoError(t, err)
	require.Equal(t, "hybrid", q.Name())

	q, err = New("exponential", Params{})
	require.NoError(t, err)
	require.Equal(t, "exponential", q.Name())

	_, err = New("nope", Params{})
	require.Error(t, err)
	_, err = New("hybrid", Params{})
	require.Error(t, err)
}
