package codec

import (
	"fmt"
	"sort"
	"sync"
)

// Params carries the tunables a policy factory may read.
type Params struct {
	MaxX float64
	MaxY int
}

type Factory func(p Params) (Quantizer, error)

var (
	regMu sync.RWMutex
	reg   = map[string]Factory{}
)

func init() {
	Register("exponential", func(Params) (Quantizer, error) { return NewExponentialTable(), nil })
	Register("hybrid", func(p Params) (Quantizer, error) {
		h, err := NewHybrid(p.MaxX, p.MaxY)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
}

func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	reg[name] = f
}

func New(name string, p Params) (Quantizer, error) {
	regMu.RLock()
	f, ok := reg[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown codec policy %q (have %v)", name, Names())
	}
	q, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("codec %s: %w", name, err)
	}
	return q, nil
}

func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
