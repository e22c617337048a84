package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Source fetches the decoded bytes of a dataset by manifest location.
type Source interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FileSource reads locations relative to Dir and decompresses them by
// extension.
type FileSource struct {
	Dir string
}

func (s FileSource) Path(location string) string {
	if filepath.IsAbs(location) || s.Dir == "" {
		return location
	}
	return filepath.Join(s.Dir, location)
}

func (s FileSource) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := s.Path(location)
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read dataset file: %w", err)
	}
	out, err := Decompress(CompressionFor(p), raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return out, nil
}
