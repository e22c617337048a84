package dataset

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names the on-disk encoding of a dataset file, picked from the
// file extension.
type Compression string

const (
	None Compression = ""
	Zstd Compression = "zstd"
	S2   Compression = "s2"
	LZ4  Compression = "lz4"
)

func CompressionFor(name string) Compression {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zst", ".zstd":
		return Zstd
	case ".s2":
		return S2
	case ".lz4":
		return LZ4
	}
	return None
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("zstd decoder: %v", err))
		}
		return d
	},
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		e, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			panic(fmt.Sprintf("zstd encoder: %v", err))
		}
		return e
	},
}

func Decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case None:
		return data, nil
	case Zstd:
		d := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(d)
		out, err := d.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case S2:
		out, err := s2.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("s2 decompress: %w", err)
		}
		return out, nil
	case LZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown compression %q", c)
}

func Compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case None:
		return data, nil
	case Zstd:
		e := zstdEncoderPool.Get().(*zstd.Encoder)
		defer zstdEncoderPool.Put(e)
		return e.EncodeAll(data, nil), nil
	case S2:
		return s2.EncodeBetter(nil, data), nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown compression %q", c)
}
