package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/diskmap/internal/layout"
)

// MinSize is the smallest payload worth compressing.
const MinSize = 64

// ErrCorrupt is returned when a compressed payload cannot be decoded.
var ErrCorrupt = errors.New("compress: corrupt payload")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Compress compresses a record payload. Compressed output is
// [uncompressed size u32][compressed bytes]. When the algorithm does not
// shrink data below 90% of its size, data is returned unchanged with
// layout.CompressionNone.
func Compress(data []byte, algo layout.Compression) ([]byte, layout.Compression, error) {
	if algo == layout.CompressionNone || len(data) < MinSize {
		return data, layout.CompressionNone, nil
	}

	out := make([]byte, 4, 4+len(data))
	binary.LittleEndian.PutUint32(out, uint32(len(data)))

	switch algo {
	case layout.CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			return data, layout.CompressionNone, nil
		}
		out = append(out, buf[:n]...)
	case layout.CompressionZstd:
		enc := getZstdEncoder()
		out = enc.EncodeAll(data, out)
		zstdEncoderPool.Put(enc)
	default:
		return nil, 0, fmt.Errorf("compress: unknown algorithm %d", algo)
	}

	if float64(len(out)) > float64(len(data))*0.9 {
		return data, layout.CompressionNone, nil
	}
	return out, algo, nil
}

// Decompress reverses Compress.
func Decompress(data []byte, algo layout.Compression) ([]byte, error) {
	if algo == layout.CompressionNone {
		return data, nil
	}
	if len(data) < 4 {
		return nil, ErrCorrupt
	}

	size := binary.LittleEndian.Uint32(data)
	body := data[4:]

	switch algo {
	case layout.CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != size {
			return nil, ErrCorrupt
		}
		return out, nil
	case layout.CompressionZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(out)) != size {
			return nil, ErrCorrupt
		}
		return out, nil
	default:
		return nil, fmt.Errorf("compress: unknown algorithm %d", algo)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w with a streaming compressor. Close flushes the stream
// but does not close w.
func NewWriter(w io.Writer, algo layout.Compression) (io.WriteCloser, error) {
	switch algo {
	case layout.CompressionNone:
		return nopWriteCloser{w}, nil
	case layout.CompressionLZ4:
		return lz4.NewWriter(w), nil
	case layout.CompressionZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("compress: unknown algorithm %d", algo)
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// NewReader wraps r with a streaming decompressor.
func NewReader(r io.Reader, algo layout.Compression) (io.ReadCloser, error) {
	switch algo {
	case layout.CompressionNone:
		return io.NopCloser(r), nil
	case layout.CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case layout.CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	default:
		return nil, fmt.Errorf("compress: unknown algorithm %d", algo)
	}
}

// Parse maps a configuration name to an algorithm.
func Parse(name string) (layout.Compression, error) {
	switch name {
	case "", "none":
		return layout.CompressionNone, nil
	case "lz4":
		return layout.CompressionLZ4, nil
	case "zstd":
		return layout.CompressionZstd, nil
	default:
		return 0, fmt.Errorf("compress: unknown algorithm %q", name)
	}
}

// Name returns the configuration name of algo.
func Name(algo layout.Compression) string {
	switch algo {
	case layout.CompressionLZ4:
		return "lz4"
	case layout.CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}
