// Package compression provides the codecs used for raw batch files in the
// bronze tier. Batches are written once and scanned repeatedly, so the
// default favors decompression speed; zstd is available when storage
// footprint matters more.
package compression

import (
	"compress/gzip"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/stratumdb/stratum/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy compression
	Snappy Algorithm = "snappy"
	// S2 represents s2 compression (Snappy compatible, faster)
	S2 Algorithm = "s2"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// LZ4 represents lz4 compression
	LZ4 Algorithm = "lz4"
)

// Codec wraps readers and writers of raw batch files with a compression
// algorithm. Implementations are stateless and safe for concurrent use.
type Codec interface {
	// Algorithm returns the codec's algorithm.
	Algorithm() Algorithm

	// Extension returns the file suffix appended to batch files,
	// e.g. ".zst"; empty for no compression.
	Extension() string

	// WrapWriter layers compression over w. The returned WriteCloser
	// must be closed to flush; closing it does not close w.
	WrapWriter(w io.Writer) (io.WriteCloser, error)

	// WrapReader layers decompression over r.
	WrapReader(r io.Reader) (io.ReadCloser, error)
}

// New returns the codec for the named algorithm.
func New(a Algorithm) (Codec, error) {
	switch a {
	case None, "":
		return noneCodec{}, nil
	case Gzip:
		return gzipCodec{}, nil
	case Snappy:
		return snappyCodec{}, nil
	case S2:
		return s2Codec{}, nil
	case Zstd:
		return zstdCodec{}, nil
	case LZ4:
		return lz4Codec{}, nil
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "unsupported compression algorithm").
			WithDetail("algorithm", string(a))
	}
}

// ForExtension returns the codec matching a batch filename suffix, so
// readers never depend on the writer's configuration.
func ForExtension(name string) Codec {
	switch {
	case hasSuffix(name, ".gz"):
		return gzipCodec{}
	case hasSuffix(name, ".snappy"):
		return snappyCodec{}
	case hasSuffix(name, ".s2"):
		return s2Codec{}
	case hasSuffix(name, ".zst"):
		return zstdCodec{}
	case hasSuffix(name, ".lz4"):
		return lz4Codec{}
	default:
		return noneCodec{}
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// nopWriteCloser adapts writers that need no flush.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type noneCodec struct{}

func (noneCodec) Algorithm() Algorithm { return None }
func (noneCodec) Extension() string    { return "" }
func (noneCodec) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}
func (noneCodec) WrapReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type gzipCodec struct{}

func (gzipCodec) Algorithm() Algorithm { return Gzip }
func (gzipCodec) Extension() string    { return ".gz" }
func (gzipCodec) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}
func (gzipCodec) WrapReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "gzip reader")
	}
	return zr, nil
}

type snappyCodec struct{}

func (snappyCodec) Algorithm() Algorithm { return Snappy }
func (snappyCodec) Extension() string    { return ".snappy" }
func (snappyCodec) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}
func (snappyCodec) WrapReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

type s2Codec struct{}

func (s2Codec) Algorithm() Algorithm { return S2 }
func (s2Codec) Extension() string    { return ".s2" }
func (s2Codec) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return s2.NewWriter(w), nil
}
func (s2Codec) WrapReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(r)), nil
}

type zstdCodec struct{}

func (zstdCodec) Algorithm() Algorithm { return Zstd }
func (zstdCodec) Extension() string    { return ".zst" }
func (zstdCodec) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "zstd writer")
	}
	return zw, nil
}
func (zstdCodec) WrapReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "zstd reader")
	}
	return zr.IOReadCloser(), nil
}

type lz4Codec struct{}

func (lz4Codec) Algorithm() Algorithm { return LZ4 }
func (lz4Codec) Extension() string    { return ".lz4" }
func (lz4Codec) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}
func (lz4Codec) WrapReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}
