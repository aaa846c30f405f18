package compression

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("transaction_id,user_id,amount\nT1,U1,10.0\n"), 200)

	for _, alg := range []Algorithm{None, Gzip, Snappy, S2, Zstd, LZ4} {
		t.Run(string(alg), func(t *testing.T) {
			codec, err := New(alg)
			require.NoError(t, err)

			var buf bytes.Buffer
			w, err := codec.WrapWriter(&buf)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := codec.WrapReader(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			assert.Equal(t, payload, got)
		})
	}
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	_, err := New("brotli")
	require.Error(t, err)
}

func TestForExtension(t *testing.T) {
	tests := []struct {
		file string
		alg  Algorithm
	}{
		{"users_20240101.csv", None},
		{"users_20240101.csv.gz", Gzip},
		{"users_20240101.csv.snappy", Snappy},
		{"users_20240101.csv.s2", S2},
		{"users_20240101.csv.zst", Zstd},
		{"users_20240101.csv.lz4", LZ4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.alg, ForExtension(tt.file).Algorithm(), tt.file)
	}
}
