package utils

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
)

// CompressionAlgorithm identifies how a chunk's content is encoded at rest.
type CompressionAlgorithm string

const (
	CompressionNone CompressionAlgorithm = "none"
	CompressionGzip CompressionAlgorithm = "gzip"
	CompressionZlib CompressionAlgorithm = "zlib"
)

// Chunks below this size are stored uncompressed; the header overhead
// outweighs any savings.
const compressionFloor = 500

// CompressData encodes data with the given algorithm.
func CompressData(data []byte, algorithm CompressionAlgorithm) ([]byte, error) {
	if len(data) == 0 || algorithm == CompressionNone {
		return data, nil
	}

	var buf bytes.Buffer
	var w io.WriteCloser
	switch algorithm {
	case CompressionGzip:
		w = gzip.NewWriter(&buf)
	case CompressionZlib:
		w = zlib.NewWriter(&buf)
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compress %s: %w", algorithm, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress %s: flush: %w", algorithm, err)
	}
	return buf.Bytes(), nil
}

// DecompressData reverses CompressData for the given algorithm.
func DecompressData(compressed []byte, algorithm CompressionAlgorithm) ([]byte, error) {
	if len(compressed) == 0 || algorithm == CompressionNone {
		return compressed, nil
	}

	var r io.ReadCloser
	var err error
	switch algorithm {
	case CompressionGzip:
		r, err = gzip.NewReader(bytes.NewReader(compressed))
	case CompressionZlib:
		r, err = zlib.NewReader(bytes.NewReader(compressed))
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", algorithm, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", algorithm, err)
	}
	return data, nil
}

// CompressText prepares chunk text for storage at rest, recording which
// algorithm was applied so reads can reverse it. Small texts are stored
// as-is.
func CompressText(text string) ([]byte, CompressionAlgorithm, error) {
	data := []byte(text)
	if len(data) < compressionFloor {
		return data, CompressionNone, nil
	}

	compressed, err := CompressData(data, CompressionGzip)
	if err != nil {
		return nil, CompressionNone, err
	}
	return compressed, CompressionGzip, nil
}

// DecompressText restores chunk text stored by CompressText.
func DecompressText(compressed []byte, algorithm CompressionAlgorithm) (string, error) {
	data, err := DecompressData(compressed, algorithm)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
