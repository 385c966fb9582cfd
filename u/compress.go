package u

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

type Compression int

const (
	CompressNone Compression = iota
	CompressGzip
	CompressZstd
	CompressBrotli
)

func (c Compression) String() string {
	switch c {
	case CompressGzip:
		return "gzip"
	case CompressZstd:
		return "zstd"
	case CompressBrotli:
		return "brotli"
	}
	return "none"
}

// CompressionForPath picks compression based on file extension
// TODO: could sniff file content instead of checking file extension
func CompressionForPath(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return CompressGzip
	case ".zst", ".zstd":
		return CompressZstd
	case ".br":
		return CompressBrotli
	}
	return CompressNone
}

func getErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func zstdNewWriter(dst io.Writer) (*zstd.Encoder, error) {
	// zstd.SpeedBestCompression is much slower and not much better
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
}

// CompressData compresses d with c
func CompressData(c Compression, d []byte) ([]byte, error) {
	var dst bytes.Buffer
	var w io.WriteCloser
	switch c {
	case CompressNone:
		return d, nil
	case CompressGzip:
		gw, err := gzip.NewWriterLevel(&dst, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		w = gw
	case CompressZstd:
		zw, err := zstdNewWriter(&dst)
		if err != nil {
			return nil, err
		}
		w = zw
	case CompressBrotli:
		w = brotli.NewWriterLevel(&dst, brotli.BestCompression)
	default:
		return nil, fmt.Errorf("unknown compression %d", int(c))
	}
	_, err := w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

// DecompressData reverses CompressData
func DecompressData(c Compression, d []byte) ([]byte, error) {
	r := bytes.NewReader(d)
	switch c {
	case CompressNone:
		return d, nil
	case CompressGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	case CompressZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case CompressBrotli:
		return io.ReadAll(brotli.NewReader(r))
	}
	return nil, fmt.Errorf("unknown compression %d", int(c))
}
