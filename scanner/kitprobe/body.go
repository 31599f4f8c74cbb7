package kitprobe

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/text/encoding/unicode"
)

// maxBodySize 限制读取 10MB
const maxBodySize = 10 << 20

// errBodyTruncated is returned with the first maxBodySize bytes when the
// (decoded) body is larger.
var errBodyTruncated = errors.New("body exceeds size limit")

// readLimited reads at most maxBodySize bytes from r.
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodySize {
		return data[:maxBodySize], errBodyTruncated
	}
	return data, nil
}

// readBody undoes Content-Encoding and returns at most maxBodySize bytes.
// An oversized plain body comes back cut together with errBodyTruncated; an
// oversized compressed body cannot be decoded and returns no data.
func readBody(r io.Reader, contentEncoding string) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))
	raw, err := readLimited(r)
	if errors.Is(err, errBodyTruncated) {
		if encoding == "" || encoding == "identity" {
			return raw, err
		}
		return nil, fmt.Errorf("%s: %w", encoding, err)
	}
	if err != nil {
		return nil, err
	}

	switch encoding {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return readLimited(zr)
	case "br":
		return readLimited(brotli.NewReader(bytes.NewReader(raw)))
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			return readLimited(zr)
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		return readLimited(fr)
	default:
		return raw, nil
	}
}

// decodeUTF8 decodes body as UTF-8, replacing invalid sequences with U+FFFD.
// Valid UTF-8 comes back byte for byte.
func decodeUTF8(body []byte) []byte {
	out, err := unicode.UTF8.NewDecoder().Bytes(body)
	if err != nil {
		return bytes.ToValidUTF8(body, []byte("\uFFFD"))
	}
	return out
}

// ContentHash returns the hex SHA-256 digest used as the kit fingerprint.
func ContentHash(text []byte) string {
	sum := sha256.Sum256(text)
	return hex.EncodeToString(sum[:])
}
