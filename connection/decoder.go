package connection

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DecodeBody returns the response body, transparently decompressed when the
// Content-Encoding header announces gzip. Closing the result closes resp.Body.
func DecodeBody(resp *http.Response) (io.ReadCloser, error) {
	if !isGzipEncoded(resp.Header) {
		return resp.Body, nil
	}

	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("open gzip stream: %w", err)}
	}
	return &gzipBody{zr: zr, raw: resp.Body}, nil
}

func isGzipEncoded(header http.Header) bool {
	for _, value := range header.Values("Content-Encoding") {
		for _, encoding := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(encoding), "gzip") {
				return true
			}
		}
	}
	return false
}

type gzipBody struct {
	zr  *gzip.Reader
	raw io.ReadCloser
}

func (b *gzipBody) Read(p []byte) (int, error) {
	return b.zr.Read(p)
}

func (b *gzipBody) Close() error {
	return errors.Join(b.zr.Close(), b.raw.Close())
}
