package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// HeaderMapTransport injects fixed headers into every request it forwards.
// Headers already present on the request are left alone.
type HeaderMapTransport struct {
	Headers map[string]string
	Base    http.RoundTripper
}

func (t *HeaderMapTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.base().RoundTrip(req)
}

func (t *HeaderMapTransport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}

// DecodingTransport asks for gzip and brotli bodies and decodes them, so callers
// always read identity-encoded bytes. Setting Accept-Encoding ourselves disables
// net/http's built-in gzip handling, hence both codecs are handled here.
type DecodingTransport struct {
	Base http.RoundTripper
}

func (t *DecodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" && req.Method != http.MethodHead {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "gzip, br")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil || req.Method == http.MethodHead {
		return resp, err
	}
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		resp.Body = &decodedBody{Reader: brotli.NewReader(resp.Body), raw: resp.Body}
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body = &decodedBody{Reader: zr, raw: resp.Body, closer: zr}
	default:
		return resp, nil
	}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

type decodedBody struct {
	io.Reader
	raw    io.ReadCloser
	closer io.Closer
}

func (b *decodedBody) Close() error {
	if b.closer != nil {
		b.closer.Close()
	}
	return b.raw.Close()
}
