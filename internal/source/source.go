// Package source fetches the channel JSON document.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/snapetech/json2m3u/internal/httpclient"
	"github.com/snapetech/json2m3u/internal/safeurl"
)

const (
	// ExcerptLen bounds the raw-body excerpt carried by DecodeError.
	ExcerptLen = 500

	defaultTimeout  = 15 * time.Second
	defaultMaxBytes = 32 << 20
)

// FetchError covers everything between "start request" and "have a 2xx body":
// DNS, connect, TLS, timeout, non-2xx status, truncated read.
type FetchError struct {
	URL        string // redacted
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the fetch failed on a deadline.
func (e *FetchError) Timeout() bool {
	var ne interface{ Timeout() bool }
	return errors.Is(e.Err, context.DeadlineExceeded) || (errors.As(e.Err, &ne) && ne.Timeout())
}

// DecodeError means the body arrived but is not JSON (often an HTML error or
// captcha page served with 200).
type DecodeError struct {
	Excerpt     string // first ExcerptLen characters of the body
	ContentType string
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode source JSON (content-type %q): %v; body starts with: %q", e.ContentType, e.Err, e.Excerpt)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Payload is a syntactically valid JSON document of unspecified shape.
type Payload struct {
	Raw         json.RawMessage
	ContentType string
	Duration    time.Duration
}

// Loader fetches and validates the source document.
type Loader struct {
	Client    *http.Client // nil = built from UserAgent/Timeout
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64
	Logger    zerolog.Logger
}

// NewClient returns the HTTP client the loader uses by default: browser-like
// headers, gzip/brotli decoding, and a cookie jar for redirect chains that set
// a session cookie.
func NewClient(userAgent string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return httpclient.New(httpclient.Options{
		Timeout: timeout,
		Headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "application/json, text/plain, */*",
			"Accept-Language": "en-US,en;q=0.9",
		},
		Decode:  true,
		Cookies: true,
	})
}

// Fetch GETs rawURL and returns the body once it is known to be valid JSON.
func (l *Loader) Fetch(ctx context.Context, rawURL string) (Payload, error) {
	redacted := safeurl.Redact(rawURL)
	if !safeurl.IsHTTPOrHTTPS(rawURL) {
		return Payload{}, &FetchError{URL: redacted, Err: errors.New("not an http(s) URL")}
	}
	client := l.Client
	if client == nil {
		client = NewClient(l.UserAgent, l.Timeout)
	}
	maxBytes := l.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Payload{}, &FetchError{URL: redacted, Err: err}
	}
	l.Logger.Debug().Str("url", redacted).Msg("fetching source")
	resp, err := client.Do(req)
	if err != nil {
		return Payload{}, &FetchError{URL: redacted, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused; the body is not reported.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return Payload{}, &FetchError{URL: redacted, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return Payload{}, &FetchError{URL: redacted, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > maxBytes {
		return Payload{}, &FetchError{URL: redacted, Err: fmt.Errorf("body exceeds %d bytes", maxBytes)}
	}
	ct := resp.Header.Get("Content-Type")
	raw, err := cleanJSON(body)
	if err != nil {
		return Payload{}, &DecodeError{Excerpt: Excerpt(body, ExcerptLen), ContentType: ct, Err: err}
	}
	p := Payload{Raw: raw, ContentType: ct, Duration: time.Since(start)}
	l.Logger.Info().
		Str("url", redacted).
		Int("bytes", len(body)).
		Dur("took", p.Duration).
		Msg("fetched source")
	return p, nil
}

// cleanJSON strips a UTF-8 BOM and surrounding whitespace and checks the rest parses.
func cleanJSON(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\ufeff")))
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	if !json.Valid(trimmed) {
		var v any
		return nil, json.Unmarshal(trimmed, &v)
	}
	return trimmed, nil
}

// Excerpt returns at most n characters (runes) of b. Invalid UTF-8 is replaced.
func Excerpt(b []byte, n int) string {
	s := strings.ToValidUTF8(string(b), "\uFFFD")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
