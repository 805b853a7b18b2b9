package liveness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/snapetech/json2m3u/internal/httpclient"
	"github.com/snapetech/json2m3u/internal/safeurl"
)

// Status classifies one probe.
type Status string

const (
	StatusOK        Status = "ok"         // 2xx
	StatusNotFound  Status = "not_found"  // 404
	StatusBadStatus Status = "bad_status" // any other non-2xx
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"   // DNS, connect, TLS, ...
	StatusSkipped   Status = "skipped" // not an http(s) URL; never sent
)

// Result is the outcome of probing one stream URL.
type Result struct {
	URL        string
	Status     Status
	StatusCode int
	Latency    time.Duration
	Err        error // *ProbeError when the probe itself failed
}

// ProbeError wraps a failed probe. It never escapes Filter; the policy turns
// it into a keep or drop decision.
type ProbeError struct {
	URL string // redacted
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ProbeOne sends a HEAD to streamURL (redirects followed) bounded by timeout and
// classifies the result. No body is read.
func ProbeOne(ctx context.Context, streamURL string, client *http.Client, userAgent string, timeout time.Duration) Result {
	if !safeurl.IsHTTPOrHTTPS(streamURL) {
		return Result{URL: streamURL, Status: StatusSkipped}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if client == nil {
		client = httpclient.WithTimeout(timeout)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, streamURL, nil)
	if err != nil {
		return failed(streamURL, StatusError, time.Since(start), err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if isTimeout(err) {
			return failed(streamURL, StatusTimeout, latency, err)
		}
		return failed(streamURL, StatusError, latency, err)
	}
	resp.Body.Close()

	code := resp.StatusCode
	switch {
	case code >= 200 && code <= 299:
		return Result{URL: streamURL, Status: StatusOK, StatusCode: code, Latency: latency}
	case code == http.StatusNotFound:
		return Result{URL: streamURL, Status: StatusNotFound, StatusCode: code, Latency: latency}
	default:
		return Result{URL: streamURL, Status: StatusBadStatus, StatusCode: code, Latency: latency}
	}
}

func failed(streamURL string, s Status, latency time.Duration, err error) Result {
	return Result{
		URL:     streamURL,
		Status:  s,
		Latency: latency,
		Err:     &ProbeError{URL: safeurl.Redact(streamURL), Err: err},
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
