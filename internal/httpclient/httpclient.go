package httpclient

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16
	maxRedirects           = 10
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: newTransport(),
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}
}

// WithTimeout returns a client with the given timeout and a clone of the shared tuned transport.
func WithTimeout(timeout time.Duration) *http.Client {
	t, ok := defaultClient.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: t.Clone(),
	}
}

// Options configures a client built by New.
type Options struct {
	Timeout time.Duration
	// Headers are set on every outgoing request unless the request already carries them.
	Headers map[string]string
	// Decode advertises gzip and br and transparently decodes responses.
	Decode bool
	// Cookies keeps a per-client jar so cookies set on redirect hops are replayed.
	Cookies bool
}

// New builds a client from opts on top of a fresh clone of the Default transport.
// Redirects are followed (up to 10) and keep the injected headers.
func New(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	var rt http.RoundTripper = newTransport()
	if opts.Decode {
		rt = &DecodingTransport{Base: rt}
	}
	if len(opts.Headers) > 0 {
		rt = &HeaderMapTransport{Headers: opts.Headers, Base: rt}
	}
	c := &http.Client{
		Timeout:       opts.Timeout,
		Transport:     rt,
		CheckRedirect: limitRedirects,
	}
	if opts.Cookies {
		// cookiejar.New never returns a non-nil error.
		c.Jar, _ = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	}
	return c
}

func limitRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return http.ErrUseLastResponse
	}
	return nil
}
