package httpclient

import (
	"context"
	"net/url"
	"sync"
)

// HostSemaphore is a per-host concurrency limiter. Probing a few hundred
// channels usually means a handful of CDN hosts; capping in-flight requests per
// host keeps one origin from seeing the whole worker pool at once.
//
//	release, err := sem.Acquire(ctx, streamURL)
//	if err != nil { ... }
//	defer release()
type HostSemaphore struct {
	mu    sync.Mutex
	sems  map[string]chan struct{}
	limit int
}

// NewHostSemaphore returns a limiter allowing concurrency requests per host.
// concurrency < 1 disables limiting (Acquire never blocks).
func NewHostSemaphore(concurrency int) *HostSemaphore {
	return &HostSemaphore{
		sems:  make(map[string]chan struct{}),
		limit: concurrency,
	}
}

// Acquire blocks until a slot is available for the host of rawURL or ctx is done.
func (h *HostSemaphore) Acquire(ctx context.Context, rawURL string) (func(), error) {
	if h == nil || h.limit < 1 {
		return func() {}, nil
	}
	sem := h.semFor(rawURL)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *HostSemaphore) semFor(rawURL string) chan struct{} {
	key := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		key = u.Scheme + "://" + u.Host
	}
	h.mu.Lock()
	s, ok := h.sems[key]
	if !ok {
		s = make(chan struct{}, h.limit)
		h.sems[key] = s
	}
	h.mu.Unlock()
	return s
}
