// Package liveness probes stream URLs and filters channel entries by reachability.
package liveness

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/snapetech/json2m3u/internal/channel"
	"github.com/snapetech/json2m3u/internal/httpclient"
	"github.com/snapetech/json2m3u/internal/metrics"
	"github.com/snapetech/json2m3u/internal/safeurl"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultConcurrency = 10
)

// Prober runs probes for a whole entry list with bounded parallelism.
type Prober struct {
	Client      *http.Client // nil = httpclient.WithTimeout(Timeout)
	Policy      Policy
	Concurrency int           // max in-flight probes (default 10)
	Timeout     time.Duration // per probe (default 5s)
	UserAgent   string
	Limiter     *rate.Limiter             // optional global probe rate
	Hosts       *httpclient.HostSemaphore // optional per-host in-flight cap
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// Stats summarizes one Filter call.
type Stats struct {
	Probed   int
	Kept     int
	Dropped  int
	ByStatus map[Status]int
}

// ProbeAll probes every entry with at most Concurrency probes in flight and
// returns results indexed like entries. Each worker writes only its own slot,
// so completion order never affects the result. If ctx ends before every probe
// finished, ProbeAll returns ctx.Err() and the results must not be trusted.
func (p *Prober) ProbeAll(ctx context.Context, entries []channel.Entry) ([]Result, error) {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := p.Client
	if client == nil {
		client = httpclient.WithTimeout(timeout)
	}

	results := make([]Result, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.probe(gctx, entries[i].URL, client, timeout)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// Filter probes every entry and returns those the policy keeps, in input order.
// A cancelled ctx yields no entries and ctx.Err(); probes cut short by
// cancellation say nothing about the streams.
func (p *Prober) Filter(ctx context.Context, entries []channel.Entry) ([]channel.Entry, Stats, error) {
	st := Stats{ByStatus: make(map[Status]int)}
	if len(entries) == 0 {
		return entries, st, ctx.Err()
	}
	policy := p.policy()
	results, err := p.ProbeAll(ctx, entries)
	if err != nil {
		return nil, st, err
	}

	kept := make([]channel.Entry, 0, len(entries))
	for i, r := range results {
		st.Probed++
		st.ByStatus[r.Status]++
		p.Metrics.ObserveProbe(string(r.Status), r.Latency)
		keep := policy.Include(r)
		p.Metrics.IncDecision(string(policy), keep)
		p.logResult(entries[i], r, keep)
		if keep {
			kept = append(kept, entries[i])
			st.Kept++
		} else {
			st.Dropped++
		}
	}
	return kept, st, nil
}

func (p *Prober) policy() Policy {
	if p.Policy == "" {
		return PolicyPermissive
	}
	return p.Policy
}

func (p *Prober) logResult(e channel.Entry, r Result, keep bool) {
	ev := p.Logger.Debug()
	if !keep {
		ev = p.Logger.Info()
	}
	ev = ev.Str("channel", e.Name).
		Str("url", safeurl.Redact(r.URL)).
		Str("status", string(r.Status)).
		Dur("latency", r.Latency).
		Bool("kept", keep)
	if r.StatusCode != 0 {
		ev = ev.Int("code", r.StatusCode)
	}
	if r.Err != nil {
		ev = ev.Err(r.Err)
	}
	ev.Msg("probe")
}

// probe waits for the rate limiter and a host slot, then runs ProbeOne.
// Waiting counts against neither the probe timeout nor its latency.
func (p *Prober) probe(ctx context.Context, streamURL string, client *http.Client, timeout time.Duration) Result {
	if !safeurl.IsHTTPOrHTTPS(streamURL) {
		return Result{URL: streamURL, Status: StatusSkipped}
	}
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return failed(streamURL, StatusError, 0, err)
		}
	}
	release, err := p.Hosts.Acquire(ctx, streamURL)
	if err != nil {
		return failed(streamURL, StatusError, 0, err)
	}
	defer release()
	return ProbeOne(ctx, streamURL, client, p.UserAgent, timeout)
}

// NewLimiter returns a limiter for perSecond probes/second, or nil when perSecond <= 0.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
