// Package convert runs one fetch → normalize → probe → build → write pass.
package convert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/json2m3u/internal/channel"
	"github.com/snapetech/json2m3u/internal/config"
	"github.com/snapetech/json2m3u/internal/httpclient"
	"github.com/snapetech/json2m3u/internal/liveness"
	"github.com/snapetech/json2m3u/internal/metrics"
	"github.com/snapetech/json2m3u/internal/playlist"
	"github.com/snapetech/json2m3u/internal/source"
)

// Deps are the collaborators a run uses. Zero values are filled in by Run.
type Deps struct {
	SourceClient *http.Client // nil = source.NewClient
	ProbeClient  *http.Client // nil = httpclient.WithTimeout(cfg.ProbeTimeout)
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Summary describes a finished run.
type Summary struct {
	Shape    channel.Shape
	Loaded   int // entries accepted by the normalizer
	Skipped  int // payload elements rejected by the normalizer
	Probed   int
	Dropped  int // removed by the liveness policy
	Written  int // channels in the output playlist
	Output   string
	Bytes    int
	Duration time.Duration
}

// InterruptedError means ctx ended before the playlist was written. The
// previous output file, if any, is untouched.
type InterruptedError struct {
	Stage string // "fetch", "probe" or "write"
	Err   error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted during %s: %v", e.Stage, e.Err)
}

func (e *InterruptedError) Unwrap() error { return e.Err }

// Run performs one conversion. It writes nothing unless every earlier stage
// succeeded; the returned error is one of *source.FetchError,
// *source.DecodeError, *channel.SchemaError, *InterruptedError or
// *playlist.WriteError.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (Summary, error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	log := deps.Logger
	start := now()
	var sum Summary

	loader := &source.Loader{
		Client:    deps.SourceClient,
		UserAgent: cfg.FetchUserAgent,
		Timeout:   cfg.FetchTimeout,
		MaxBytes:  cfg.FetchMaxBytes,
		Logger:    log,
	}
	payload, err := loader.Fetch(ctx, cfg.SourceURL)
	if err != nil {
		if ctx.Err() != nil {
			return sum, &InterruptedError{Stage: "fetch", Err: err}
		}
		return sum, err
	}
	deps.Metrics.ObserveFetch(payload.Duration, len(payload.Raw))

	res, err := channel.Normalize(payload.Raw)
	if err != nil {
		return sum, err
	}
	sum.Shape = res.Shape
	sum.Loaded = len(res.Entries)
	sum.Skipped = len(res.Skipped)
	deps.Metrics.AddLoaded(sum.Loaded)
	for _, s := range res.Skipped {
		deps.Metrics.IncSkipped(s.Reason)
		ev := log.Warn().Int("index", s.Index).Str("reason", s.Reason)
		if s.Key != "" {
			ev = ev.Str("key", s.Key)
		}
		ev.Msg("skipping payload element")
	}
	log.Info().
		Str("shape", string(res.Shape)).
		Int("entries", sum.Loaded).
		Int("skipped", sum.Skipped).
		Msg("normalized payload")

	entries := res.Entries
	if cfg.ProbeEnabled() {
		policy, err := liveness.ParsePolicy(cfg.ProbeMode)
		if err != nil {
			// Validate rejects unknown modes; reaching here is a caller bug.
			policy = liveness.PolicyPermissive
		}
		client := deps.ProbeClient
		if client == nil {
			client = httpclient.WithTimeout(cfg.ProbeTimeout)
		}
		prober := &liveness.Prober{
			Client:      client,
			Policy:      policy,
			Concurrency: cfg.ProbeConcurrency,
			Timeout:     cfg.ProbeTimeout,
			UserAgent:   cfg.FetchUserAgent,
			Limiter:     liveness.NewLimiter(cfg.ProbeRate, cfg.ProbeConcurrency),
			Hosts:       httpclient.NewHostSemaphore(cfg.ProbePerHost),
			Metrics:     deps.Metrics,
			Logger:      log,
		}
		var st liveness.Stats
		entries, st, err = prober.Filter(ctx, entries)
		if err != nil {
			return sum, &InterruptedError{Stage: "probe", Err: err}
		}
		sum.Probed, sum.Dropped = st.Probed, st.Dropped
		log.Info().
			Str("policy", string(policy)).
			Int("probed", st.Probed).
			Int("kept", st.Kept).
			Int("dropped", st.Dropped).
			Int("ok", st.ByStatus[liveness.StatusOK]).
			Int("not_found", st.ByStatus[liveness.StatusNotFound]).
			Int("timeout", st.ByStatus[liveness.StatusTimeout]).
			Int("error", st.ByStatus[liveness.StatusError]).
			Msg("liveness check done")
	}

	if err := ctx.Err(); err != nil {
		return sum, &InterruptedError{Stage: "write", Err: err}
	}
	data := playlist.Build(entries, playlist.Options{
		EPGURL:     cfg.EPGURL,
		UserAgent:  cfg.PlayerUserAgent,
		CookieMode: playlist.CookieMode(cfg.CookieMode),
	})
	if err := playlist.Write(cfg.OutputPath, data); err != nil {
		return sum, err
	}
	sum.Written = len(entries)
	sum.Output = cfg.OutputPath
	sum.Bytes = len(data)
	sum.Duration = now().Sub(start)
	deps.Metrics.MarkWritten(sum.Written, now())
	return sum, nil
}
