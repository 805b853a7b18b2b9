// Command json2m3u converts a JSON channel list into an Extended M3U playlist.
//
//	run    (default) Fetch JSON_SOURCE_URL, optionally probe streams, write the playlist.
//	probe  Fetch and probe every channel, print a status table; writes nothing.
//
// Exit codes: 0 ok, 1 other failure, 2 configuration, 3 fetch, 4 decode, 5 schema, 6 write,
// 130 interrupted before the playlist was written.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snapetech/json2m3u/internal/channel"
	"github.com/snapetech/json2m3u/internal/config"
	"github.com/snapetech/json2m3u/internal/convert"
	"github.com/snapetech/json2m3u/internal/httpclient"
	"github.com/snapetech/json2m3u/internal/liveness"
	"github.com/snapetech/json2m3u/internal/logging"
	"github.com/snapetech/json2m3u/internal/metrics"
	"github.com/snapetech/json2m3u/internal/playlist"
	"github.com/snapetech/json2m3u/internal/safeurl"
	"github.com/snapetech/json2m3u/internal/source"
)

const (
	exitOK = iota
	exitOther
	exitConfig
	exitFetch
	exitDecode
	exitSchema
	exitWrite

	exitInterrupted = 130
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(args []string, stdout, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	if cmd != "run" && cmd != "probe" {
		fmt.Fprintf(stderr, "Usage: json2m3u [run|probe] [flags]\n")
		fmt.Fprintf(stderr, "  run    Fetch JSON_SOURCE_URL and write the playlist (default)\n")
		fmt.Fprintf(stderr, "  probe  Probe every channel and print a status table\n")
		return exitOther
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", ".env", "Env file to load before reading configuration (missing file is ignored)")
	output := fs.String("o", "", "Output path, - for stdout (default: JSON2M3U_OUTPUT or playlist.m3u)")
	probeMode := fs.String("probe", "", "Liveness check: off, strict or permissive (default: JSON2M3U_PROBE or off)")
	cookieMode := fs.String("cookie-mode", "", "Cookie emission: exthttp or pipe (default: JSON2M3U_COOKIE_MODE or exthttp)")
	epgURL := fs.String("epg", "", "EPG URL for the x-tvg-url header (default: JSON2M3U_EPG_URL)")
	logLevel := fs.String("log-level", "", "Log level (default: JSON2M3U_LOG_LEVEL or info)")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus textfile metrics here (default: JSON2M3U_METRICS_FILE)")
	if err := fs.Parse(args); err != nil {
		return exitOther
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(stderr, "load %s: %v\n", *envFile, err)
		return exitConfig
	}
	cfg := config.Load()
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			cfg.OutputPath = *output
		case "probe":
			cfg.ProbeMode = config.ParseProbeMode(*probeMode)
		case "cookie-mode":
			cfg.CookieMode = strings.ToLower(*cookieMode)
		case "epg":
			cfg.EPGURL = *epgURL
		case "log-level":
			cfg.LogLevel = *logLevel
		case "metrics-file":
			cfg.MetricsFile = *metricsFile
		}
	})

	log := logging.New(stderr, cfg.LogLevel, cfg.LogFormat).With().Str("run_id", uuid.NewString()).Logger()
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	defer func() {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("metrics textfile write failed")
		}
	}()

	if cmd == "probe" {
		return runProbe(ctx, cfg, m, log, stdout)
	}

	log.Info().
		Str("source", safeurl.Redact(cfg.SourceURL)).
		Str("output", cfg.OutputPath).
		Str("probe", cfg.ProbeMode).
		Str("cookie_mode", cfg.CookieMode).
		Msg("starting conversion")
	sum, err := convert.Run(ctx, cfg, convert.Deps{Metrics: m, Logger: log})
	if err != nil {
		log.Error().Err(err).Msg("conversion failed")
		return exitCode(err)
	}
	log.Info().
		Str("output", sum.Output).
		Str("shape", string(sum.Shape)).
		Int("channels", sum.Written).
		Int("skipped", sum.Skipped).
		Int("dropped", sum.Dropped).
		Int("bytes", sum.Bytes).
		Dur("took", sum.Duration).
		Msg("playlist written")
	return exitOK
}

// runProbe prints one row per channel with the probe status and the decision the
// configured policy (permissive when probing is off) would make.
func runProbe(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log zerolog.Logger, stdout io.Writer) int {
	loader := &source.Loader{UserAgent: cfg.FetchUserAgent, Timeout: cfg.FetchTimeout, MaxBytes: cfg.FetchMaxBytes, Logger: log}
	payload, err := loader.Fetch(ctx, cfg.SourceURL)
	if err != nil {
		log.Error().Err(err).Msg("fetch failed")
		if ctx.Err() != nil {
			return exitInterrupted
		}
		return exitCode(err)
	}
	res, err := channel.Normalize(payload.Raw)
	if err != nil {
		log.Error().Err(err).Msg("normalize failed")
		return exitCode(err)
	}
	policy := liveness.PolicyPermissive
	if cfg.ProbeEnabled() {
		policy = liveness.Policy(cfg.ProbeMode)
	}
	prober := &liveness.Prober{
		Policy:      policy,
		Concurrency: cfg.ProbeConcurrency,
		Timeout:     cfg.ProbeTimeout,
		UserAgent:   cfg.FetchUserAgent,
		Limiter:     liveness.NewLimiter(cfg.ProbeRate, cfg.ProbeConcurrency),
		Hosts:       httpclient.NewHostSemaphore(cfg.ProbePerHost),
		Metrics:     m,
		Logger:      log,
	}
	results, err := prober.ProbeAll(ctx, res.Entries)
	if err != nil {
		log.Error().Err(err).Msg("probing interrupted")
		return exitCode(&convert.InterruptedError{Stage: "probe", Err: err})
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCODE\tLATENCY\tKEEP\tNAME\tURL")
	kept := 0
	for i, r := range results {
		keep := policy.Include(r)
		if keep {
			kept++
		}
		m.ObserveProbe(string(r.Status), r.Latency)
		m.IncDecision(string(policy), keep)
		code := "-"
		if r.StatusCode != 0 {
			code = fmt.Sprint(r.StatusCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%dms\t%v\t%s\t%s\n",
			r.Status, code, r.Latency.Milliseconds(), keep, res.Entries[i].Name, safeurl.Redact(r.URL))
	}
	tw.Flush()
	fmt.Fprintf(stdout, "%d/%d channels kept under %s policy\n", kept, len(results), policy)
	return exitOK
}

func exitCode(err error) int {
	var (
		ie *convert.InterruptedError
		ce *config.ConfigError
		fe *source.FetchError
		de *source.DecodeError
		se *channel.SchemaError
		we *playlist.WriteError
	)
	switch {
	case errors.As(err, &ie):
		return exitInterrupted
	case errors.As(err, &ce):
		return exitConfig
	case errors.As(err, &fe):
		return exitFetch
	case errors.As(err, &de):
		return exitDecode
	case errors.As(err, &se):
		return exitSchema
	case errors.As(err, &we):
		return exitWrite
	}
	return exitOther
}
