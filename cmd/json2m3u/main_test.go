package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snapetech/json2m3u/internal/channel"
	"github.com/snapetech/json2m3u/internal/config"
	"github.com/snapetech/json2m3u/internal/convert"
	"github.com/snapetech/json2m3u/internal/playlist"
	"github.com/snapetech/json2m3u/internal/source"
)

func setBaseEnv(t *testing.T, sourceURL, out string) {
	t.Helper()
	t.Setenv("JSON_SOURCE_URL", sourceURL)
	t.Setenv("JSON2M3U_OUTPUT", out)
	t.Setenv("JSON2M3U_PROBE", "off")
	t.Setenv("JSON2M3U_LOG_FORMAT", "json")
	t.Setenv("JSON2M3U_METRICS_FILE", "")
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&config.ConfigError{Key: "JSON_SOURCE_URL", Reason: "not set"}, exitConfig},
		{&source.FetchError{URL: "http://x", StatusCode: 502}, exitFetch},
		{&source.DecodeError{Err: errors.New("bad")}, exitDecode},
		{&channel.SchemaError{Root: "number"}, exitSchema},
		{&convert.InterruptedError{Stage: "probe", Err: context.Canceled}, exitInterrupted},
		{fmt.Errorf("wrapped: %w", &playlist.WriteError{Path: "p", Op: "rename", Err: os.ErrPermission}), exitWrite},
		{errors.New("boom"), exitOther},
	}
	for _, c := range cases {
		if got := exitCode(c.err); got != c.want {
			t.Errorf("exitCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestRealMain_run(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"101":{"url":"https://a.example/101.mpd"}}`))
	}))
	defer srv.Close()
	out := filepath.Join(t.TempDir(), "playlist.m3u")
	setBaseEnv(t, srv.URL, out)

	var stdout, stderr bytes.Buffer
	if code := realMain([]string{"-env", noEnvFile(t), "-epg", ""}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "#EXTM3U\n" +
		"#EXTINF:-1 tvg-id=\"101\",Channel 101\n" +
		"#EXTVLCOPT:http-user-agent=" + config.DefaultPlayerUserAgent + "\n" +
		"https://a.example/101.mpd\n"
	if string(data) != want {
		t.Errorf("playlist:\n%s\nwant:\n%s", data, want)
	}
	if !strings.Contains(stderr.String(), `"run_id"`) {
		t.Errorf("log lines should carry run_id: %s", stderr.String())
	}
}

func TestRealMain_missingSource(t *testing.T) {
	setBaseEnv(t, "", filepath.Join(t.TempDir(), "p.m3u"))
	var stdout, stderr bytes.Buffer
	if code := realMain([]string{"-env", noEnvFile(t)}, &stdout, &stderr); code != exitConfig {
		t.Errorf("exit %d, want %d", code, exitConfig)
	}
}

func TestRealMain_badFlagValue(t *testing.T) {
	setBaseEnv(t, "http://127.0.0.1:1/", filepath.Join(t.TempDir(), "p.m3u"))
	var stdout, stderr bytes.Buffer
	if code := realMain([]string{"run", "-env", noEnvFile(t), "-cookie-mode", "header"}, &stdout, &stderr); code != exitConfig {
		t.Errorf("exit %d, want %d", code, exitConfig)
	}
}

func TestRealMain_schemaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`42`))
	}))
	defer srv.Close()
	out := filepath.Join(t.TempDir(), "p.m3u")
	setBaseEnv(t, srv.URL, out)
	var stdout, stderr bytes.Buffer
	if code := realMain([]string{"-env", noEnvFile(t)}, &stdout, &stderr); code != exitSchema {
		t.Errorf("exit %d, want %d", code, exitSchema)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("no playlist should be written, stat err = %v", err)
	}
}

func TestRealMain_fetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()
	setBaseEnv(t, srv.URL, filepath.Join(t.TempDir(), "p.m3u"))
	var stdout, stderr bytes.Buffer
	if code := realMain([]string{"-env", noEnvFile(t)}, &stdout, &stderr); code != exitFetch {
		t.Errorf("exit %d, want %d", code, exitFetch)
	}
}

func TestRealMain_envFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"channel_name":"One","channel_url":"https://a.example/1.m3u8"}]`))
	}))
	defer srv.Close()
	dir := t.TempDir()
	out := filepath.Join(dir, "from-env.m3u")
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("JSON2M3U_OUTPUT="+out+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JSON_SOURCE_URL", srv.URL)
	t.Setenv("JSON2M3U_LOG_FORMAT", "json")
	os.Unsetenv("JSON2M3U_OUTPUT")
	t.Cleanup(func() { os.Unsetenv("JSON2M3U_OUTPUT") })

	var stdout, stderr bytes.Buffer
	if code := realMain([]string{"-env", envPath}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output from env file not written: %v", err)
	}
}

func TestRealMain_probeCommand(t *testing.T) {
	streams := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.m3u8" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer streams.Close()
	body := fmt.Sprintf(`[{"channel_name":"Live","channel_url":"%s/live.m3u8"},{"channel_name":"Gone","channel_url":"%s/gone.m3u8"}]`, streams.URL, streams.URL)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer src.Close()
	out := filepath.Join(t.TempDir(), "p.m3u")
	setBaseEnv(t, src.URL, out)

	var stdout, stderr bytes.Buffer
	if code := realMain([]string{"probe", "-env", noEnvFile(t)}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	report := stdout.String()
	for _, want := range []string{"STATUS", "ok", "not_found", "Live", "Gone", "1/2 channels kept under permissive policy"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("probe must not write a playlist, stat err = %v", err)
	}
}

func TestRealMain_unknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := realMain([]string{"serve"}, &stdout, &stderr); code != exitOther {
		t.Errorf("exit %d, want %d", code, exitOther)
	}
}

func TestRealMain_booleanLivenessFlag(t *testing.T) {
	streams := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.m3u8" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer streams.Close()
	body := fmt.Sprintf(`[{"channel_name":"Live","channel_url":"%s/live.m3u8"},{"channel_name":"Gone","channel_url":"%s/gone.m3u8"}]`, streams.URL, streams.URL)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer src.Close()
	out := filepath.Join(t.TempDir(), "p.m3u")
	setBaseEnv(t, src.URL, out)

	var stdout, stderr bytes.Buffer
	if code := realMain([]string{"-env", noEnvFile(t), "-probe=true"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), ",Live") || strings.Contains(string(data), ",Gone") {
		t.Errorf("-probe=true should apply the permissive policy:\n%s", data)
	}
}
