package config

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("JSON_SOURCE_URL", "https://example.com/channels.json")
	c := Load()
	if c.SourceURL != "https://example.com/channels.json" {
		t.Errorf("SourceURL = %q", c.SourceURL)
	}
	if c.OutputPath != DefaultOutputPath {
		t.Errorf("OutputPath = %q, want %q", c.OutputPath, DefaultOutputPath)
	}
	if c.EPGURL != DefaultEPGURL {
		t.Errorf("EPGURL = %q", c.EPGURL)
	}
	if c.PlayerUserAgent != DefaultPlayerUserAgent {
		t.Errorf("PlayerUserAgent = %q", c.PlayerUserAgent)
	}
	if c.CookieMode != CookieEXTHTTP {
		t.Errorf("CookieMode = %q", c.CookieMode)
	}
	if c.ProbeMode != ProbeOff || c.ProbeEnabled() {
		t.Errorf("ProbeMode = %q, enabled = %v; want off", c.ProbeMode, c.ProbeEnabled())
	}
	if c.FetchTimeout != 15*time.Second || c.ProbeTimeout != 5*time.Second {
		t.Errorf("timeouts = %v / %v", c.FetchTimeout, c.ProbeTimeout)
	}
	if c.ProbeConcurrency != 10 {
		t.Errorf("ProbeConcurrency = %d, want 10", c.ProbeConcurrency)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoad_overrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("JSON_SOURCE_URL", "http://src/x.json")
	os.Setenv("JSON2M3U_OUTPUT", "/tmp/out.m3u")
	os.Setenv("JSON2M3U_COOKIE_MODE", "PIPE")
	os.Setenv("JSON2M3U_PROBE", "strict")
	os.Setenv("JSON2M3U_PROBE_TIMEOUT", "2s")
	os.Setenv("JSON2M3U_PROBE_CONCURRENCY", "3")
	os.Setenv("JSON2M3U_PROBE_RATE", "7.5")
	c := Load()
	if c.OutputPath != "/tmp/out.m3u" {
		t.Errorf("OutputPath = %q", c.OutputPath)
	}
	if c.CookieMode != CookiePipe {
		t.Errorf("CookieMode = %q", c.CookieMode)
	}
	if c.ProbeMode != ProbeStrict || !c.ProbeEnabled() {
		t.Errorf("ProbeMode = %q", c.ProbeMode)
	}
	if c.ProbeTimeout != 2*time.Second || c.ProbeConcurrency != 3 || c.ProbeRate != 7.5 {
		t.Errorf("probe settings = %v / %d / %v", c.ProbeTimeout, c.ProbeConcurrency, c.ProbeRate)
	}
}

func TestLoad_emptyEPGDisablesHeader(t *testing.T) {
	os.Clearenv()
	os.Setenv("JSON2M3U_EPG_URL", "")
	c := Load()
	if c.EPGURL != "" {
		t.Errorf("explicitly empty EPG URL should stay empty; got %q", c.EPGURL)
	}
}

func TestLoad_invalidNumbersFallBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("JSON2M3U_PROBE_CONCURRENCY", "-4")
	os.Setenv("JSON2M3U_FETCH_TIMEOUT", "soon")
	os.Setenv("JSON2M3U_PROBE_RATE", "fast")
	c := Load()
	if c.ProbeConcurrency != DefaultProbeConcurrency {
		t.Errorf("ProbeConcurrency = %d", c.ProbeConcurrency)
	}
	if c.FetchTimeout != DefaultFetchTimeout {
		t.Errorf("FetchTimeout = %v", c.FetchTimeout)
	}
	if c.ProbeRate != 0 {
		t.Errorf("ProbeRate = %v", c.ProbeRate)
	}
}

func TestProbeModeAliases(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ProbeOff},
		{"true", ProbePermissive},
		{"1", ProbePermissive},
		{"on", ProbePermissive},
		{"false", ProbeOff},
		{"Strict", ProbeStrict},
		{"permissive", ProbePermissive},
		{"bogus", "bogus"},
	}
	for _, tt := range tests {
		os.Clearenv()
		if tt.in != "" {
			os.Setenv("JSON2M3U_PROBE", tt.in)
		}
		if got := Load().ProbeMode; got != tt.want {
			t.Errorf("JSON2M3U_PROBE=%q: ProbeMode = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseProbeMode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"true", ProbePermissive},
		{" YES ", ProbePermissive},
		{"0", ProbeOff},
		{"no", ProbeOff},
		{"STRICT", ProbeStrict},
		{"off", ProbeOff},
		{"sometimes", "sometimes"},
	}
	for _, tt := range tests {
		if got := ParseProbeMode(tt.in); got != tt.want {
			t.Errorf("ParseProbeMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantKey string
	}{
		{"missing source", nil, "JSON_SOURCE_URL"},
		{"non-http source", map[string]string{"JSON_SOURCE_URL": "file:///etc/passwd"}, "JSON_SOURCE_URL"},
		{"bad probe", map[string]string{"JSON_SOURCE_URL": "http://x", "JSON2M3U_PROBE": "maybe"}, "JSON2M3U_PROBE"},
		{"bad cookie", map[string]string{"JSON_SOURCE_URL": "http://x", "JSON2M3U_COOKIE_MODE": "header"}, "JSON2M3U_COOKIE_MODE"},
		{"bad epg", map[string]string{"JSON_SOURCE_URL": "http://x", "JSON2M3U_EPG_URL": "epg.xml"}, "JSON2M3U_EPG_URL"},
		{"bad log format", map[string]string{"JSON_SOURCE_URL": "http://x", "JSON2M3U_LOG_FORMAT": "xml"}, "JSON2M3U_LOG_FORMAT"},
		{"ok", map[string]string{"JSON_SOURCE_URL": "http://x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			err := Load().Validate()
			if tt.wantKey == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if ce.Key != tt.wantKey {
				t.Errorf("ConfigError.Key = %q, want %q", ce.Key, tt.wantKey)
			}
		})
	}
}
