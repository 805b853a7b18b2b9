// Package playlist renders channel entries as Extended M3U and writes the file.
package playlist

import (
	"encoding/json"
	"strings"

	"github.com/snapetech/json2m3u/internal/channel"
)

// CookieMode selects how a session cookie reaches the player. Players disagree
// on which form they read, so exactly one is emitted per playlist.
type CookieMode string

const (
	// CookieEXTHTTP emits #EXTHTTP:{"cookie":"..."} before the URL line.
	CookieEXTHTTP CookieMode = "exthttp"
	// CookiePipe appends |User-Agent=...&Cookie=... to the URL line.
	CookiePipe CookieMode = "pipe"
)

const (
	licenseTypeLine = "#KODIPROP:inputstream.adaptive.license_type=clearkey"
	licenseKeyPfx   = "#KODIPROP:inputstream.adaptive.license_key="
)

// Options control rendering. The zero value renders no EPG header, no user
// agent line value and #EXTHTTP cookies.
type Options struct {
	EPGURL     string
	UserAgent  string
	CookieMode CookieMode
}

// Lines renders the playlist as lines, without newlines.
func Lines(entries []channel.Entry, opts Options) []string {
	lines := make([]string, 0, 2+len(entries)*5)
	lines = append(lines, "#EXTM3U")
	if opts.EPGURL != "" {
		lines = append(lines, `#EXTM3U x-tvg-url="`+attr(opts.EPGURL)+`"`)
	}
	for _, e := range entries {
		if e.URL == "" {
			continue
		}
		lines = appendEntry(lines, e, opts)
	}
	return lines
}

// Build renders entries as a complete document: lines joined by "\n" plus a
// trailing newline. Output depends only on its inputs.
func Build(entries []channel.Entry, opts Options) []byte {
	return []byte(strings.Join(Lines(entries, opts), "\n") + "\n")
}

func appendEntry(lines []string, e channel.Entry, opts Options) []string {
	var b strings.Builder
	b.WriteString("#EXTINF:-1")
	if e.ID != "" {
		b.WriteString(` tvg-id="` + attr(e.ID) + `"`)
	}
	if e.Group != "" {
		b.WriteString(` group-title="` + attr(e.Group) + `"`)
	}
	if e.Logo != "" {
		b.WriteString(` tvg-logo="` + attr(e.Logo) + `"`)
	}
	b.WriteString("," + oneLine(e.Name))
	lines = append(lines, b.String())

	if e.HasDRM() {
		lines = append(lines,
			licenseTypeLine,
			licenseKeyPfx+oneLine(e.KeyID)+":"+oneLine(e.Key),
		)
	}
	ua := oneLine(opts.UserAgent)
	lines = append(lines, "#EXTVLCOPT:http-user-agent="+ua)

	streamURL := oneLine(e.URL)
	if e.Cookie != "" {
		cookie := oneLine(e.Cookie)
		if opts.CookieMode == CookiePipe {
			streamURL += "|User-Agent=" + ua + "&Cookie=" + cookie
		} else {
			lines = append(lines, "#EXTHTTP:"+cookieJSON(cookie))
		}
	}
	return append(lines, streamURL)
}

// cookieJSON encodes {"cookie":...} without HTML escaping; tokens such as
// __hdnea__ carry '&' and '~' that players expect verbatim.
func cookieJSON(cookie string) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	// Encoding a map[string]string cannot fail.
	_ = enc.Encode(map[string]string{"cookie": cookie})
	return strings.TrimSuffix(b.String(), "\n")
}

// attr makes s safe inside a double-quoted M3U attribute.
func attr(s string) string {
	return strings.ReplaceAll(oneLine(s), `"`, "'")
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func oneLine(s string) string {
	return lineBreaks.Replace(s)
}
