// Package meta derives client context from request headers.
package meta

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ClientContext is the normalized view of who sent a request. Empty strings
// mean the value was absent.
type ClientContext struct {
	IP           string `json:"ip_address"`
	ForwardedFor string `json:"forwarded_for"`
	Geo          string `json:"geo_location"`
	UserAgent    string `json:"agent"`
	Referer      string `json:"referer"`
	Origin       string `json:"origin"`
	Language     string `json:"language"`
}

type Extractor struct {
	CountryHeaders []string
	CityHeaders    []string
}

// DefaultExtractor reads Cloudflare and App Engine geo headers.
func DefaultExtractor() Extractor {
	return Extractor{
		CountryHeaders: []string{"CF-IPCountry", "X-AppEngine-Country"},
		CityHeaders:    []string{"CF-IPCity"},
	}
}

// Extract never fails; missing or malformed headers yield empty fields.
// remoteAddr is the connection-level peer address, host:port or bare host.
func (e Extractor) Extract(headers http.Header, remoteAddr string) ClientContext {
	return ClientContext{
		IP:           ClientIP(headers, remoteAddr),
		ForwardedFor: strings.TrimSpace(headers.Get("X-Forwarded-For")),
		Geo:          e.geo(headers),
		UserAgent:    headers.Get("User-Agent"),
		Referer:      RefererHost(headers.Get("Referer")),
		Origin:       origin(headers),
		Language:     firstListEntry(headers.Get("Accept-Language")),
	}
}

// ClientIP resolves X-Forwarded-For (first hop), X-Real-IP, X-Client-IP and
// finally the connection address. The first non-empty candidate wins.
func ClientIP(headers http.Header, remoteAddr string) string {
	candidates := []string{
		firstListEntry(headers.Get("X-Forwarded-For")),
		strings.TrimSpace(headers.Get("X-Real-IP")),
		strings.TrimSpace(headers.Get("X-Client-IP")),
		hostOnly(remoteAddr),
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// RefererHost returns the bare hostname of a Referer value.
func RefererHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func origin(headers http.Header) string {
	if v := strings.TrimSpace(headers.Get("Origin")); v != "" {
		return v
	}
	return strings.TrimSpace(headers.Get("Host"))
}

func (e Extractor) geo(headers http.Header) string {
	country := firstHeader(headers, e.CountryHeaders)
	city := firstHeader(headers, e.CityHeaders)
	switch {
	case country != "" && city != "":
		return country + ", " + city
	case country != "":
		return country
	default:
		return city
	}
}

func firstHeader(headers http.Header, names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(headers.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func firstListEntry(value string) string {
	first, _, _ := strings.Cut(value, ",")
	return strings.TrimSpace(first)
}

func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
