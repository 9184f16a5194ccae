package server

import (
	"net"
	"net/http"
	"strings"
)

// effectiveHost is the hostname tenancy is resolved from. Proxy headers are
// honoured only when http.trust_proxy is set; the standard Forwarded header
// wins over X-Forwarded-Host.
func effectiveHost(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if h := forwardedHost(r); h != "" {
			return normalizeHostname(h)
		}
	}
	return normalizeHostname(r.Host)
}

func forwardedHost(r *http.Request) string {
	if h := forwardedParam(r.Header.Get("Forwarded"), "host"); h != "" {
		return h
	}
	return strings.TrimSpace(firstListElement(r.Header.Get("X-Forwarded-Host")))
}

// forwardedParam reads one parameter from the first element of an RFC 7239
// Forwarded header.
func forwardedParam(header string, name string) string {
	for pair := range strings.SplitSeq(firstListElement(header), ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || !strings.EqualFold(k, name) {
			continue
		}
		return strings.Trim(strings.TrimSpace(v), `"`)
	}
	return ""
}

func firstListElement(raw string) string {
	first, _, _ := strings.Cut(raw, ",")
	return strings.TrimSpace(first)
}

func normalizeHostname(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.Trim(host, "[]"), ".")
	return strings.ToLower(host)
}
