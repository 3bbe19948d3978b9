package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ChatIDHeader identifies a chat client for per-client quotas.
const ChatIDHeader = "X-Chat-ID"

// BaseURL is the externally visible root of the server, with a trailing
// slash, as seen by the client that sent r.
func BaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host = strings.TrimSpace(strings.Split(h, ",")[0])
	}
	return scheme + "://" + host + "/"
}

// ClientKey identifies the caller: the chat id header when present,
// otherwise the remote IP.
func ClientKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ChatIDHeader)); id != "" {
		return "chat:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
