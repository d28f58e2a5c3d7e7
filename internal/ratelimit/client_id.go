package ratelimit

import (
	"net"
	"strings"
)

const keyPrefixLen = 5

// ClientID derives the rate-limit identity from the network origin and the
// first characters of the presented credential. The first entry of
// X-Forwarded-For wins over the socket address.
func ClientID(remoteAddr, forwardedFor, apiKey string) string {
	ip := ""
	if forwardedFor != "" {
		ip = strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}
	if ip == "" {
		ip = strings.TrimSpace(remoteAddr)
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
	}
	if ip == "" {
		ip = "unknown"
	}

	prefix := apiKey
	if len(prefix) > keyPrefixLen {
		prefix = prefix[:keyPrefixLen]
	}
	return ip + ":" + prefix
}
