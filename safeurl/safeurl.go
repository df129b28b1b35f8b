// Package safeurl vets page URLs before domveil fetches or opens them, and
// bounds how much of a response it reads.
package safeurl

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrUnsafeScheme is returned for URLs that are not http or https.
	ErrUnsafeScheme = errors.New("safeurl: only http and https URLs are allowed")
	// ErrPrivate is returned when a URL targets a loopback, link-local or
	// private address.
	ErrPrivate = errors.New("safeurl: URL targets a private or loopback address")
	// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
	ErrTooLarge = errors.New("safeurl: response too large")
)

var privateNets = mustCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"169.254.0.0/16",
	"fc00::/7",
)

func mustCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// Check parses rawURL and rejects anything but http(s) with a host. With
// blockPrivate, hosts that are or resolve to private addresses are
// rejected too. A host that does not resolve is let through: the
// connection fails later anyway.
func Check(rawURL string, blockPrivate bool) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("safeurl: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("safeurl: %q has no host", rawURL)
	}
	if !blockPrivate {
		return u, nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivate(ip) {
			return nil, ErrPrivate
		}
		return u, nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return nil, ErrPrivate
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return u, nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && IsPrivate(ip) {
			return nil, ErrPrivate
		}
	}
	return u, nil
}

// IsPrivate reports whether ip is loopback, link-local, unspecified or in
// a private range.
func IsPrivate(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// LimitedReadAll reads at most maxBytes from r, and fails with ErrTooLarge
// rather than truncating.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
