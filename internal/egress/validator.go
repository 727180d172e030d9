// Package egress gates every outbound URL the service is pointed at so a
// sync or lookup can never be aimed at internal infrastructure.
package egress

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
)

// ErrUnsafeDestination is returned for URLs that must never be fetched.
var ErrUnsafeDestination = errors.New("unsafe destination")

// Hostnames that expose instance metadata on cloud platforms.
var metadataHosts = map[string]struct{}{
	"metadata.google.internal": {},
	"metadata.goog":            {},
	"metadata":                 {},
}

// Validator rejects URLs pointing at loopback, link-local, metadata or
// private destinations. It is stateless and safe for concurrent use.
type Validator struct {
	// AllowPrivate permits RFC1918 destinations (with a warning) so the
	// service can be pointed at fixtures during local testing.
	AllowPrivate bool
	Logger       *slog.Logger
}

// Validate checks a raw URL before any outbound request, including redirect
// targets. It returns ErrUnsafeDestination (wrapped) on a veto.
func (v *Validator) Validate(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: unparseable url %q", ErrUnsafeDestination, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", ErrUnsafeDestination, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrUnsafeDestination)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: loopback host %q", ErrUnsafeDestination, host)
	}
	if _, ok := metadataHosts[host]; ok {
		return fmt.Errorf("%w: metadata host %q", ErrUnsafeDestination, host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Hostname form. Redirects are refused at the transport layer, so a
		// hostname cannot be used to bounce to an unsafe address.
		return nil
	}

	switch {
	case ip.IsLoopback():
		return fmt.Errorf("%w: loopback address %s", ErrUnsafeDestination, ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		// Covers 169.254.0.0/16 (cloud metadata block) and fe80::/10.
		return fmt.Errorf("%w: link-local address %s", ErrUnsafeDestination, ip)
	case ip.IsUnspecified():
		return fmt.Errorf("%w: unspecified address %s", ErrUnsafeDestination, ip)
	case isUniqueLocal(ip):
		return fmt.Errorf("%w: unique-local address %s", ErrUnsafeDestination, ip)
	case ip.IsPrivate():
		if v.AllowPrivate {
			if v.Logger != nil {
				v.Logger.Warn("allowing private destination", "host", host)
			}
			return nil
		}
		return fmt.Errorf("%w: private address %s", ErrUnsafeDestination, ip)
	}
	return nil
}

// isUniqueLocal reports whether ip is in fc00::/7.
func isUniqueLocal(ip net.IP) bool {
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return false
	}
	return v6[0]&0xfe == 0xfc
}
