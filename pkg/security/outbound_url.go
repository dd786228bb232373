// Package security checks addresses loom is about to send conversations to.
package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

type URLOptions struct {
	// AllowHTTP permits plain http base URLs. https is always allowed.
	AllowHTTP bool
	// AllowLocalNetworks permits localhost and loopback, private and
	// link-local addresses.
	AllowLocalNetworks bool
}

// ValidateGatewayURL checks a gateway base URL. Hostnames are not resolved,
// only IP literals are checked against the network restrictions.
func ValidateGatewayURL(rawURL string, opts URLOptions) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, "invalid URL")
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !opts.AllowHTTP {
			return errors.New("http scheme is not allowed")
		}
	default:
		return errors.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}
	if parsed.User != nil {
		return errors.New("credentials in the URL are not allowed")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return errors.New("URL host is required")
	}
	if !opts.AllowLocalNetworks && isLocalHostname(host) {
		return errors.Errorf("local hostname %q is not allowed", host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if addr.Zone() != "" && !opts.AllowLocalNetworks {
		return errors.Errorf("zoned IP address %q is not allowed", host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return errors.Errorf("disallowed IP address %q", host)
	}
	if !opts.AllowLocalNetworks && isLocalAddr(addr) {
		return errors.Errorf("local network IP %q is not allowed", host)
	}
	return nil
}

func isLocalHostname(host string) bool {
	return host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local")
}

func isLocalAddr(addr netip.Addr) bool {
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()
}
