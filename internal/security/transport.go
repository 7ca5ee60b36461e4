// Package security provides SSRF protection for outbound HTTP requests.
//
// Campaign media URLs are tenant-supplied, and the messaging gateway base
// URL is operator configuration; neither may ever point the platform at
// internal infrastructure such as the cloud metadata service
// (169.254.169.254), localhost, or private network ranges. SafeTransport
// enforces the blocklist at dial time so DNS tricks cannot bypass a
// URL-level check.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// dnsTimeout caps DNS resolution during dial and redirect checks.
const dnsTimeout = 500 * time.Millisecond

// ErrBlocked is returned when a request targets a blocked IP range.
var ErrBlocked = errors.New("ssrf: request to blocked IP range")

// ErrDNSTimeout is returned when DNS resolution exceeds the timeout.
var ErrDNSTimeout = errors.New("ssrf: DNS resolution timeout")

// ErrTooManyRedirects is returned when the redirect limit is exceeded.
var ErrTooManyRedirects = errors.New("ssrf: too many redirects")

// ErrDNSFailed is returned when DNS resolution fails entirely.
var ErrDNSFailed = errors.New("ssrf: DNS resolution failed")

// blockedNets holds loopback, link-local, private, and special-purpose
// ranges. Parsed at init; the literals are compile-time constants, so a
// parse failure is a programmer error.
var blockedNets = mustParseNets(
	"127.0.0.0/8",    // loopback
	"10.0.0.0/8",     // private
	"172.16.0.0/12",  // private
	"192.168.0.0/16", // private
	"169.254.0.0/16", // link-local (cloud metadata)
	"100.64.0.0/10",  // carrier-grade NAT
	"0.0.0.0/8",      // "this network"
	"224.0.0.0/4",    // multicast
	"240.0.0.0/4",    // reserved
	"198.18.0.0/15",  // benchmark testing
	"::1/128",        // IPv6 loopback
	"fe80::/10",      // IPv6 link-local
	"fc00::/7",       // IPv6 unique-local
)

func mustParseNets(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("security: invalid CIDR literal %q: %v", cidr, err))
		}
		nets = append(nets, ipNet)
	}
	return nets
}

func isBlockedIP(ip net.IP) bool {
	for _, ipNet := range blockedNets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for testability.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type netResolver struct {
	r *net.Resolver
}

func (nr *netResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return nr.r.LookupIPAddr(ctx, host)
}

// SafeTransport wraps http.Transport with dial-time IP validation. Every
// resolved address is checked against the blocklist before any connection
// is made, so a hostname mixing one public and one private A record is
// rejected outright.
type SafeTransport struct {
	Base *http.Transport

	// Resolver is used for DNS lookups. If nil, net.DefaultResolver is
	// used. Exposed for testing.
	Resolver Resolver
}

// NewSafeTransport creates a SafeTransport wrapping the provided base
// transport. If base is nil, a default http.Transport is used.
func NewSafeTransport(base *http.Transport) *SafeTransport {
	if base == nil {
		base = &http.Transport{}
	}
	st := &SafeTransport{Base: base}
	base.DialContext = st.safeDialContext
	return st
}

// RoundTrip implements http.RoundTripper. The base transport carries the
// SSRF-validating DialContext.
func (st *SafeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return st.Base.RoundTrip(req)
}

func (st *SafeTransport) safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ssrf: invalid address %q: %w", addr, err)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return nil, fmt.Errorf("%w: %s", ErrBlocked, ip.String())
		}
		dialer := &net.Dialer{}
		return dialer.DialContext(ctx, network, addr)
	}

	resolver := st.getResolver()
	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := resolver.LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return nil, fmt.Errorf("%w: host %q", ErrDNSTimeout, host)
		}
		return nil, fmt.Errorf("%w: host %q: %v", ErrDNSFailed, host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: host %q resolved to no addresses", ErrDNSFailed, host)
	}

	// Validate ALL resolved IPs before connecting to any. A single safe
	// record must not launder a private one (DNS rebinding).
	for _, ipAddr := range ips {
		if isBlockedIP(ipAddr.IP) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrBlocked, ipAddr.IP.String(), host)
		}
	}

	target := net.JoinHostPort(ips[0].IP.String(), port)
	dialer := &net.Dialer{}
	return dialer.DialContext(ctx, network, target)
}

func (st *SafeTransport) getResolver() Resolver {
	if st.Resolver != nil {
		return st.Resolver
	}
	return &netResolver{r: net.DefaultResolver}
}

// CheckRedirect returns an http.Client CheckRedirect function that bounds
// the redirect chain and validates every redirect target against the
// blocklist. resolver is optional; if nil, net.DefaultResolver is used.
func CheckRedirect(maxRedirects int, resolver Resolver) func(req *http.Request, via []*http.Request) error {
	if resolver == nil {
		resolver = &netResolver{r: net.DefaultResolver}
	}

	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, maxRedirects)
		}

		host := req.URL.Hostname()
		if host == "" {
			return fmt.Errorf("%w: redirect URL has no host", ErrBlocked)
		}

		if ip := net.ParseIP(host); ip != nil {
			if isBlockedIP(ip) {
				return fmt.Errorf("%w: redirect to %s", ErrBlocked, ip.String())
			}
			return nil
		}

		dnsCtx, cancel := context.WithTimeout(req.Context(), dnsTimeout)
		defer cancel()

		ips, err := resolver.LookupIPAddr(dnsCtx, host)
		if err != nil {
			if dnsCtx.Err() != nil {
				return fmt.Errorf("%w: redirect host %q", ErrDNSTimeout, host)
			}
			return fmt.Errorf("%w: redirect host %q: %v", ErrDNSFailed, host, err)
		}
		for _, ipAddr := range ips {
			if isBlockedIP(ipAddr.IP) {
				return fmt.Errorf("%w: redirect to %s (resolved from %s)", ErrBlocked, ipAddr.IP.String(), host)
			}
		}
		return nil
	}
}

// NewSafeHTTPClient creates an http.Client with SafeTransport and
// SSRF-aware redirect checking. The external gateway and lookup clients
// use it for all outbound calls.
func NewSafeHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	transport := NewSafeTransport(nil)
	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: CheckRedirect(maxRedirects, transport.Resolver),
	}
}

// ValidateURL resolves a URL's host and rejects it when any resolved
// address falls in a blocked range. Campaign dispatch runs it over
// tenant-supplied media URLs before a job is ever enqueued, so operators
// get the failure at submit time rather than buried in worker logs.
func ValidateURL(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("%w: unable to extract host from URL", ErrBlocked)
	}
	host := parsed.Hostname()

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: %s", ErrBlocked, ip.String())
		}
		return nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	resolver := &netResolver{r: net.DefaultResolver}
	ips, err := resolver.LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return fmt.Errorf("%w: host %q", ErrDNSTimeout, host)
		}
		return fmt.Errorf("%w: host %q: %v", ErrDNSFailed, host, err)
	}
	for _, ipAddr := range ips {
		if isBlockedIP(ipAddr.IP) {
			return fmt.Errorf("%w: %s (resolved from %s)", ErrBlocked, ipAddr.IP.String(), host)
		}
	}
	return nil
}
