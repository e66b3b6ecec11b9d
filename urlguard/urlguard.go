// Package urlguard checks monitored page URLs before they are fetched and
// bounds how much of a response is read.
package urlguard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// MaxBody is the default cap on a captured response body (5 MiB).
const MaxBody int64 = 5 << 20

var (
	// ErrPrivateAddress is returned for URLs targeting loopback or private networks.
	ErrPrivateAddress = errors.New("urlguard: URL targets a private or loopback address")
	// ErrScheme is returned for schemes other than http and https.
	ErrScheme = errors.New("urlguard: only http and https URLs can be monitored")
	// ErrTooLarge is returned by ReadAll when the limit is exceeded.
	ErrTooLarge = errors.New("urlguard: body too large")
)

var privateNets = mustCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"fc00::/7",
)

// Validator checks a URL. Validate is the production implementation; tests
// that fetch from httptest servers on loopback swap in Syntax.
type Validator func(rawURL string) error

// Validate accepts absolute http(s) URLs whose host is not, and does not
// resolve to, a private or loopback address. Hosts that fail to resolve are
// accepted; the fetch itself will fail.
func Validate(rawURL string) error {
	u, err := parse(rawURL)
	if err != nil {
		return err
	}
	host := u.Hostname()

	if ip := net.ParseIP(host); ip != nil {
		if isPrivate(ip) {
			return ErrPrivateAddress
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return ErrPrivateAddress
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivate(ip) {
			return ErrPrivateAddress
		}
	}
	return nil
}

// Syntax only checks that rawURL is an absolute http(s) URL with a host.
func Syntax(rawURL string) error {
	_, err := parse(rawURL)
	return err
}

// ReadAll reads r up to max bytes and fails with ErrTooLarge beyond that.
func ReadAll(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, max)
	}
	return data, nil
}

func parse(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("urlguard: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, ErrScheme
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("urlguard: URL has no host")
	}
	return u, nil
}

func isPrivate(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

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
