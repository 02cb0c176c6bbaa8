package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrUnsafeScheme is returned when a reference is not http or https.
var ErrUnsafeScheme = errors.New("fetch: only http and https references are allowed")

// ErrPrivateAddress is returned when a reference targets a loopback,
// private or link-local address.
var ErrPrivateAddress = errors.New("fetch: reference targets a private or loopback address")

// ValidateScheme checks that rawURL is an absolute http(s) URL with a host.
func ValidateScheme(rawURL string) error {
	_, err := parseHTTP(rawURL)
	return err
}

// ValidateURL is ValidateScheme plus a check that the host does not resolve
// to a private or loopback address. A DNS failure is let through: the
// request itself will fail with a network error.
func ValidateURL(rawURL string) error {
	u, err := parseHTTP(rawURL)
	if err != nil {
		return err
	}
	host := u.Hostname()

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateAddress
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrPrivateAddress
		}
	}
	return nil
}

func parseHTTP(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid reference: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("fetch: reference has no host")
	}
	return u, nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
