package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// Hosts the images API serves URL results from.
	resultHosts = []string{
		"oaidalleapiprodscus.blob.core.windows.net",
		"dalleprodsec.blob.core.windows.net",
	}

	ErrPrivateIP     = errors.New("URL resolves to private IP address")
	ErrUntrustedHost = errors.New("URL host is not trusted")
	ErrInvalidScheme = errors.New("only HTTPS URLs are allowed")
)

// URLPolicy decides which edit result URLs may be downloaded.
type URLPolicy struct {
	// Strict limits downloads to the provider's result storage hosts.
	Strict bool
	// AllowHTTP and AllowPrivate relax the checks for local test servers.
	AllowHTTP    bool
	AllowPrivate bool
}

// ValidateImageURL checks rawURL against the default policy for the given
// strictness.
func ValidateImageURL(rawURL string, strict bool) error {
	return URLPolicy{Strict: strict}.Validate(rawURL)
}

func (p URLPolicy) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return ErrInvalidScheme
		}
	default:
		return ErrInvalidScheme
	}

	host := parsed.Hostname()
	if p.Strict && !isResultHost(host) {
		return fmt.Errorf("%w: %s", ErrUntrustedHost, host)
	}
	if p.AllowPrivate {
		return nil
	}
	return validateHostIP(host)
}

func isResultHost(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range resultHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func validateHostIP(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
		return nil
	}

	// Unresolvable hosts fail later at download time.
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
	}
	return nil
}

var reservedV4 = []*net.IPNet{
	mustCIDR("0.0.0.0/8"),
	mustCIDR("100.64.0.0/10"),
	mustCIDR("192.0.0.0/24"),
	mustCIDR("192.0.2.0/24"),
	mustCIDR("198.51.100.0/24"),
	mustCIDR("203.0.113.0/24"),
	mustCIDR("224.0.0.0/4"),
	mustCIDR("240.0.0.0/4"),
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		for _, n := range reservedV4 {
			if n.Contains(ip4) {
				return true
			}
		}
	}
	return false
}
