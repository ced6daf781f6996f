package provider

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateBaseURL validates the SiliconFlow base URL from the credentials.
//
// It rejects userinfo/query/fragment and, unless allowPrivate is set,
// loopback/private/link-local hosts. Self-hosted gateways in a private
// network need allowPrivate.
func ValidateBaseURL(raw string, allowPrivate bool) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base url scheme %q (must be http or https)", u.Scheme)
	}

	if u.Hostname() == "" {
		return fmt.Errorf("invalid base url host %q", u.Host)
	}

	if u.User != nil {
		return fmt.Errorf("base url must not contain userinfo")
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("base url must not contain a query or fragment")
	}

	if !allowPrivate && isPrivateOrLoopbackHost(u.Hostname()) {
		return fmt.Errorf("base url host %q is private/loopback (set allow_private_base_url to override)", u.Hostname())
	}

	return nil
}

func isPrivateOrLoopbackHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}

	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}

	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return true
	}
	return !ip.IsGlobalUnicast()
}
