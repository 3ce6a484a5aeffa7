package pool

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultServer is used when no servers are configured.
	DefaultServer = "http://127.0.0.1:4200"
	// DefaultPort is assumed when a server spec carries no port.
	DefaultPort = "4200"
)

// ParseServers normalizes raw server specs into base URLs of the form
// scheme://host:port. Supported spec formats:
//   - bare host: "crate-1.example.com"
//   - host and port: "crate-1.example.com:4200"
//   - full URL: "https://crate-1.example.com:4200"
//
// Specs without a scheme get defaultScheme, specs without a port get port
// 4200. Any path, query or fragment is discarded. Duplicates are dropped
// keeping the first occurrence, so the returned order is the configuration
// order.
func ParseServers(specs []string, defaultScheme string) ([]string, error) {
	if defaultScheme == "" {
		defaultScheme = "http"
	}

	servers := make([]string, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		normalized, err := normalizeServerURL(spec, defaultScheme)
		if err != nil {
			return nil, fmt.Errorf("invalid server %q: %w", spec, err)
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		servers = append(servers, normalized)
	}
	return servers, nil
}

// normalizeServerURL trims, validates, and normalizes a single server spec.
// Requires an http or https scheme and a host once defaults are applied.
func normalizeServerURL(spec, defaultScheme string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", fmt.Errorf("empty server spec")
	}

	if !strings.Contains(spec, "://") {
		spec = defaultScheme + "://" + spec
	}

	parsed, err := url.Parse(spec)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL must have http or https scheme: %s", spec)
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("URL must have a host: %s", spec)
	}

	host := parsed.Host
	if parsed.Port() == "" {
		host += ":" + DefaultPort
	}

	return parsed.Scheme + "://" + host, nil
}
