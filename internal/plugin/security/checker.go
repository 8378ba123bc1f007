package security

import (
	"errors"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// Confinement errors. The API layer reports them to plugins as
// PermissionDenied.
var (
	// ErrPathOutsideStorage is returned for paths that escape the storage root.
	ErrPathOutsideStorage = errors.New("path outside plugin storage")

	// ErrNoStorage is returned when no storage root is configured.
	ErrNoStorage = errors.New("plugin has no storage area")

	// ErrHostBlocked is returned for hosts on the block list.
	ErrHostBlocked = errors.New("host is blocked")

	// ErrHostNotAllowed is returned for hosts missing from a non-empty allow list.
	ErrHostNotAllowed = errors.New("host not in allowed list")

	// ErrSchemeNotAllowed is returned for URLs that are not http or https.
	ErrSchemeNotAllowed = errors.New("only http and https URLs are allowed")
)

// Policy configures the confinement applied to one plugin.
type Policy struct {
	// StorageRoot is the only directory fs:* calls may touch.
	StorageRoot string

	// AllowedHosts restricts network:fetch when non-empty. Supports "*.example.com".
	AllowedHosts []string

	// BlockedHosts always takes precedence over AllowedHosts.
	BlockedHosts []string
}

// Checker enforces a Policy. It is immutable and safe for concurrent use.
type Checker struct {
	storageRoot  string
	allowedHosts []string
	blockedHosts []string
}

// NewChecker creates a checker for the given policy.
func NewChecker(p Policy) *Checker {
	c := &Checker{}
	if p.StorageRoot != "" {
		c.storageRoot = normalizePath(p.StorageRoot)
	}
	for _, h := range p.AllowedHosts {
		c.allowedHosts = append(c.allowedHosts, strings.ToLower(h))
	}
	for _, h := range p.BlockedHosts {
		c.blockedHosts = append(c.blockedHosts, strings.ToLower(h))
	}
	return c
}

// StorageRoot returns the normalized storage directory.
func (c *Checker) StorageRoot() string {
	return c.storageRoot
}

// ResolvePath maps a plugin-supplied path to an absolute path inside the
// storage root. Relative paths are resolved against the root.
func (c *Checker) ResolvePath(path string) (string, error) {
	if c.storageRoot == "" {
		return "", ErrNoStorage
	}
	var target string
	if filepath.IsAbs(path) {
		target = filepath.Clean(path)
	} else {
		target = filepath.Join(c.storageRoot, path)
	}
	if !isWithinPath(target, c.storageRoot) {
		return "", ErrPathOutsideStorage
	}
	return target, nil
}

// CheckURL validates an outbound request URL and returns it parsed.
func (c *Checker) CheckURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrSchemeNotAllowed
	}
	if err := c.CheckHost(u.Host); err != nil {
		return nil, err
	}
	return u, nil
}

// CheckHost checks a host or host:port against the allow and block lists.
func (c *Checker) CheckHost(host string) error {
	hostOnly := strings.ToLower(extractHost(host))

	for _, blocked := range c.blockedHosts {
		if matchHost(hostOnly, blocked) {
			return ErrHostBlocked
		}
	}

	if len(c.allowedHosts) > 0 {
		for _, allowed := range c.allowedHosts {
			if matchHost(hostOnly, allowed) {
				return nil
			}
		}
		return ErrHostNotAllowed
	}

	return nil
}

// normalizePath returns an absolute, clean path.
func normalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// isWithinPath checks if target is within or equal to base using filepath.Rel.
// "/tmp/store" does not contain "/tmp/storefile".
func isWithinPath(target, base string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// IsWithinPath reports whether target lies inside base.
func IsWithinPath(target, base string) bool {
	return isWithinPath(normalizePath(target), normalizePath(base))
}

// extractHost extracts the host from a host:port string.
// Handles IPv6 addresses like [::1]:8080 and regular host:port.
func extractHost(hostPort string) string {
	host, _, err := net.SplitHostPort(hostPort)
	if err == nil {
		return host
	}
	if strings.HasPrefix(hostPort, "[") && strings.HasSuffix(hostPort, "]") {
		return hostPort[1 : len(hostPort)-1]
	}
	return hostPort
}

// matchHost checks if a host matches a pattern.
// Supports wildcard matching (e.g., "*.example.com").
func matchHost(host, pattern string) bool {
	if host == pattern {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	return false
}
