/*
Copyright the Varco contributors 2023

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package scan

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// NormalizeURL canonicalizes a URL so that equality means "same page":
// lowercase scheme and host, fragment dropped, default port dropped,
// consecutive slashes in the path collapsed, trailing slash stripped except
// at the root. The query string is preserved as-is. Every URL stored in a
// PageRef or used as a dedup key must have passed through here.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Wrapf(err, "parsing url %q", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.Errorf("url %q has no host", raw)
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if host, port, splitErr := net.SplitHostPort(u.Host); splitErr == nil {
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			// Re-bracket IPv6 literals that SplitHostPort unwrapped.
			if strings.Contains(host, ":") {
				host = "[" + host + "]"
			}
			u.Host = host
		}
	}

	path := u.Path
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if path == "" {
		path = "/"
	}
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	u.Path = path
	u.RawPath = ""

	return u.String(), nil
}

// SameHost reports whether two already-normalized URLs share a host.
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host == ub.Host
}

// IsLocalAddress reports whether the host names a loopback, private or
// otherwise non-public address. Scans against such targets are rejected
// unless the request explicitly allows them.
func IsLocalAddress(host string) bool {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
	}

	if host == "localhost" {
		return true
	}
	for _, suffix := range []string{".localhost", ".local", ".internal", ".lan"} {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// PageSlug turns a normalized URL into a filesystem-safe fragment used for
// per-page artifact file names. Distinct URLs keep distinct slugs within
// reasonable length by construction of the normalized form.
func PageSlug(rawURL string) string {
	s := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		s = u.Host + u.Path
		if u.RawQuery != "" {
			s += "-" + u.RawQuery
		}
	}
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 120 {
		slug = slug[:120]
	}
	if slug == "" {
		slug = "page"
	}
	return slug
}
