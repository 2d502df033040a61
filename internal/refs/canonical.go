package refs

import (
	"net/url"
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

type canonicalEntry struct {
	value string
	ok    bool
}

// Posts repeat the same handful of references many times over.
var canonicalCache, _ = lru.New[string, canonicalEntry](4096)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ftp":   "21",
}

// Canonicalize turns a reference into the form used to compare it against tracked
// files. ok is false when the value is not a well-formed absolute URL; such values
// are left alone by the rest of the pipeline.
//
// Canonical form: lower-case scheme and host, default port dropped, percent-encoding
// re-applied from the decoded path, dot segments resolved, trailing slash removed
// (except for the root), fragment dropped, query keys sorted. For file URIs the
// drive letter is upper-cased and backslashes become slashes.
func Canonicalize(raw string) (string, bool) {
	if e, hit := canonicalCache.Get(raw); hit {
		return e.value, e.ok
	}
	v, ok := canonicalize(raw)
	canonicalCache.Add(raw, canonicalEntry{value: v, ok: ok})
	return v, ok
}

func canonicalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if len(s) > 5 && strings.EqualFold(s[:5], "file:") {
		s = strings.ReplaceAll(s, `\`, "/")
	}

	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Opaque != "" {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment, u.RawFragment = "", ""

	switch u.Scheme {
	case "file":
		// file://C:/dir parses the drive as the host
		if len(u.Host) == 2 && u.Host[1] == ':' {
			u.Path = "/" + u.Host + u.Path
			u.Host = ""
		}
		if u.Host == "localhost" {
			u.Host = ""
		}
		u.OmitHost = false // file:/x and file:///x are the same file
		if len(u.Path) >= 3 && u.Path[0] == '/' && u.Path[2] == ':' {
			u.Path = "/" + strings.ToUpper(u.Path[1:2]) + u.Path[2:]
		}
	default:
		if u.Host == "" {
			return "", false
		}
		if port := u.Port(); port != "" && defaultPorts[u.Scheme] == port {
			u.Host = u.Hostname()
		}
	}

	u.Path = cleanPath(u.Path)
	u.RawPath = ""
	if u.RawQuery != "" {
		if q, err := url.ParseQuery(u.RawQuery); err == nil {
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), true
}

func cleanPath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	c := path.Clean(p)
	if c == "." {
		return "/"
	}
	return c
}

// IsURL reports whether the value is a reference the pipeline should look at at all.
func IsURL(raw string) bool {
	_, ok := Canonicalize(raw)
	return ok
}

// IsFileReference reports whether the value points at a local file.
func IsFileReference(raw string) bool {
	c, ok := Canonicalize(raw)
	return ok && strings.HasPrefix(c, "file:")
}
