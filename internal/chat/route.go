package chat

import (
	"net/url"
	"strings"
)

// ParseRoute extracts the thread id from /:threadId or /<base>/:threadId.
// The root path yields "".
func ParseRoute(path, base string) (string, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segs := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	base = strings.Trim(base, "/")
	if base != "" && len(segs) > 0 && segs[0] == base {
		segs = segs[1:]
	}
	switch len(segs) {
	case 0:
		return "", true
	case 1:
		id, err := url.PathUnescape(segs[0])
		if err != nil || id == "" {
			return "", false
		}
		return id, true
	default:
		return "", false
	}
}

// ThreadPath is the route of a thread under base.
func ThreadPath(base, threadID string) string {
	base = strings.Trim(base, "/")
	if threadID == "" {
		if base == "" {
			return "/"
		}
		return "/" + base
	}
	if base == "" {
		return "/" + url.PathEscape(threadID)
	}
	return "/" + base + "/" + url.PathEscape(threadID)
}
