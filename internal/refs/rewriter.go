package refs

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// FixFunc returns the replacement for one attribute value. Returning value
// unchanged leaves the tag byte-for-byte as it was.
type FixFunc func(tag, attr, value string) (string, error)

// Rewrite walks the markup and passes every URL-bearing attribute through fix.
// Only tags with a changed attribute are re-serialized; all other bytes are copied
// verbatim. The first error from fix stops the walk.
func Rewrite(content string, fix FixFunc) (string, error) {
	z := html.NewTokenizer(strings.NewReader(content))
	var out strings.Builder
	out.Grow(len(content))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return out.String(), nil
			}
			return "", z.Err()
		}
		raw := string(z.Raw())
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.WriteString(raw)
			continue
		}

		tok := z.Token()
		attrs := urlAttributes[tok.Data]
		if len(attrs) == 0 {
			out.WriteString(raw)
			continue
		}

		changed := false
		for i, a := range tok.Attr {
			if a.Namespace != "" || !IsURLAttribute(tok.Data, a.Key) {
				continue
			}
			v, err := fix(tok.Data, a.Key, a.Val)
			if err != nil {
				return "", err
			}
			if v != a.Val {
				tok.Attr[i].Val = v
				changed = true
			}
		}
		if changed {
			out.WriteString(tok.String())
		} else {
			out.WriteString(raw)
		}
	}
}
