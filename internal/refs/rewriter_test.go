package refs

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteReplacesEveryOccurrence(t *testing.T) {
	in := `<p>x</p><img src="file:///img.png">...<img src="file:///img.png" alt="b">`
	out, err := Rewrite(in, func(tag, attr, value string) (string, error) {
		if value == "file:///img.png" {
			return "https://cdn.example/img.png", nil
		}
		return value, nil
	})
	require.NoError(t, err)
	assert.Equal(t, `<p>x</p><img src="https://cdn.example/img.png">...<img src="https://cdn.example/img.png" alt="b">`, out)
	assert.NotContains(t, out, "file:///img.png")
}

func TestRewriteLeavesUntouchedMarkupVerbatim(t *testing.T) {
	in := "<DIV Class='x'>a &amp; b<!-- c --><IMG SRC='https://x.example/i.png'  ></DIV>\n<script>if (a<b) {}</script>"
	calls := 0
	out, err := Rewrite(in, func(tag, attr, value string) (string, error) {
		calls++
		return value, nil
	})
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 1, calls)
}

func TestRewriteOnlyVisitsURLAttributes(t *testing.T) {
	var seen []string
	_, err := Rewrite(`<a href="u1" title="t"><img src="u2" alt="u3"><td background="u4"><p data="u5">`, func(tag, attr, value string) (string, error) {
		seen = append(seen, tag+"."+attr+"="+value)
		return value, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.href=u1", "img.src=u2", "td.background=u4"}, seen)
}

func TestRewriteEscapesReplacedValues(t *testing.T) {
	out, err := Rewrite(`<img src="file:///a.png"/>`, func(tag, attr, value string) (string, error) {
		return "https://cdn.example/a.png?x=1&y=2", nil
	})
	require.NoError(t, err)
	assert.Equal(t, `<img src="https://cdn.example/a.png?x=1&amp;y=2"/>`, out)
}

func TestRewriteStopsOnError(t *testing.T) {
	boom := errors.New("upload failed")
	_, err := Rewrite(`<img src="a"><img src="b">`, func(tag, attr, value string) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRewriteEmpty(t *testing.T) {
	out, err := Rewrite("", func(tag, attr, value string) (string, error) { return value, nil })
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.False(t, strings.Contains(out, "<"))
}
