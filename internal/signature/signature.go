// Package signature fingerprints post content so local and server copies can be compared.
package signature

import (
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Compute returns the content version signature for a post. Line endings and
// surrounding whitespace are normalized first so a server that rewrites CRLF does
// not look like an edit.
func Compute(title, contents string) string {
	h, _ := blake2b.New256(nil) // nil key never fails
	io.WriteString(h, normalize(title))
	h.Write([]byte{0})
	io.WriteString(h, normalize(contents))
	return hex.EncodeToString(h.Sum(nil))
}

// HashReader hashes file content. Used to decide whether an uploaded file changed.
func HashReader(r io.Reader) (string, error) {
	h, _ := blake2b.New256(nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
