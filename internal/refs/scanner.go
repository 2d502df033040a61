// Package refs finds local file references in post HTML and rewrites them.
package refs

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"alcyxob/blog-publisher/internal/domain"
)

// ReferenceList maps canonical URIs to the supporting files a post is known to
// reference. It is built once per publish and only read afterwards.
type ReferenceList struct {
	byURI map[string]*domain.SupportingFile
}

func NewReferenceList(files []*domain.SupportingFile) *ReferenceList {
	l := &ReferenceList{byURI: make(map[string]*domain.SupportingFile, len(files))}
	for _, f := range files {
		if c, ok := Canonicalize(f.FileURI); ok {
			l.byURI[c] = f
		}
	}
	return l
}

// Lookup resolves a raw reference to its tracked file.
func (l *ReferenceList) Lookup(reference string) (*domain.SupportingFile, bool) {
	c, ok := Canonicalize(reference)
	if !ok {
		return nil, false
	}
	f, ok := l.byURI[c]
	return f, ok
}

func (l *ReferenceList) Len() int {
	return len(l.byURI)
}

// Scan returns the distinct embedded supporting files referenced from a URL-bearing
// attribute of a known element, in document order. Values that are not URLs, or
// that match no tracked file, are skipped.
func Scan(content string, list *ReferenceList) ([]*domain.SupportingFile, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, err
	}

	var (
		found []*domain.SupportingFile
		seen  = make(map[string]bool)
	)
	doc.Find(elementSelector()).Each(func(_ int, s *goquery.Selection) {
		for _, attr := range urlAttributes[goquery.NodeName(s)] {
			value, ok := s.Attr(attr)
			if !ok {
				continue
			}
			file, ok := list.Lookup(value)
			if !ok || !file.Embedded || seen[file.FileID] {
				continue
			}
			seen[file.FileID] = true
			found = append(found, file)
		}
	})
	return found, nil
}
