// Package render turns markdown-authored drafts into the HTML the publish pipeline works on.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"alcyxob/blog-publisher/internal/domain"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Footnote),
	// Drafts may embed raw HTML such as <img> tags pointing at local files.
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// MarkdownToHTML converts a markdown document to HTML.
func MarkdownToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// ForPublish returns a context whose post contents are HTML. HTML drafts are
// returned as is; markdown drafts are rendered on a copy so the stored source is
// never touched.
func ForPublish(ec *domain.EditingContext) (*domain.EditingContext, error) {
	if ec.Format != domain.FormatMarkdown || ec.Post == nil {
		return ec, nil
	}
	out, err := MarkdownToHTML(ec.Post.Contents)
	if err != nil {
		return nil, err
	}
	rendered := *ec
	rendered.Post = ec.Post.Clone()
	rendered.Post.Contents = out
	rendered.Format = domain.FormatHTML
	return &rendered, nil
}
