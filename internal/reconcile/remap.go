package reconcile

import (
	"log/slog"
	"strings"

	"alcyxob/blog-publisher/internal/domain"
	"alcyxob/blog-publisher/internal/refs"
)

// RemapUploadedImages points image references that resolve to a file's upload URI
// on blogID back at the local file. Other references are returned unchanged;
// relative image URLs cannot be matched and are only logged.
func RemapUploadedImages(content, blogID string, files []*domain.SupportingFile, logger *slog.Logger) string {
	byUploadURI := make(map[string]*domain.SupportingFile)
	for _, f := range files {
		uri := f.UploadURIFor(blogID)
		if uri == "" {
			continue
		}
		if key, ok := refs.Canonicalize(uri); ok {
			byUploadURI[key] = f
		}
	}
	if len(byUploadURI) == 0 {
		return content
	}

	out, err := refs.Rewrite(content, func(tag, attr, value string) (string, error) {
		if !isImageReference(tag, attr) {
			return value, nil
		}
		key, ok := refs.Canonicalize(value)
		if !ok {
			if tag != "a" && strings.TrimSpace(value) != "" && !strings.HasPrefix(value, "data:") {
				logger.Warn("relative image reference cannot be mapped to a local file", "reference", value)
			}
			return value, nil
		}
		if f, found := byUploadURI[key]; found {
			return f.FileURI, nil
		}
		return value, nil
	})
	if err != nil {
		logger.Warn("could not remap server image references", "error", err)
		return content
	}
	return out
}

func isImageReference(tag, attr string) bool {
	switch tag {
	case "img", "input":
		return attr == "src"
	case "a":
		return attr == "href"
	}
	return false
}
