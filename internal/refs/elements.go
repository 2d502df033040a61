package refs

import (
	"slices"
	"sort"
	"strings"

	"alcyxob/blog-publisher/internal/domain"
)

// urlAttributes lists the elements whose attributes may carry a file reference.
var urlAttributes = map[string][]string{
	"a":      {"href"},
	"audio":  {"src"},
	"body":   {"background"},
	"embed":  {"src"},
	"iframe": {"src"},
	"img":    {"src"},
	"input":  {"src"},
	"link":   {"href"},
	"object": {"data"},
	"param":  {"value"},
	"script": {"src"},
	"source": {"src"},
	"table":  {"background"},
	"td":     {"background"},
	"video":  {"src", "poster"},
}

// IsURLAttribute reports whether attr on tag is one the pipeline rewrites.
func IsURLAttribute(tag, attr string) bool {
	return slices.Contains(urlAttributes[strings.ToLower(tag)], strings.ToLower(attr))
}

func elementSelector() string {
	names := make([]string, 0, len(urlAttributes))
	for name := range urlAttributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// ClassifyRole derives the upload role from the element that references the file.
func ClassifyRole(tag string, file *domain.SupportingFile) domain.FileUploadRole {
	switch strings.ToLower(tag) {
	case "img", "input":
		return domain.RoleInlineImage
	case "a":
		if file != nil && file.IsImage() {
			return domain.RoleLinkedImage
		}
	}
	return domain.RoleFile
}
