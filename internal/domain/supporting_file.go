package domain

import (
	"maps"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// SupportingFile is a local file (image, attachment) tracked alongside a post.
type SupportingFile struct {
	FileID      string `bson:"fileId" json:"fileId"` // Stable for the lifetime of the file
	FileName    string `bson:"fileName" json:"fileName"`
	FileURI     string `bson:"fileUri" json:"fileUri"`   // Local file:// URI
	Embedded    bool   `bson:"embedded" json:"embedded"` // Referenced inline by the post body
	ContentType string `bson:"contentType,omitempty" json:"contentType,omitempty"`
	ContentHash string `bson:"contentHash,omitempty" json:"contentHash,omitempty"`
	Size        int64  `bson:"size" json:"size"`

	// Uploads is keyed by destination (blog id).
	Uploads map[string]*UploadInfo `bson:"uploads,omitempty" json:"uploads,omitempty"`
}

// UploadInfo records where a file lives on one destination.
type UploadInfo struct {
	UploadURI string            `bson:"uploadUri,omitempty" json:"uploadUri,omitempty"`
	Settings  map[string]string `bson:"settings,omitempty" json:"settings,omitempty"`
}

// UploadInfo returns the upload info for destination, creating an empty one if needed.
func (f *SupportingFile) UploadInfo(destination string) *UploadInfo {
	if f.Uploads == nil {
		f.Uploads = make(map[string]*UploadInfo)
	}
	info, ok := f.Uploads[destination]
	if !ok {
		info = &UploadInfo{Settings: map[string]string{}}
		f.Uploads[destination] = info
	}
	if info.Settings == nil {
		info.Settings = map[string]string{}
	}
	return info
}

// UploadURIFor returns the remote URI recorded for destination, or "".
func (f *SupportingFile) UploadURIFor(destination string) string {
	if info, ok := f.Uploads[destination]; ok && info != nil {
		return info.UploadURI
	}
	return ""
}

// IsImage is a best-effort guess based on content type, then extension.
func (f *SupportingFile) IsImage() bool {
	if f.ContentType != "" {
		return strings.HasPrefix(f.ContentType, "image/")
	}
	switch strings.ToLower(path.Ext(f.FileName)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".svg":
		return true
	}
	return false
}

// LocalPath converts the file:// URI into an OS path.
func (f *SupportingFile) LocalPath() (string, error) {
	u, err := url.Parse(f.FileURI)
	if err != nil {
		return "", err
	}
	p := u.Path
	// file:///C:/dir/img.png
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p), nil
}

// Clone returns a deep copy, upload infos included.
func (f *SupportingFile) Clone() *SupportingFile {
	if f == nil {
		return nil
	}
	c := *f
	if f.Uploads != nil {
		c.Uploads = make(map[string]*UploadInfo, len(f.Uploads))
		for k, v := range f.Uploads {
			if v == nil {
				continue
			}
			c.Uploads[k] = &UploadInfo{UploadURI: v.UploadURI, Settings: maps.Clone(v.Settings)}
		}
	}
	return &c
}
