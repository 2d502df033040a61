package domain

import (
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ContentFormat is the authoring format of a draft body.
type ContentFormat string

const (
	FormatHTML     ContentFormat = "html"
	FormatMarkdown ContentFormat = "markdown"
)

// PostKind tells where the local copy of a post lives.
type PostKind string

const (
	KindDraft      PostKind = "draft"       // Local draft, may or may not have been published before
	KindRecentPost PostKind = "recent_post" // Local copy of a post that was published from here
	KindLocalFile  PostKind = "local_file"  // Saved somewhere outside drafts / recent posts
	KindRemote     PostKind = "remote"      // Opened straight from the server, not saved locally yet
)

// BlogPost is the content sent to and received from the remote blog.
type BlogPost struct {
	ID            string    `bson:"id,omitempty" json:"id,omitempty"` // Remote post id, empty until first publish
	IsPage        bool      `bson:"isPage" json:"isPage"`
	Title         string    `bson:"title" json:"title"`
	Contents      string    `bson:"contents" json:"contents"`
	Permalink     string    `bson:"permalink,omitempty" json:"permalink,omitempty"`
	Slug          string    `bson:"slug,omitempty" json:"slug,omitempty"`
	Categories    []string  `bson:"categories,omitempty" json:"categories,omitempty"`
	DatePublished time.Time `bson:"datePublished,omitempty" json:"datePublished,omitempty"`

	// Trackback URLs, split by whether they were already notified.
	PingURLsSent    []string `bson:"pingUrlsSent,omitempty" json:"pingUrlsSent,omitempty"`
	PingURLsPending []string `bson:"pingUrlsPending,omitempty" json:"pingUrlsPending,omitempty"`

	// ContentsVersionSignature fingerprints the server copy as of the last publish or fetch.
	ContentsVersionSignature string `bson:"contentsVersionSignature,omitempty" json:"contentsVersionSignature,omitempty"`
}

// IsNew reports whether the post has never been created on the server.
func (p *BlogPost) IsNew() bool {
	return p.ID == ""
}

// Clone returns a deep copy of the post.
func (p *BlogPost) Clone() *BlogPost {
	if p == nil {
		return nil
	}
	c := *p
	c.Categories = slices.Clone(p.Categories)
	c.PingURLsSent = slices.Clone(p.PingURLsSent)
	c.PingURLsPending = slices.Clone(p.PingURLsPending)
	return &c
}

// EditingContext is the locally stored document being edited: the post, the blog it
// targets and the supporting files it references.
type EditingContext struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BlogID          string             `bson:"blogId" json:"blogId"`
	Kind            PostKind           `bson:"kind" json:"kind"`
	Saved           bool               `bson:"saved" json:"saved"`
	Format          ContentFormat      `bson:"format" json:"format"`
	Post            *BlogPost          `bson:"post" json:"post"`
	SupportingFiles []*SupportingFile  `bson:"supportingFiles" json:"supportingFiles"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// RemotePostID is the server id of the post, empty for never-published drafts.
func (ec *EditingContext) RemotePostID() string {
	if ec.Post == nil {
		return ""
	}
	return ec.Post.ID
}

// FileByID finds a supporting file by its identity.
func (ec *EditingContext) FileByID(fileID string) *SupportingFile {
	for _, f := range ec.SupportingFiles {
		if f.FileID == fileID {
			return f
		}
	}
	return nil
}

// Clone copies the context. Supporting files are cloned too so the copy can be
// mutated without touching the original.
func (ec *EditingContext) Clone() *EditingContext {
	c := *ec
	c.Post = ec.Post.Clone()
	c.SupportingFiles = make([]*SupportingFile, 0, len(ec.SupportingFiles))
	for _, f := range ec.SupportingFiles {
		c.SupportingFiles = append(c.SupportingFiles, f.Clone())
	}
	return &c
}
