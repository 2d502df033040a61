package domain

// PublishingResult is handed back to the caller once per publish attempt.
type PublishingResult struct {
	PostID    string `json:"postId"`
	Permalink string `json:"permalink,omitempty"`
	Slug      string `json:"slug,omitempty"`
	// Signature of the copy the server holds right after the publish, if it could be fetched.
	ContentsVersionSignature string `json:"contentsVersionSignature,omitempty"`
	Published                bool   `json:"published"` // false for a draft save

	// AfterPublishErr is a non-fatal failure from the after-publish phase.
	AfterPublishErr error `json:"-"`
}

// AfterPublishError renders AfterPublishErr for JSON responses.
func (r *PublishingResult) AfterPublishError() string {
	if r.AfterPublishErr == nil {
		return ""
	}
	return r.AfterPublishErr.Error()
}
