package domain

// FileUploadRole classifies how the post refers to a file.
type FileUploadRole int

const (
	RoleFile        FileUploadRole = iota // Generic attachment
	RoleInlineImage                       // <img src=...>
	RoleLinkedImage                       // <a href=...> pointing at an image
)

func (r FileUploadRole) String() string {
	switch r {
	case RoleInlineImage:
		return "inline_image"
	case RoleLinkedImage:
		return "linked_image"
	default:
		return "file"
	}
}

// FileUploadContext is built fresh for every upload call and every after-publish callback.
// It is never persisted.
type FileUploadContext struct {
	BlogID               string
	PostID               string
	File                 *SupportingFile
	Info                 *UploadInfo
	PreferredName        string
	Role                 FileUploadRole
	ForceDirectImageLink bool
}

// NewFileUploadContext binds a file to its upload info for blogID.
func NewFileUploadContext(blogID, postID string, file *SupportingFile, role FileUploadRole, forceDirectLink bool) *FileUploadContext {
	return &FileUploadContext{
		BlogID:               blogID,
		PostID:               postID,
		File:                 file,
		Info:                 file.UploadInfo(blogID),
		PreferredName:        file.FileName,
		Role:                 role,
		ForceDirectImageLink: forceDirectLink,
	}
}
