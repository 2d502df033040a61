package upload

import "alcyxob/blog-publisher/internal/domain"

// UploadedSet tracks which files were uploaded during one publish operation.
// It belongs to exactly one Coordinator and is not safe for concurrent use.
type UploadedSet struct {
	files map[string]*domain.SupportingFile
	order []string
}

func NewUploadedSet() *UploadedSet {
	return &UploadedSet{files: make(map[string]*domain.SupportingFile)}
}

// Claim adds the file. It returns false if the identity is already present.
func (s *UploadedSet) Claim(f *domain.SupportingFile) bool {
	if _, ok := s.files[f.FileID]; ok {
		return false
	}
	s.files[f.FileID] = f
	s.order = append(s.order, f.FileID)
	return true
}

// Release removes a claim so a later attempt can upload the file again.
func (s *UploadedSet) Release(fileID string) {
	if _, ok := s.files[fileID]; !ok {
		return
	}
	delete(s.files, fileID)
	for i, id := range s.order {
		if id == fileID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *UploadedSet) Contains(fileID string) bool {
	_, ok := s.files[fileID]
	return ok
}

func (s *UploadedSet) Len() int {
	return len(s.order)
}

// Files returns the claimed files in claim order.
func (s *UploadedSet) Files() []*domain.SupportingFile {
	out := make([]*domain.SupportingFile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.files[id])
	}
	return out
}
