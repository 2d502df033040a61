package domain

// Role is carried in API tokens.
type Role string

const (
	RoleEditor    Role = "editor"    // create drafts, attach files, sync
	RolePublisher Role = "publisher" // everything an editor can do, plus publish
)

func (r Role) Valid() bool {
	return r == RoleEditor || r == RolePublisher
}
