package types

// Group is a curated collection of files: either a repository category
// tree (bounded by Depth) or, when IsUserName is set, every file uploaded
// by the named user.
type Group struct {
	ID         GroupId
	Category   string
	Depth      int
	IsUserName bool
	IsActive   bool
	AddedBy    string
}

// UploaderName returns Category interpreted as an uploader name. Only
// meaningful when IsUserName is true.
func (g Group) UploaderName() string {
	return g.Category
}
