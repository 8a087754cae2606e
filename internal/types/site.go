package types

// Site is a sister-project wiki the pipeline can resolve embeddings and
// page views against.
type Site struct {
	ID       uint64
	Server   string
	GiuCode  string
	Project  string
	Language string
	Name     string
	GrokCode string
}

// WikiID derives the canonical wiki identifier used elsewhere in the
// system (e.g. as the key into the namespace-prefix cache, and to look
// up globalimagelinks rows):
//
//	language == "commons"   -> "commonswiki"
//	project  == "wikipedia" -> "{language}wiki"
//	otherwise               -> "{language}{project}"
func (s Site) WikiID() string {
	switch {
	case s.Language == "commons":
		return "commonswiki"
	case s.Project == "wikipedia":
		return s.Language + "wiki"
	default:
		return s.Language + s.Project
	}
}
