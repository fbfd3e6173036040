package builder

// Reader resolves and fetches source text for an @include reference. The
// Registry tries readers in registration order and uses the first one
// whose Supports reports true, mirroring asm/compiler.go's single fsys
// resolution path generalized to a pluggable chain.
type Reader interface {
	// Supports reports whether this reader recognizes ref's shape (a
	// scheme prefix, or being a bare relative path for the filesystem
	// reader, which is always tried last).
	Supports(ref string) bool

	// Read fetches the content named by ref. Failures are wrapped in
	// SourceReadingError by the caller (the Registry), not by Read itself,
	// so individual readers can return plain errors.
	Read(ref string) (string, error)

	// ParsePath returns the provenance of ref: file is the basename used for
	// __FILE__, path is the value used for __PATH__ (the whole reference for
	// the filesystem and HTTP readers, the containing directory for the git
	// reader). The machine keys its cache and once-include bookkeeping on
	// path and file together.
	ParsePath(ref string) (file, path string)
}

// Registry is the ordered chain of Readers consulted for every @include.
type Registry struct {
	readers []Reader
}

// NewRegistry builds a registry trying readers in the given order. Callers
// typically list the most specific readers (HTTP, git-hosting) before the
// filesystem reader, which accepts anything.
func NewRegistry(readers ...Reader) *Registry {
	return &Registry{readers: readers}
}

func (r *Registry) find(ref string) (Reader, error) {
	for _, rd := range r.readers {
		if rd.Supports(ref) {
			return rd, nil
		}
	}
	return nil, ErrSourceUnsupported
}

// Read resolves ref against the first supporting reader and returns its
// content along with the parsed file/path identity.
func (r *Registry) Read(ref string) (content, file, path string, err error) {
	rd, err := r.find(ref)
	if err != nil {
		return "", "", "", &SourceReadingError{Ref: ref, Err: err}
	}
	file, path = rd.ParsePath(ref)
	content, err = rd.Read(ref)
	if err != nil {
		return "", "", "", &SourceReadingError{Ref: ref, Err: err}
	}
	return content, file, path, nil
}
