package builder

import (
	"io/fs"
	"path"
)

// FSReader resolves plain relative/absolute paths against an fs.FS, exactly
// the way asm/compiler.go's Compiler.fsys / resolveRelative did for #include
// in the teacher. It is always tried last in the Registry chain since it
// accepts any reference no other reader claimed.
type FSReader struct {
	FS fs.FS
}

func NewFSReader(fsys fs.FS) *FSReader {
	return &FSReader{FS: fsys}
}

func (r *FSReader) Supports(ref string) bool {
	return true
}

func (r *FSReader) Read(ref string) (string, error) {
	clean := path.Clean(ref)
	data, err := fs.ReadFile(r.FS, clean)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *FSReader) ParsePath(ref string) (file, fullPath string) {
	clean := path.Clean(ref)
	return path.Base(clean), clean
}
