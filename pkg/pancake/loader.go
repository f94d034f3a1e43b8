package pancake

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Loader resolves a template name to its source text.
type Loader interface {
	Load(name string) (string, error)
}

// MemoryLoader serves templates from a map of name to source.
type MemoryLoader map[string]string

func (m MemoryLoader) Load(name string) (string, error) {
	if s, ok := m[name]; ok {
		return s, nil
	}
	return "", &NotFoundError{Name: name}
}

type searchRoot struct {
	fsys  fs.FS
	label string
}

// FSLoader serves templates from an ordered list of file systems. The first
// file system that holds a name wins. Names are slash separated and relative
// to each root.
type FSLoader struct {
	roots []searchRoot
}

// NewFSLoader returns a loader searching the given file systems in order.
func NewFSLoader(fsyss ...fs.FS) *FSLoader {
	l := &FSLoader{}
	for i, fsys := range fsyss {
		l.roots = append(l.roots, searchRoot{fsys: fsys, label: fmt.Sprintf("fs[%d]", i)})
	}
	return l
}

// NewDirLoader returns a loader searching the given directories in order.
func NewDirLoader(dirs ...string) *FSLoader {
	l := &FSLoader{}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		l.roots = append(l.roots, searchRoot{fsys: os.DirFS(dir), label: dir})
	}
	return l
}

func (l *FSLoader) Load(name string) (string, error) {
	var tried []string
	for _, root := range l.roots {
		b, err := fs.ReadFile(root.fsys, name)
		if err == nil {
			return string(b), nil
		}
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			tried = append(tried, filepath.Join(root.label, filepath.FromSlash(name)))
			continue
		}
		return "", errors.Wrapf(err, "failed reading template %s", name)
	}
	return "", &NotFoundError{Name: name, Tried: tried}
}
