package wfs

import "strings"

// Path resolver. Paths are absolute, slash-separated, and empty components
// (leading slash, doubled slashes, trailing slash) are ignored, so "/",
// "//" and "" all name the root. Resolution never mutates anything.

// SplitPath returns the non-empty components of `path` in order.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	components := parts[:0]
	for _, part := range parts {
		if part != "" {
			components = append(components, part)
		}
	}
	return components
}

// SplitParent splits `path` at its last component, returning the parent
// path and the final name. The parent of a top-level name is "/".
func SplitParent(path string) (string, string) {
	trimmed := strings.TrimRight(path, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return "/", trimmed
	}
	return trimmed[:i+1], trimmed[i+1:]
}

// Resolve walks `path` from the root directory and returns the terminal
// inode. A missing component is ErrNotFound; descending through a
// non-directory is ErrNotADirectory.
func (fs *FileSystem) Resolve(path string) (*Inode, error) {
	current, err := fs.Inode(RootInodeNum)
	if err != nil {
		return nil, err
	}

	for _, component := range SplitPath(path) {
		if !current.IsDir() {
			return nil, ErrNotADirectory
		}
		num, err := fs.lookupDirent(current, component)
		if err != nil {
			return nil, err
		}
		current, err = fs.Inode(num)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}
