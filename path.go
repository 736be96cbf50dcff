package assetx

import (
	"fmt"
	"path"
	"strings"
)

// ResolvePath joins a configured base path with a stored name and splits the
// result into backend-addressable directory and filename components.
//
// Backslashes are normalized to "/", the result is cleaned, and any name that
// would climb above basePath is rejected. An empty basePath resolves to ".".
func ResolvePath(basePath, name string) (dir, file string, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("%w: empty name", ErrInvalidPath)
	}

	base := cleanSlash(basePath)
	rel := cleanSlash(name)
	if rel == "." || rel == "/" {
		return "", "", fmt.Errorf("%w: %q has no file component", ErrInvalidPath, name)
	}
	if rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return "", "", fmt.Errorf("%w: %q escapes base path", ErrInvalidPath, name)
	}

	full := path.Join(base, rel)
	dir, file = path.Split(full)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		if strings.HasPrefix(full, "/") {
			dir = "/"
		} else {
			dir = "."
		}
	}
	return dir, file, nil
}

// JoinPath joins a directory and a name into one slash-separated path.
func JoinPath(dir, name string) string {
	if dir == "" || dir == "." {
		return cleanSlash(name)
	}
	return path.Join(cleanSlash(dir), name)
}

// cleanSlash normalizes separators to "/" and cleans the path. Leading "/"
// is kept so absolute remote paths survive.
func cleanSlash(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" {
		return "."
	}
	return path.Clean(p)
}
