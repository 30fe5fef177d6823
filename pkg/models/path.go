package models

import "strings"

// JoinPath constructs a child path from a store-relative parent and a name.
// The root is the empty string, so no separator is added under it.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	if name == "" {
		return parent
	}
	return parent + "/" + name
}

// ParentPath returns all segments of p but the last. The parent of a
// top-level entry is the root ("").
func ParentPath(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return p[:idx]
}

// BaseName returns the last segment of p.
func BaseName(p string) string {
	return p[strings.LastIndex(p, "/")+1:]
}
