package assetx

import (
	"path"
	"strings"
)

// AllowAll is the allow-list wildcard.
const AllowAll = "*"

// ExtensionPolicy validates file extensions against a configured allow-list.
type ExtensionPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// NewExtensionPolicy builds a policy from allowList. Entries are matched
// exactly as configured; "*" allows every extension.
func NewExtensionPolicy(allowList []string) *ExtensionPolicy {
	p := &ExtensionPolicy{allowed: make(map[string]struct{}, len(allowList))}
	for _, ext := range allowList {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == AllowAll {
			p.allowAll = true
			continue
		}
		p.allowed[ext] = struct{}{}
	}
	return p
}

// Allowed reports whether ext may be stored.
func (p *ExtensionPolicy) Allowed(ext string) bool {
	if p == nil {
		return false
	}
	if p.allowAll {
		return true
	}
	_, ok := p.allowed[ext]
	return ok
}

// ExtensionOf returns the lower-cased text after the last dot of the final
// path element of name, or "" when there is none.
func ExtensionOf(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// StoredNameFor returns the backend-internal name for an id and extension.
func StoredNameFor(id, ext string) string {
	if ext == "" {
		return id
	}
	return id + "." + ext
}
