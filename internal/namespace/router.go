// Package namespace maps the global and per-user key spaces onto storage
// paths and exposes the get/set/update API over a store.Store.
package namespace

import (
	"strings"
)

// Default roots for the two key spaces.
const (
	DefaultGlobalRoot = "internal/global"
	DefaultUserRoot   = "internal/user"
)

// Router composes storage paths for the global and user namespaces.
type Router struct {
	GlobalRoot string
	UserRoot   string
}

// NewRouter returns a Router, substituting the defaults for empty roots.
func NewRouter(globalRoot, userRoot string) Router {
	if globalRoot == "" {
		globalRoot = DefaultGlobalRoot
	}
	if userRoot == "" {
		userRoot = DefaultUserRoot
	}
	return Router{GlobalRoot: globalRoot, UserRoot: userRoot}
}

// GlobalPath returns the storage path for key in the global namespace.
func (r Router) GlobalPath(key string) string {
	return JoinPath(r.GlobalRoot, key)
}

// UserPath returns the storage path for key in userID's namespace.
func (r Router) UserPath(userID, key string) string {
	return JoinPath(r.UserRoot, userID, key)
}

// GlobalPrefix is the path prefix shared by every global key.
func (r Router) GlobalPrefix() string {
	return JoinPath(r.GlobalRoot) + "/"
}

// UserPrefix is the path prefix shared by every key of userID.
func (r Router) UserPrefix(userID string) string {
	return JoinPath(r.UserRoot, userID) + "/"
}

// JoinPath joins segments with exactly one "/" between them. Leading,
// trailing and repeated separators inside segments are collapsed; empty
// segments are dropped.
func JoinPath(segments ...string) string {
	var parts []string
	for _, seg := range segments {
		for _, p := range strings.Split(seg, "/") {
			if p != "" {
				parts = append(parts, p)
			}
		}
	}
	return strings.Join(parts, "/")
}
