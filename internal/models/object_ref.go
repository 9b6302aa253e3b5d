package models

import (
	"fmt"
	"strings"
)

// ObjectRef identifies a stored blob by (container, key).
type ObjectRef struct {
	Container string
	Key       string
}

// String renders the ref as "container/key", the form used on the wire and as
// the join key in the record store.
func (r ObjectRef) String() string {
	return r.Container + "/" + r.Key
}

// Basename returns the trailing path segment of the key.
func (r ObjectRef) Basename() string {
	return Basename(r.Key)
}

// ParseObjectRef splits "container/key" on the first slash.
func ParseObjectRef(s string) (ObjectRef, error) {
	container, key, ok := strings.Cut(strings.TrimPrefix(s, "/"), "/")
	if !ok || container == "" || key == "" {
		return ObjectRef{}, fmt.Errorf("%w: %q", ErrInvalidObjectRef, s)
	}
	return ObjectRef{Container: container, Key: key}, nil
}

// Basename returns the segment after the last slash of a ref or key.
func Basename(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
