package jobs

import (
	"fmt"
	"strings"
)

// ObjectURI addresses one object as scheme://bucket/key.
type ObjectURI struct {
	Scheme string
	Bucket string
	Key    string
}

func (u ObjectURI) String() string {
	return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Bucket, u.Key)
}

// ParseObjectURI splits a stored object path. Scheme, bucket and key must all be non-empty.
func ParseObjectURI(raw string) (ObjectURI, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok || scheme == "" {
		return ObjectURI{}, fmt.Errorf("object uri %q: missing scheme", raw)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return ObjectURI{}, fmt.Errorf("object uri %q: expected bucket/key", raw)
	}
	return ObjectURI{Scheme: scheme, Bucket: bucket, Key: key}, nil
}
