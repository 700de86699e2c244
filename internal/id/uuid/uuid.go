// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates request ids and object names.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NameFor returns a UUIDv5 derived from source. The same source always maps
// to the same name, so a redelivered upload overwrites its earlier object.
func (Generator) NameFor(source string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source)).String()
}
