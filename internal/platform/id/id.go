package id

import "github.com/google/uuid"

// Generator creates opaque identifiers.
type Generator interface {
	New() string
}

type UUID struct{}

func (UUID) New() string {
	return uuid.NewString()
}

// Valid reports whether s looks like an identifier produced by UUID.
// Session ids end up in filesystem paths, so anything else is rejected early.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
