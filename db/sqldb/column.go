package sqldb

import (
	"fmt"
	"regexp"
)

var regexIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Column is a validated SQL identifier, optionally table-qualified ("p.post_title").
// Sort keys coming from requests only reach SQL as a Column.
type Column struct {
	name string
}

func (c Column) Name() string { return c.name }

func NewColumn(name string) (Column, error) {
	if !regexIdentifier.MatchString(name) {
		return Column{}, fmt.Errorf("invalid SQL identifier: %q", name)
	}
	return Column{name: name}, nil
}

// MustColumn is NewColumn for identifiers fixed at compile time. It panics on an invalid name.
func MustColumn(name string) Column {
	c, err := NewColumn(name)
	if err != nil {
		panic(err)
	}
	return c
}
