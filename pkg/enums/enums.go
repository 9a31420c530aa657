// Package enums holds the string enumerations persisted in the database and
// exchanged over the API.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// domain is the closed set of values of one enumeration.
type domain[T ~string] struct {
	kind   string
	values []T
}

func (d domain[T]) has(v T) bool { return slices.Contains(d.values, v) }

// parse accepts any casing and surrounding whitespace.
func (d domain[T]) parse(raw string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if d.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", d.kind, raw)
}

// graph lists the states reachable in one step from each state.
type graph[T comparable] map[T][]T

func (g graph[T]) allows(from, to T) bool { return slices.Contains(g[from], to) }
