// Package source defines the data-source collaborators consulted by the
// pipeline: their kinds, the records they return and the lookup contract.
package source

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one of the fixed domain data sources.
type Kind string

const (
	Market   Kind = "iqvia"
	Trade    Kind = "exim"
	Patent   Kind = "patent"
	Clinical Kind = "clinical"
	Web      Kind = "web"
)

// Kinds lists every source in catalog order. Prompts and rendered contexts
// follow this order so their output is stable.
var Kinds = []Kind{Market, Trade, Patent, Clinical, Web}

var ErrUnknownKind = errors.New("unknown source kind")

// ParseKind maps a planner agent name onto a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Label is the heading used for the source in synthesis prompts.
func (k Kind) Label() string {
	return strings.ToUpper(string(k))
}

// Order returns the catalog position of k, or len(Kinds) if unknown.
func (k Kind) Order() int {
	for i, known := range Kinds {
		if k == known {
			return i
		}
	}
	return len(Kinds)
}
