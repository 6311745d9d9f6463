package hub

import (
	"fmt"
	"strings"
)

// Ref identifies a repository on the hub as owner/name.
type Ref struct {
	Owner string
	Name  string
}

// ParseRef parses a reference of the form owner/name. Both parts are
// required; the hub has no default namespace.
func ParseRef(s string) (Ref, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Ref{}, fmt.Errorf("invalid model reference %q: expected owner/name", s)
	}

	for _, part := range []string{owner, name} {
		if strings.ContainsAny(part, " \t\"'") {
			return Ref{}, fmt.Errorf("invalid model reference %q: expected owner/name", s)
		}
	}

	return Ref{Owner: owner, Name: name}, nil
}

func (r Ref) String() string {
	return r.Owner + "/" + r.Name
}

// Base is the repository name without its owner. Local model directories
// and quantized artifact names are derived from it.
func (r Ref) Base() string {
	return r.Name
}
