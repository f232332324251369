package common

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Label identifies a target declared in a dependency's build descriptor. Its canonical form is "@repo//:target",
// where "repo" is the name of the dependency that declares the target. Descriptors only have a single package, so
// the package part is always empty.
type Label struct {
	// Repo is the name of the declaring dependency. If the "@repo//" part is missing, HasRepo is false and the label
	// is relative to the descriptor it appears in.
	Repo    string
	HasRepo bool
	Target  string
}

// NewLabel returns the absolute label of `target` in `repo`.
func NewLabel(repo string, target string) *Label {
	return &Label{Repo: repo, HasRepo: true, Target: target}
}

func (l *Label) String() string {
	if l.HasRepo {
		return "@" + l.Repo + "//:" + l.Target
	}
	return ":" + l.Target
}

// Resolve makes a relative label absolute against `repo`. Absolute labels are returned unchanged.
func (l *Label) Resolve(repo string) *Label {
	if l.HasRepo {
		return l
	}
	return NewLabel(repo, l.Target)
}

// submatch indices:        0 1 2                3
var re = regexp.MustCompile(`^((?:@([^/\\:@]+)//)?:)?([^:\\]+)$`)

var ErrParsingLabel = errors.New("error parsing label")

// ParseLabel accepts "@repo//:target", ":target" and the bare shorthand "target".
func ParseLabel(raw string) (*Label, error) {
	parsingError := func(reason string) error {
		return fmt.Errorf("%w %q: %v", ErrParsingLabel, raw, reason)
	}
	if raw == "" {
		return nil, parsingError("empty label")
	}
	matches := re.FindStringSubmatch(raw)
	if len(matches) != 4 {
		return nil, parsingError("malformed label")
	}
	label := &Label{
		Repo:    matches[2],
		HasRepo: matches[2] != "",
		Target:  matches[3],
	}
	if label.Target[0] == '/' {
		return nil, parsingError("target names may not start with '/'")
	}
	if strings.HasSuffix(label.Target, "/") {
		return nil, parsingError("target names may not end with '/'")
	}
	if strings.Contains(label.Target, "//") {
		return nil, parsingError("target names may not contain '//'")
	}
	for _, segment := range strings.Split(label.Target, "/") {
		if strings.TrimLeft(segment, ".") == "" {
			return nil, parsingError("target name component contains only '.' characters")
		}
	}
	return label, nil
}
