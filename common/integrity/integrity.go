// Package integrity checks downloaded source archives against Subresource Integrity metadata
// (https://www.w3.org/TR/SRI/), e.g. "sha256-<base64 digest>".
package integrity

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"regexp"
	"strings"
)

// strength orders the algorithms we know about; higher is stronger. Zero means deprecated.
var strength = map[string]int{
	"md5":    0,
	"sha1":   0,
	"sha256": 1,
	"sha384": 2,
	"sha512": 3,
}

var constructors = map[string]func() hash.Hash{
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

var exprRegexp = regexp.MustCompile(`^(\w+)-([\w+/]+={0,2})(\?.*)?$`)

var ErrBadIntegrity = errors.New("bad integrity metadata")

// ErrMismatch is returned by CheckFile when the file contents don't match.
var ErrMismatch = errors.New("failed integrity check")

type expected struct {
	hash   hash.Hash
	digest []byte
}

// Checker is an io.Writer that hashes everything written to it with the strongest algorithm named in the integrity
// metadata it was created from.
type Checker struct {
	expected []expected
}

// NewChecker parses the given integrity metadata. Only the strongest recognized algorithm is kept, as the standard
// requires. Unknown algorithms are ignored for forwards compatibility; metadata that names nothing but deprecated
// algorithms is an error.
func NewChecker(integrity string) (*Checker, error) {
	best := 0
	checker := &Checker{}
	var deprecated []string
	for _, expr := range strings.Fields(integrity) {
		matches := exprRegexp.FindStringSubmatch(expr)
		if len(matches) != 4 {
			return nil, fmt.Errorf("%w: couldn't parse hash-with-options: %s", ErrBadIntegrity, expr)
		}
		algo := matches[1]
		s, known := strength[algo]
		if !known {
			continue
		}
		if s == 0 {
			deprecated = append(deprecated, algo)
			continue
		}
		digest, err := base64.StdEncoding.DecodeString(matches[2])
		if err != nil {
			return nil, fmt.Errorf("%w: couldn't decode base64 payload: %s", ErrBadIntegrity, matches[2])
		}
		if s < best {
			continue
		}
		if s > best {
			best = s
			checker.expected = nil
		}
		checker.expected = append(checker.expected, expected{constructors[algo](), digest})
	}
	if len(checker.expected) == 0 && len(deprecated) > 0 {
		return nil, fmt.Errorf("%w: only deprecated hash algorithms found %v", ErrBadIntegrity, deprecated)
	}
	return checker, nil
}

// Write feeds more data to the running hashes. It never fails.
func (c *Checker) Write(p []byte) (int, error) {
	for _, e := range c.expected {
		e.hash.Write(p)
	}
	return len(p), nil
}

// Check reports whether the data written so far matches any of the expected digests. Empty metadata always matches.
func (c *Checker) Check() bool {
	if len(c.expected) == 0 {
		return true
	}
	for _, e := range c.expected {
		if bytes.Equal(e.hash.Sum(nil), e.digest) {
			return true
		}
	}
	return false
}

// Reset forgets everything written so far.
func (c *Checker) Reset() {
	for _, e := range c.expected {
		e.hash.Reset()
	}
}

// Check is a convenience wrapper around NewChecker for a whole reader.
func Check(r io.Reader, integrity string) (bool, error) {
	checker, err := NewChecker(integrity)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(checker, r); err != nil {
		return false, err
	}
	return checker.Check(), nil
}

// CheckFile verifies the file at `path` against `checker`, returning ErrMismatch when it doesn't match.
func CheckFile(path string, checker *Checker) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	checker.Reset()
	if _, err := io.Copy(checker, f); err != nil {
		return err
	}
	if !checker.Check() {
		return fmt.Errorf("%w: %v", ErrMismatch, path)
	}
	return nil
}

// Generate produces integrity metadata for `data`. Unrecognized or deprecated algorithms yield an empty string.
func Generate(algorithm string, data []byte) string {
	fn := constructors[algorithm]
	if fn == nil {
		return ""
	}
	h := fn()
	h.Write(data)
	return algorithm + "-" + base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// MustGenerate behaves like Generate, except that an unusable algorithm panics.
func MustGenerate(algorithm string, data []byte) string {
	s := Generate(algorithm, data)
	if s == "" {
		panic("unrecognized or deprecated algorithm: " + algorithm)
	}
	return s
}
