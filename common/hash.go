package common

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
)

// Hash combines everything with SHA-256 and encodes the first 20 bytes with unpadded lowercase base32. The result
// is a string of length 32 that is safe to use as a file name.
func Hash(s ...interface{}) string {
	hash := sha256.New()
	for _, i := range s {
		_, _ = fmt.Fprintf(hash, "%v$", i)
	}
	sum := hash.Sum(nil)
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:20]))
}
