package fetch

import (
	"os"
	"path/filepath"
)

// markerFile sits at the root of every cached source tree and holds the fingerprint of the fetch that produced it.
// It's written last, so a tree without it is incomplete.
const markerFile = ".depresolve.fingerprint"

// ReadMarker returns the fingerprint recorded in `dir`, and false if `dir` holds no complete fetch.
func ReadMarker(dir string) (string, bool) {
	b, err := os.ReadFile(filepath.Join(dir, markerFile))
	if err != nil {
		return "", false
	}
	return string(b), true
}

func writeMarker(dir string, fprint string) error {
	return os.WriteFile(filepath.Join(dir, markerFile), []byte(fprint), 0664)
}
