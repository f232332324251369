package fetch

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	urls "net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tablog/depresolve/common/integrity"
)

// Archive represents a zip archive to be fetched from one of multiple equivalent URLs.
type Archive struct {
	URLs        []string
	Integrity   string
	StripPrefix string
}

func (a *Archive) Fetch(ctx context.Context, name string, env *Env) (string, error) {
	return cachedFetch(ctx, name, env, a.Fingerprint(), func(ctx context.Context, dir string) error {
		return a.downloadAndExtract(ctx, dir, env)
	})
}

func (a *Archive) Fingerprint() string {
	if len(a.URLs) == 0 {
		return ""
	}
	fprint := a.URLs[0]
	if a.Integrity != "" {
		fprint += "#" + a.Integrity
	}
	return fprint
}

func (a *Archive) downloadAndExtract(ctx context.Context, destDir string, env *Env) error {
	integ, err := integrity.NewChecker(a.Integrity)
	if err != nil {
		return err
	}

	archivePath := ""
	rawurl := ""
	for _, rawurl = range a.URLs {
		url, err := urls.Parse(rawurl)
		if err != nil {
			env.logger().Warn("failed to parse URL", "url", rawurl, "err", err)
			continue
		}
		var fp string
		switch url.Scheme {
		case "http", "https":
			fp, err = cachedDownload(ctx, env.CacheDir, rawurl, integ)
		case "file":
			fp = filepath.FromSlash(url.Path)
			err = integrity.CheckFile(fp, integ)
		default:
			env.logger().Warn("unrecognized URL scheme", "url", rawurl)
			continue
		}
		if err == nil {
			archivePath = fp
			break
		}
		env.logger().Warn("error fetching archive", "url", rawurl, "err", err)
	}

	if archivePath == "" {
		// All our attempts to fetch from those URLs failed.
		return fmt.Errorf("error downloading archive from %v", strings.Join(a.URLs, ", "))
	}

	if err := extractZipFile(archivePath, destDir, a.StripPrefix); err != nil {
		return fmt.Errorf("error extracting archive downloaded from %v: %v", rawurl, err)
	}
	return nil
}

// cachedDownload downloads the given URL into the HTTP cache and returns the file path. A cached file that passes the
// integrity check is returned without a request.
func cachedDownload(ctx context.Context, cacheDir string, url string, integ *integrity.Checker) (string, error) {
	fp := HTTPCacheFilePath(cacheDir, url)
	if integrity.CheckFile(fp, integ) == nil {
		return fp, nil
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0777); err != nil {
		return "", fmt.Errorf("can't create directories for http cache: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %v: %v", url, resp.Status)
	}
	f, err := os.Create(fp)
	if err != nil {
		return "", fmt.Errorf("can't create http cache file: %v", err)
	}
	integ.Reset()
	_, err = io.Copy(io.MultiWriter(f, integ), resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && !integ.Check() {
		err = integrity.ErrMismatch
	}
	if err != nil {
		_ = os.Remove(fp)
		return "", err
	}
	return fp, nil
}

var errUnsafePath = errors.New("archive entry escapes the destination directory")

func extractZipFile(archivePath string, destDir string, stripPrefix string) error {
	if err := os.RemoveAll(destDir); err != nil {
		return err
	}
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, stripPrefix) {
			continue
		}
		relPath := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(f.Name, stripPrefix)))
		if relPath == "." || f.FileInfo().IsDir() {
			continue
		}
		if filepath.IsAbs(relPath) || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%v: %w", f.Name, errUnsafePath)
		}
		if err := extractZipEntry(f, filepath.Join(destDir, relPath)); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, absPath string) error {
	fr, err := f.Open()
	if err != nil {
		return fmt.Errorf("can't open file for reading %v: %v", f.Name, err)
	}
	defer fr.Close()
	if err := os.MkdirAll(filepath.Dir(absPath), 0777); err != nil {
		return fmt.Errorf("can't create directories for %v: %v", absPath, err)
	}
	mode := os.FileMode(0644)
	if f.Mode()&0111 != 0 {
		mode = 0755
	}
	w, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("can't create file for writing %v: %v", absPath, err)
	}
	defer w.Close()
	if _, err := io.Copy(w, fr); err != nil {
		return fmt.Errorf("error during I/O: %v", err)
	}
	return nil
}
