package testutil

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StaticServer serves a fixed set of files and counts how often each path was requested.
type StaticServer struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func StaticHttpServer(files map[string][]byte) *StaticServer {
	s := &StaticServer{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		s.hits[req.URL.Path]++
		s.mu.Unlock()
		p, ok := files[req.URL.Path]
		if ok {
			_, _ = w.Write(p)
		} else {
			http.NotFound(w, req)
		}
	}))
	return s
}

// Hits returns the number of requests seen for `path`.
func (s *StaticServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func BuildZipArchive(t *testing.T, files map[string][]byte) []byte {
	b := &bytes.Buffer{}
	w := zip.NewWriter(b)
	for path, contents := range files {
		fw, err := w.Create(path)
		require.NoError(t, err, path)
		_, err = fw.Write(contents)
		require.NoError(t, err, path)
	}
	require.NoError(t, w.Close())
	return b.Bytes()
}

func WriteFile(t *testing.T, filename string, contents string) {
	WriteFileBytes(t, filename, []byte(contents))
}

func WriteFileBytes(t *testing.T, filename string, contents []byte) {
	require.NoError(t, os.MkdirAll(filepath.Dir(filename), 0777))
	require.NoError(t, os.WriteFile(filename, contents, 0644))
}

// WriteExecutable creates an empty file with the executable bit set, standing in for a host tool.
func WriteExecutable(t *testing.T, filename string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(filename), 0777))
	require.NoError(t, os.WriteFile(filename, []byte("#!/bin/sh\n"), 0755))
}

func AssertFileContents(t *testing.T, filename string, contents string) {
	actual, err := os.ReadFile(filename)
	if assert.NoError(t, err) {
		assert.Equal(t, contents, string(actual))
	}
}

func AssertFileContentsBytes(t *testing.T, filename string, contents []byte) {
	actual, err := os.ReadFile(filename)
	if assert.NoError(t, err) {
		assert.Equal(t, contents, actual)
	}
}

// GitRepo initializes a git repository in `dir` holding `files` in a single commit, tagged with each of `tags`.
func GitRepo(t *testing.T, dir string, files map[string]string, tags ...string) {
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for name, contents := range files {
		WriteFile(t, filepath.Join(dir, filepath.FromSlash(name)), contents)
		_, err = wt.Add(name)
		require.NoError(t, err, name)
	}
	commit, err := wt.Commit("import sources", &git.CommitOptions{
		Author: &object.Signature{Name: "depresolve", Email: "depresolve@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)
	for _, tag := range tags {
		_, err = repo.CreateTag(tag, commit, nil)
		require.NoError(t, err, tag)
	}
}
