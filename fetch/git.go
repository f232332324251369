package fetch

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Git represents a Git repository checked out at a tag.
type Git struct {
	Repo string
	Tag  string
}

func (g *Git) Fetch(ctx context.Context, name string, env *Env) (string, error) {
	return cachedFetch(ctx, name, env, g.Fingerprint(), g.clone)
}

func (g *Git) Fingerprint() string {
	return g.Repo + "@" + g.Tag
}

func (g *Git) clone(ctx context.Context, dir string) error {
	opts := &git.CloneOptions{
		URL:               g.Repo,
		SingleBranch:      true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}
	if g.Tag != "" {
		opts.ReferenceName = plumbing.NewTagReferenceName(g.Tag)
	}
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("error cloning %v: %w", g.Fingerprint(), err)
	}
	return nil
}
