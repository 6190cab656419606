package workspace

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/pingcap/errors"

	"github.com/salt-formulas/shaker/pkg/metadata"
)

// httpsURL is the fetch URL for a formula. Fetches go over HTTPS with the
// API token; the ssh form in lockfiles is identity only.
func httpsURL(key metadata.PackageKey) string {
	return fmt.Sprintf("https://%s/%s/%s.git", metadata.GitHost, key.Organisation, key.Name)
}

func (m *Materializer) auth() *githttp.BasicAuth {
	if m.Token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "git", Password: m.Token}
}

// installSource clones or updates one formula checkout and detaches it at
// the wanted revision: the given tag (or branch) when useTag is set, the
// dependency's resolved commit sha otherwise.
func (m *Materializer) installSource(ctx context.Context, dep *metadata.Dependency, tag string, useTag bool) error {
	path := m.checkoutPath(dep.Key.Name)

	repo, err := m.openOrClone(ctx, path, dep.Key)
	if err != nil {
		return err
	}

	if !useTag {
		if head, err := repo.Head(); err == nil && head.Hash().String() == dep.SHA {
			m.log.Debug("checkout already at target revision", "formula", dep.Key, "sha", dep.SHA)
			return nil
		}
	}

	if err := m.fetch(ctx, repo, dep.Key); err != nil {
		return err
	}

	var hash plumbing.Hash
	if useTag {
		hash, err = resolveLocalRef(repo, tag)
		if err != nil {
			return errors.Wrapf(err, "resolve %q in %q", tag, path)
		}
	} else {
		hash = plumbing.NewHash(dep.SHA)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrapf(err, "open worktree %q", path)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return errors.Wrapf(err, "checkout %s in %q", hash, path)
	}
	return nil
}

func (m *Materializer) checkoutPath(name string) string {
	return fmt.Sprintf("%s/%s", m.installPath(), name)
}

func (m *Materializer) openOrClone(ctx context.Context, path string, key metadata.PackageKey) (*git.Repository, error) {
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if err != git.ErrRepositoryNotExists {
		return nil, errors.Wrapf(err, "open repository %q", path)
	}
	m.log.Debug("cloning formula repository", "formula", key, "path", path)
	repo, err = git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:  httpsURL(key),
		Auth: m.auth(),
		Tags: git.AllTags,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "clone %s into %q", key, path)
	}
	return repo, nil
}

func (m *Materializer) fetch(ctx context.Context, repo *git.Repository, key metadata.PackageKey) error {
	err := repo.FetchContext(ctx, &git.FetchOptions{
		Auth:  m.auth(),
		Tags:  git.AllTags,
		Force: true,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errors.Wrapf(err, "fetch %s", key)
	}
	return nil
}

// resolveLocalRef resolves a tag or branch name to a commit hash against the
// local clone, peeling annotated tags. A name that is neither a local tag nor
// ref is retried as a remote-tracking branch.
func resolveLocalRef(repo *git.Repository, name string) (plumbing.Hash, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(name))
	if err == nil {
		return *hash, nil
	}
	hash, branchErr := repo.ResolveRevision(plumbing.Revision("origin/" + name))
	if branchErr == nil {
		return *hash, nil
	}
	return plumbing.ZeroHash, err
}
