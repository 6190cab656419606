package resolver

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/salt-formulas/shaker/pkg/constraint"
	"github.com/salt-formulas/shaker/pkg/github"
	"github.com/salt-formulas/shaker/pkg/metadata"
)

// Remote supplies tag listings, branch heads, and raw file content for a
// hosted formula repository. *github.Client implements it; tests substitute
// fakes.
type Remote interface {
	ListTags(ctx context.Context, org, name string) ([]github.Tag, error)
	Branch(ctx context.Context, org, name, branch string) (*github.Ref, error)
	FetchFile(ctx context.Context, org, name, ref, path string) ([]byte, error)
}

// Revision is a concrete resolved ref: a tag or branch name plus the commit
// it points at.
type Revision struct {
	Tag string
	SHA string
}

// tagIndex is a repository's tag listing prepared for constraint matching:
// the bare versions of every version-shaped tag in ascending order, plus the
// commit sha for every tag regardless of shape.
type tagIndex struct {
	versions []string
	shaByTag map[string]string
}

func indexTags(tags []github.Tag) tagIndex {
	idx := tagIndex{shaByTag: make(map[string]string, len(tags))}
	for _, t := range tags {
		idx.shaByTag[t.Name] = t.SHA
		if constraint.ParseTag(t.Name).Valid {
			idx.versions = append(idx.versions, strings.TrimPrefix(t.Name, "v"))
		} else {
			slog.Debug("ignoring non-versioned tag", "tag", t.Name)
		}
	}
	constraint.SortVersions(idx.versions)
	return idx
}

func (idx tagIndex) revision(version string) *Revision {
	tag := "v" + version
	return &Revision{Tag: tag, SHA: idx.shaByTag[tag]}
}

// ResolveConstraint picks the single revision of org/name that best satisfies
// the raw constraint string:
//
//   - a constraint whose tag is not version-shaped names a branch, resolved
//     directly against the branch list
//   - an empty constraint selects the latest release tag (prereleases only
//     when includePrereleases is set); nil, nil when the repository has no
//     such tag
//   - "==" must match an available version verbatim
//   - ">=" and "<=" scan from the newest version down, skipping prereleases;
//     a ">=" scan fails as soon as it passes below the requested version
//
// Unsatisfiable constraints return a *ResolutionError.
func ResolveConstraint(ctx context.Context, remote Remote, key metadata.PackageKey, raw string, includePrereleases bool) (*Revision, error) {
	c := constraint.Parse(raw)
	if raw != "" && c.Empty() {
		return nil, &FormatError{Constraint: raw}
	}

	if !c.Empty() && !c.Versioned() {
		// Not version-shaped, so the tag names a branch.
		slog.Debug("constraint names a branch", "formula", key, "branch", c.Tag)
		ref, err := remote.Branch(ctx, key.Organisation, key.Name, c.Tag)
		if errors.Is(err, github.ErrNotFound) {
			return nil, resolutionErrorf(key.String(), raw, "branch %q does not exist", c.Tag)
		}
		if err != nil {
			return nil, err
		}
		return &Revision{Tag: ref.Name, SHA: ref.SHA}, nil
	}

	tags, err := remote.ListTags(ctx, key.Organisation, key.Name)
	if err != nil && !errors.Is(err, github.ErrNotFound) {
		return nil, err
	}
	idx := indexTags(tags)

	if c.Empty() {
		latest := constraint.LatestVersion(idx.versions, includePrereleases)
		if latest == "" {
			slog.Debug("no suitable release tag", "formula", key)
			return nil, nil
		}
		return idx.revision(latest), nil
	}

	if len(idx.versions) == 0 {
		return nil, resolutionErrorf(key.String(), raw, "repository has no versioned tags")
	}

	switch c.Comparator {
	case "==":
		if slices.Contains(idx.versions, c.Version) {
			return &Revision{Tag: c.Tag, SHA: idx.shaByTag[c.Tag]}, nil
		}
		return nil, resolutionErrorf(key.String(), raw,
			"version %s not in tag list %v", c.Version, idx.versions)

	case ">=":
		for i := len(idx.versions) - 1; i >= 0; i-- {
			v := idx.versions[i]
			if constraint.CompareVersions(v, c.Version) < 0 {
				// Everything below here is too old; the scan stops rather
				// than settling for a lesser version.
				return nil, resolutionErrorf(key.String(), raw, "no non-prerelease version satisfies the bound")
			}
			if constraint.ParseTag("v" + v).IsPrerelease() {
				slog.Debug("skipping prerelease version", "formula", key, "version", v)
				continue
			}
			return idx.revision(v), nil
		}
		return nil, resolutionErrorf(key.String(), raw, "no non-prerelease version satisfies the bound")

	case "<=":
		for i := len(idx.versions) - 1; i >= 0; i-- {
			v := idx.versions[i]
			if constraint.CompareVersions(v, c.Version) > 0 {
				continue
			}
			if constraint.ParseTag("v" + v).IsPrerelease() {
				slog.Debug("skipping prerelease version", "formula", key, "version", v)
				continue
			}
			return idx.revision(v), nil
		}
		return nil, resolutionErrorf(key.String(), raw, "no non-prerelease version satisfies the bound")

	default:
		return nil, resolutionErrorf(key.String(), raw, "unknown comparator %q", c.Comparator)
	}
}
