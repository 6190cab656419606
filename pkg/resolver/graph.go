// Package resolver walks a formula's dependency graph against a remote host,
// merges the constraints discovered along every path, and pins each formula
// to a single concrete revision.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/salt-formulas/shaker/pkg/github"
	"github.com/salt-formulas/shaker/pkg/metadata"
)

// maxParallelResolves bounds concurrent remote calls while pinning.
const maxParallelResolves = 8

// Options controls a resolution run.
type Options struct {
	// IgnoreLocalRequirements resolves from the manifest's declared
	// dependencies even when a local lockfile exists.
	IgnoreLocalRequirements bool
	// IgnoreDependencyRequirements skips each dependency's own lockfile and
	// always reads its manifest instead.
	IgnoreDependencyRequirements bool
	// IncludePrereleases lets unconstrained formulas resolve to prerelease
	// tags when no release tag is newer.
	IncludePrereleases bool
}

// GraphResolver accumulates the transitive dependency set of a single root
// formula. It is single-run state: construct one per resolution.
type GraphResolver struct {
	remote Remote
	log    *slog.Logger

	root      metadata.PackageKey
	hasRoot   bool
	rootDeps  metadata.Set
	localReqs metadata.Set

	prereleases bool
	deps        metadata.Set
}

// NewGraphResolver prepares a resolver for the given root manifest. localReqs
// holds the previously pinned lockfile entries, nil when none exist.
func NewGraphResolver(remote Remote, manifest *metadata.Manifest, localReqs metadata.Set) (*GraphResolver, error) {
	root, hasRoot, err := manifest.RootKey()
	if err != nil {
		return nil, err
	}
	rootDeps, err := manifest.DependencySet()
	if err != nil {
		return nil, err
	}
	return &GraphResolver{
		remote:    remote,
		log:       slog.Default(),
		root:      root,
		hasRoot:   hasRoot,
		rootDeps:  rootDeps,
		localReqs: localReqs,
		deps:      make(metadata.Set),
	}, nil
}

// Root returns the root formula's own identity, when it declares one.
func (r *GraphResolver) Root() (metadata.PackageKey, bool) {
	return r.root, r.hasRoot
}

// Dependencies returns the accumulated dependency set.
func (r *GraphResolver) Dependencies() metadata.Set {
	return r.deps
}

// UpdateDependencies rebuilds the dependency set from scratch. When a local
// lockfile was loaded it seeds the walk, so repeated runs against an
// unchanged remote reproduce the same pins; the manifest's declared
// dependencies seed it otherwise.
func (r *GraphResolver) UpdateDependencies(ctx context.Context, opts Options) error {
	r.deps = make(metadata.Set)
	r.prereleases = opts.IncludePrereleases

	base := r.rootDeps
	if !opts.IgnoreLocalRequirements && len(r.localReqs) > 0 {
		r.log.Info("resolving from local requirements", "entries", len(r.localReqs))
		base = r.localReqs
	}
	return r.fetchDependencies(ctx, base, opts.IgnoreDependencyRequirements)
}

// fetchDependencies walks one level of the graph and recurses into whatever
// it changed. Each (formula, constraint) pair is fetched at most once per
// run, which is also what terminates cyclic graphs.
func (r *GraphResolver) fetchDependencies(ctx context.Context, base metadata.Set, ignoreDepReqs bool) error {
	for _, key := range base.Keys() {
		dep := base[key]
		if r.hasRoot && key == r.root {
			r.log.Debug("skipping dependency on the root formula itself", "formula", key)
			continue
		}
		if existing, ok := r.deps[key]; ok && existing.Sourced(dep.Constraint) {
			r.log.Debug("constraint already sourced", "formula", key, "constraint", dep.Constraint)
			continue
		}
		r.markSourced(dep)

		sub, err := r.fetchRemoteDependencies(ctx, key, dep.Constraint, ignoreDepReqs)
		if err != nil {
			return err
		}
		touched, err := r.addDependencies(sub)
		if err != nil {
			return err
		}
		if len(touched) > 0 {
			if err := r.fetchDependencies(ctx, touched, ignoreDepReqs); err != nil {
				return err
			}
		}
	}
	return nil
}

// markSourced records that the given constraint has been fetched for its
// formula, creating the dependency record on first sight.
func (r *GraphResolver) markSourced(dep *metadata.Dependency) {
	rec, ok := r.deps[dep.Key]
	if !ok {
		rec = dep.Clone()
		r.deps[dep.Key] = rec
	}
	if !rec.Sourced(dep.Constraint) {
		rec.SourcedConstraints = append(rec.SourcedConstraints, dep.Constraint)
	}
}

// addDependencies merges freshly discovered dependencies into the accumulated
// set and returns the subset whose effective constraint is new, i.e. the
// records the caller still has to fetch.
func (r *GraphResolver) addDependencies(sub metadata.Set) (metadata.Set, error) {
	touched := make(metadata.Set)
	for _, key := range sub.Keys() {
		if r.hasRoot && key == r.root {
			r.log.Debug("ignoring dependency on the root formula itself", "formula", key)
			continue
		}
		found := sub[key]
		existing, ok := r.deps[key]
		if !ok {
			rec := found.Clone()
			r.deps[key] = rec
			touched[key] = rec
			continue
		}
		merged, err := MergeConstraints(found.Constraint, existing.Constraint)
		if err != nil {
			var rerr *ResolutionError
			if errors.As(err, &rerr) && rerr.Key == "" {
				rerr.Key = key.String()
			}
			return nil, err
		}
		if merged != existing.Constraint {
			r.log.Debug("merged constraints",
				"formula", key, "was", existing.Constraint, "now", merged)
			existing.Constraint = merged
			touched[key] = existing
		}
	}
	return touched, nil
}

// fetchRemoteDependencies resolves the formula to a revision and reads its
// dependency declarations at that revision: the pinned lockfile when present
// (and not ignored), the manifest otherwise. A formula publishing neither has
// no dependencies.
func (r *GraphResolver) fetchRemoteDependencies(ctx context.Context, key metadata.PackageKey, rawConstraint string, ignoreDepReqs bool) (metadata.Set, error) {
	rev, err := ResolveConstraint(ctx, r.remote, key, rawConstraint, r.prereleases)
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, resolutionErrorf(key.String(), rawConstraint, "no release tag to resolve against")
	}
	r.log.Debug("fetching dependencies", "formula", key, "revision", rev.Tag)

	if !ignoreDepReqs {
		data, err := r.remote.FetchFile(ctx, key.Organisation, key.Name, rev.Tag, metadata.RequirementsFilename)
		if err != nil && !errors.Is(err, github.ErrNotFound) {
			return nil, err
		}
		if err == nil {
			return metadata.ReadRequirements(data)
		}
	}

	data, err := r.remote.FetchFile(ctx, key.Organisation, key.Name, rev.Tag, metadata.ManifestFilename)
	if errors.Is(err, github.ErrNotFound) {
		r.log.Debug("formula publishes no manifest", "formula", key, "revision", rev.Tag)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	manifest, err := metadata.ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return manifest.DependencySet()
}

// Pin resolves every accumulated dependency's merged constraint to a concrete
// tag and commit sha.
func (r *GraphResolver) Pin(ctx context.Context) error {
	return PinSet(ctx, r.remote, r.deps, r.prereleases)
}

// PinSet resolves each dependency's constraint to a concrete tag and commit
// sha, filling the records in place. Independent remote lookups run in
// parallel.
func PinSet(ctx context.Context, remote Remote, deps metadata.Set, includePrereleases bool) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelResolves)

	var mu sync.Mutex
	for _, key := range deps.Keys() {
		dep := deps[key]
		g.Go(func() error {
			rev, err := ResolveConstraint(ctx, remote, dep.Key, dep.Constraint, includePrereleases)
			if err != nil {
				return err
			}
			if rev == nil {
				return resolutionErrorf(dep.Key.String(), dep.Constraint, "no release tag to pin to")
			}
			mu.Lock()
			dep.Tag = rev.Tag
			dep.SHA = rev.SHA
			mu.Unlock()
			slog.Debug("pinned formula", "formula", dep.Key, "tag", rev.Tag, "sha", rev.SHA)
			return nil
		})
	}
	return g.Wait()
}

// Resolve is the full run: walk the graph, then pin it.
func (r *GraphResolver) Resolve(ctx context.Context, opts Options) error {
	if err := r.UpdateDependencies(ctx, opts); err != nil {
		return err
	}
	return r.Pin(ctx)
}

// RequirementsLines renders the pinned set in short "org/name==tag" form,
// sorted by key.
func (r *GraphResolver) RequirementsLines() []string {
	return r.deps.RequirementLines()
}

// PinnedLines renders the pinned set in full clone-url lockfile form, sorted
// by key.
func (r *GraphResolver) PinnedLines() []string {
	return r.deps.PinnedLines()
}
