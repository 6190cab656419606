package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/salt-formulas/shaker/pkg/github"
	"github.com/salt-formulas/shaker/pkg/metadata"
)

func releaseTag(version, sha string) github.Tag {
	return github.Tag{Name: version, SHA: sha}
}

func manifestYAML(formula string, deps ...string) string {
	out := "formula: " + formula + "\ndependencies:\n"
	for _, d := range deps {
		out += "  - " + d + "\n"
	}
	return out
}

func newTestResolver(t *testing.T, remote Remote, manifestData string, localReqs metadata.Set) *GraphResolver {
	t.Helper()
	manifest, err := metadata.ParseManifest([]byte(manifestData))
	require.NoError(t, err)
	r, err := NewGraphResolver(remote, manifest, localReqs)
	require.NoError(t, err)
	return r
}

func TestResolveTransitive(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.addTags("org", "app-formula", releaseTag("v1.0.0", "sha-app"))
	remote.addFile("org", "app-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/app-formula", "org/lib-formula"))
	remote.addTags("org", "lib-formula", releaseTag("v2.0.0", "sha-lib"))

	r := newTestResolver(t, remote, "dependencies:\n  - org/app-formula==v1.0.0\n", nil)
	require.NoError(t, r.Resolve(context.Background(), Options{}))

	require.Equal(t, []string{
		"org/app-formula==v1.0.0",
		"org/lib-formula==v2.0.0",
	}, r.RequirementsLines())
	require.Equal(t, []string{
		"git@github.com:org/app-formula.git==v1.0.0",
		"git@github.com:org/lib-formula.git==v2.0.0",
	}, r.PinnedLines())

	app := r.Dependencies()[metadata.PackageKey{Organisation: "org", Name: "app-formula"}]
	require.Equal(t, "sha-app", app.SHA)
	require.Equal(t, "v1.0.0", app.Tag)
}

func TestResolveTerminatesOnCycle(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.addTags("org", "a-formula", releaseTag("v1.0.0", "sha-a"))
	remote.addFile("org", "a-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/a-formula", "org/b-formula==v1.0.0"))
	remote.addTags("org", "b-formula", releaseTag("v1.0.0", "sha-b"))
	remote.addFile("org", "b-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/b-formula", "org/a-formula==v1.0.0"))

	r := newTestResolver(t, remote, "dependencies:\n  - org/a-formula==v1.0.0\n", nil)
	require.NoError(t, r.Resolve(context.Background(), Options{}))

	require.Equal(t, []string{
		"org/a-formula==v1.0.0",
		"org/b-formula==v1.0.0",
	}, r.RequirementsLines())
	require.Equal(t, 1, remote.callCount("file org/a-formula "+metadata.ManifestFilename))
	require.Equal(t, 1, remote.callCount("file org/b-formula "+metadata.ManifestFilename))
}

// Two formulas pulling in the same third with an identical constraint must
// cause only one metadata fetch for it.
func TestResolveDeduplicatesSourcedConstraints(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.addTags("org", "c-formula", releaseTag("v1.0.0", "sha-c"))
	remote.addFile("org", "c-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/c-formula", "org/shared-formula==v1.0.0"))
	remote.addTags("org", "d-formula", releaseTag("v1.0.0", "sha-d"))
	remote.addFile("org", "d-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/d-formula", "org/shared-formula==v1.0.0"))
	remote.addTags("org", "shared-formula", releaseTag("v1.0.0", "sha-shared"))

	r := newTestResolver(t, remote,
		"dependencies:\n  - org/c-formula==v1.0.0\n  - org/d-formula==v1.0.0\n", nil)
	require.NoError(t, r.UpdateDependencies(context.Background(), Options{}))

	require.Equal(t, 1, remote.callCount("file org/shared-formula "+metadata.ManifestFilename))

	shared := r.Dependencies()[metadata.PackageKey{Organisation: "org", Name: "shared-formula"}]
	require.NotNil(t, shared)
	require.Equal(t, []string{"==v1.0.0"}, shared.SourcedConstraints)
}

func TestResolveSkipsRootSelfReference(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.addTags("org", "a-formula", releaseTag("v1.0.0", "sha-a"))
	remote.addFile("org", "a-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/a-formula", "org/root-formula==v1.0.0"))

	r := newTestResolver(t, remote,
		manifestYAML("org/root-formula", "org/a-formula==v1.0.0"), nil)
	require.NoError(t, r.UpdateDependencies(context.Background(), Options{}))

	_, hasRoot := r.Dependencies()[metadata.PackageKey{Organisation: "org", Name: "root-formula"}]
	require.False(t, hasRoot, "the root formula must not become its own dependency")
	require.Equal(t, 0, remote.callCount("file org/root-formula "+metadata.ManifestFilename))
}

func TestResolveMergesConstraintsAcrossPaths(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.addTags("org", "c-formula", releaseTag("v1.0.0", "sha-c"))
	remote.addFile("org", "c-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/c-formula", "org/shared-formula>=v1.0.0"))
	remote.addTags("org", "d-formula", releaseTag("v1.0.0", "sha-d"))
	remote.addFile("org", "d-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/d-formula", "org/shared-formula>=v2.0.0"))
	remote.addTags("org", "shared-formula",
		releaseTag("v1.0.0", "sha-shared-1"),
		releaseTag("v2.0.0", "sha-shared-2"),
		releaseTag("v3.0.0", "sha-shared-3"),
	)

	r := newTestResolver(t, remote,
		"dependencies:\n  - org/c-formula==v1.0.0\n  - org/d-formula==v1.0.0\n", nil)
	require.NoError(t, r.Resolve(context.Background(), Options{}))

	shared := r.Dependencies()[metadata.PackageKey{Organisation: "org", Name: "shared-formula"}]
	require.NotNil(t, shared)
	require.Equal(t, ">=v2.0.0", shared.Constraint)
	require.Equal(t, "v3.0.0", shared.Tag)
	require.Equal(t, "sha-shared-3", shared.SHA)
}

func TestResolveContradictoryConstraints(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.addTags("org", "c-formula", releaseTag("v1.0.0", "sha-c"))
	remote.addFile("org", "c-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/c-formula", "org/shared-formula>=v2.0.0"))
	remote.addTags("org", "d-formula", releaseTag("v1.0.0", "sha-d"))
	remote.addFile("org", "d-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/d-formula", "org/shared-formula<=v1.0.0"))
	remote.addTags("org", "shared-formula", releaseTag("v2.0.0", "sha-shared"))

	r := newTestResolver(t, remote,
		"dependencies:\n  - org/c-formula==v1.0.0\n  - org/d-formula==v1.0.0\n", nil)

	var rerr *ResolutionError
	err := r.UpdateDependencies(context.Background(), Options{})
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "org/shared-formula", rerr.Key)
}

// Resolving twice against an unchanged remote must produce identical pins.
func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.addTags("org", "app-formula", releaseTag("v1.0.0", "sha-app"))
	remote.addFile("org", "app-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/app-formula", "org/lib-formula"))
	remote.addTags("org", "lib-formula", releaseTag("v2.0.0", "sha-lib"))

	r := newTestResolver(t, remote, "dependencies:\n  - org/app-formula==v1.0.0\n", nil)
	require.NoError(t, r.Resolve(context.Background(), Options{}))
	first := r.PinnedLines()

	require.NoError(t, r.Resolve(context.Background(), Options{}))
	require.Equal(t, first, r.PinnedLines())
}

func TestResolvePrefersLocalRequirements(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.addTags("org", "app-formula",
		releaseTag("v1.0.0", "sha-app-1"),
		releaseTag("v2.0.0", "sha-app-2"),
	)

	localReqs, err := metadata.ParseRequirements([]string{
		"git@github.com:org/app-formula.git==v1.0.0",
	})
	require.NoError(t, err)

	r := newTestResolver(t, remote, "dependencies:\n  - org/app-formula\n", localReqs)
	require.NoError(t, r.Resolve(context.Background(), Options{}))
	require.Equal(t, []string{"org/app-formula==v1.0.0"}, r.RequirementsLines())

	// Ignoring the lockfile resolves the manifest's unconstrained entry to
	// the newest release instead.
	require.NoError(t, r.Resolve(context.Background(), Options{IgnoreLocalRequirements: true}))
	require.Equal(t, []string{"org/app-formula==v2.0.0"}, r.RequirementsLines())
}

func TestResolveUsesDependencyRequirementsFile(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.addTags("org", "app-formula", releaseTag("v1.0.0", "sha-app"))
	// The published lockfile pins lib to v1, the manifest would float to v2.
	remote.addFile("org", "app-formula", "v1.0.0", metadata.RequirementsFilename,
		"git@github.com:org/lib-formula.git==v1.0.0\n")
	remote.addFile("org", "app-formula", "v1.0.0", metadata.ManifestFilename,
		manifestYAML("org/app-formula", "org/lib-formula"))
	remote.addTags("org", "lib-formula",
		releaseTag("v1.0.0", "sha-lib-1"),
		releaseTag("v2.0.0", "sha-lib-2"),
	)

	r := newTestResolver(t, remote, "dependencies:\n  - org/app-formula==v1.0.0\n", nil)
	require.NoError(t, r.Resolve(context.Background(), Options{}))
	require.Contains(t, r.RequirementsLines(), "org/lib-formula==v1.0.0")

	r2 := newTestResolver(t, remote, "dependencies:\n  - org/app-formula==v1.0.0\n", nil)
	require.NoError(t, r2.Resolve(context.Background(), Options{IgnoreDependencyRequirements: true}))
	require.Contains(t, r2.RequirementsLines(), "org/lib-formula==v2.0.0")
}
