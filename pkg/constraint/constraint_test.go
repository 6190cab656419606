package constraint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want Constraint
	}{
		{
			name: "empty",
			raw:  "",
			want: Constraint{},
		},
		{
			name: "equality",
			raw:  "==v1.2.3",
			want: Constraint{Comparator: "==", Tag: "v1.2.3", Version: "1.2.3"},
		},
		{
			name: "greater or equal",
			raw:  ">=v2.0.1",
			want: Constraint{Comparator: ">=", Tag: "v2.0.1", Version: "2.0.1"},
		},
		{
			name: "less or equal",
			raw:  "<=v1.1.0",
			want: Constraint{Comparator: "<=", Tag: "v1.1.0", Version: "1.1.0"},
		},
		{
			name: "whitespace between comparator and tag",
			raw:  "== v1.2.3",
			want: Constraint{Comparator: "==", Tag: "v1.2.3", Version: "1.2.3"},
		},
		{
			name: "branch name",
			raw:  "==my_branch",
			want: Constraint{Comparator: "==", Tag: "my_branch"},
		},
		{
			name: "comparator without tag",
			raw:  ">=",
			want: Constraint{},
		},
		{
			name: "garbage",
			raw:  "v1.2.3",
			want: Constraint{},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Parse(tt.raw))
		})
	}
}

func TestParseEmptyAndVersioned(t *testing.T) {
	t.Parallel()

	c := Parse("==v1.2.3")
	require.False(t, c.Empty())
	require.True(t, c.Versioned())
	require.Equal(t, "==v1.2.3", c.String())

	branch := Parse("==feature_branch")
	require.False(t, branch.Empty())
	require.False(t, branch.Versioned())

	require.True(t, Parse("").Empty())
}

func TestParseTag(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		tag          string
		valid        bool
		isRelease    bool
		isPrerelease bool
		loose        bool
		wantPostfix  string
	}{
		{name: "release", tag: "v1.2.3", valid: true, isRelease: true},
		{name: "prerelease", tag: "v1.2.3-rc1", valid: true, isPrerelease: true, wantPostfix: "rc1"},
		{name: "describe output", tag: "v0.2.2-1-g1b520c5", valid: true, isPrerelease: true, wantPostfix: "1-g1b520c5"},
		{name: "loose suffix", tag: "v3.3.3notsemver", valid: true, isPrerelease: true, loose: true, wantPostfix: "notsemver"},
		{name: "branch name", tag: "my_branch"},
		{name: "missing v prefix", tag: "1.2.3"},
		{name: "two components", tag: "v1.2"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseTag(tt.tag)
			require.Equal(t, tt.valid, got.Valid)
			require.Equal(t, tt.isRelease, got.IsRelease())
			require.Equal(t, tt.isPrerelease, got.IsPrerelease())
			require.Equal(t, tt.loose, got.Loose)
			require.Equal(t, tt.wantPostfix, got.Postfix)
		})
	}
}

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	require.Negative(t, CompareVersions("1.0.1", "1.1.0"))
	require.Positive(t, CompareVersions("2.0.1", "1.9.9"))
	require.Zero(t, CompareVersions("1.2.3", "1.2.3"))
	// Prereleases order below their release.
	require.Negative(t, CompareVersions("2.0.0-rc1", "2.0.0"))
}

func TestSortVersions(t *testing.T) {
	t.Parallel()

	versions := []string{"2.0.1", "1.0.1", "10.0.0", "1.1.0"}
	SortVersions(versions)
	require.Equal(t, []string{"1.0.1", "1.1.0", "2.0.1", "10.0.0"}, versions)
}

func TestLatestVersion(t *testing.T) {
	t.Parallel()
	versions := []string{"1.1.1", "2.2.2-pre", "3.3.3notsemver"}

	t.Run("releases only", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "1.1.1", LatestVersion(versions, false))
	})
	t.Run("with prereleases", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "2.2.2-pre", LatestVersion(versions, true))
	})
	t.Run("no candidates", func(t *testing.T) {
		t.Parallel()
		require.Empty(t, LatestVersion([]string{"3.3.3notsemver"}, true))
		require.Empty(t, LatestVersion(nil, false))
	})
}
