package constraint

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Tag is the decomposition of a git tag name of the form
// v{major}.{minor}.{patch}(-postfix). Parsing is all-or-nothing: either all
// three numeric fields parse and Valid is true, or the whole value is the
// zero Tag.
type Tag struct {
	Major   uint64
	Minor   uint64
	Patch   uint64
	Postfix string
	Valid   bool
	// Loose marks a postfix that was not attached with the semver "-"
	// separator (e.g. v1.2.3rc1). Loose tags count as prereleases but are
	// never offered as the latest version.
	Loose bool
}

// Tag shapes tried in order: an exact release, a semver-compliant
// prerelease, and a lenient fallback for non-semver suffixes like v1.2.3rc1.
var (
	releaseRe     = regexp.MustCompile(`^v(\d+)\.(\d+)\.(\d+)$`)
	prereleaseRe  = regexp.MustCompile(`^v(\d+)\.(\d+)\.(\d+)-(.+)$`)
	looseSuffixRe = regexp.MustCompile(`^v(\d+)\.(\d+)\.(\d+)(.+)$`)
	tagPatterns   = []*regexp.Regexp{releaseRe, prereleaseRe, looseSuffixRe}
)

// ParseTag classifies a tag name. First matching pattern wins; a tag that
// matches none of them yields the zero Tag.
func ParseTag(name string) Tag {
	for _, re := range tagPatterns {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		major, _ := strconv.ParseUint(m[1], 10, 64)
		minor, _ := strconv.ParseUint(m[2], 10, 64)
		patch, _ := strconv.ParseUint(m[3], 10, 64)
		t := Tag{Major: major, Minor: minor, Patch: patch, Valid: true}
		if len(m) > 4 {
			t.Postfix = m[4]
			t.Loose = re == looseSuffixRe
		}
		return t
	}
	return Tag{}
}

// IsRelease reports whether the tag names a plain release (vX.Y.Z with no
// postfix).
func (t Tag) IsRelease() bool {
	return t.Valid && t.Postfix == ""
}

// IsPrerelease reports whether the tag names a prerelease (vX.Y.Z with a
// postfix). A tag can be neither a release nor a prerelease, never both.
func (t Tag) IsPrerelease() bool {
	return t.Valid && t.Postfix != ""
}

func (t Tag) semver() *semver.Version {
	return semver.New(t.Major, t.Minor, t.Patch, t.Postfix, "")
}

// Compare orders tags by (major, minor, patch) with prereleases sorting
// before the release they lead up to. Invalid tags sort before valid ones.
func (t Tag) Compare(other Tag) int {
	switch {
	case !t.Valid && !other.Valid:
		return 0
	case !t.Valid:
		return -1
	case !other.Valid:
		return 1
	}
	return t.semver().Compare(other.semver())
}

// CompareVersions orders two bare version strings ("1.2.3", "1.1") using
// semantic ordering where both parse, falling back to lexicographic order
// for non-semver values.
func CompareVersions(a, b string) int {
	av, errA := semver.NewVersion(a)
	bv, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return av.Compare(bv)
}

// SortVersions orders bare version strings ascending, in place.
func SortVersions(versions []string) {
	slices.SortFunc(versions, CompareVersions)
}

// LatestVersion picks the newest version from a list of bare version strings.
// Prereleases are skipped unless includePrereleases is set; versions whose
// tag form is neither a release nor a prerelease are never picked. Returns ""
// when nothing qualifies.
func LatestVersion(versions []string, includePrereleases bool) string {
	sorted := slices.Clone(versions)
	SortVersions(sorted)
	for i := len(sorted) - 1; i >= 0; i-- {
		t := ParseTag("v" + sorted[i])
		if t.IsRelease() {
			return sorted[i]
		}
		if includePrereleases && t.IsPrerelease() && !t.Loose {
			return sorted[i]
		}
	}
	return ""
}
