// Package metadata holds the formula dependency data model: package keys,
// dependency records, the metadata.yml manifest, and the pinned
// formula-requirements lockfile.
package metadata

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// GitHost is the hosting provider all formula sources live on.
const GitHost = "github.com"

// ConfigError reports malformed manifest or requirements content. It is not
// recoverable and aborts the run.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// PackageKey uniquely identifies a formula by organisation and name.
// Comparison is case-sensitive on both fields.
type PackageKey struct {
	Organisation string
	Name         string
}

func (k PackageKey) String() string {
	return k.Organisation + "/" + k.Name
}

// ParsePackageKey splits an "organisation/formula-name" string.
func ParsePackageKey(s string) (PackageKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return PackageKey{}, configErrorf("bad formula name %q, expected '<organisation>/<formula-name>'", s)
	}
	return PackageKey{Organisation: parts[0], Name: parts[1]}, nil
}

// Dependency is one entry in the resolved dependency set. Records are
// created when a formula is first discovered and mutated in place as more
// constraints are merged in; SHA and Tag are filled once the remote resolves
// a concrete revision.
type Dependency struct {
	Key    PackageKey
	Source string
	// Constraint is the current merged constraint string, e.g. "==v1.2.3".
	Constraint string
	// SourcedConstraints lists every constraint string already fetched for
	// this formula in the current run. Grows monotonically; it is the cycle
	// breaker and remote-call deduplicator.
	SourcedConstraints []string
	SHA                string
	Tag                string
}

// Sourced reports whether the given constraint string has already been
// fetched for this record.
func (d *Dependency) Sourced(constraint string) bool {
	for _, c := range d.SourcedConstraints {
		if c == constraint {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record.
func (d *Dependency) Clone() *Dependency {
	out := *d
	out.SourcedConstraints = append([]string(nil), d.SourcedConstraints...)
	return &out
}

// RequirementLine renders the short pinned form, "org/name==v1.2.3".
func (d *Dependency) RequirementLine() string {
	return fmt.Sprintf("%s==%s", d.Key, d.Tag)
}

// PinnedSource renders the full lockfile form,
// "git@github.com:org/name.git==v1.2.3".
func (d *Dependency) PinnedSource() string {
	return fmt.Sprintf("%s==%s", d.Source, d.Tag)
}

// Set is the accumulating dependency map built during a resolution run.
type Set map[PackageKey]*Dependency

// Keys returns the package keys in sorted order for deterministic output.
func (s Set) Keys() []PackageKey {
	keys := make([]PackageKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b PackageKey) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

// RequirementLines renders every entry in short "org/name==tag" form, sorted
// by key.
func (s Set) RequirementLines() []string {
	lines := make([]string, 0, len(s))
	for _, key := range s.Keys() {
		lines = append(lines, s[key].RequirementLine())
	}
	return lines
}

// PinnedLines renders every entry in full clone-url lockfile form, sorted by
// key.
func (s Set) PinnedLines() []string {
	lines := make([]string, 0, len(s))
	for _, key := range s.Keys() {
		lines = append(lines, s[key].PinnedSource())
	}
	return lines
}

var sourceURLRe = regexp.MustCompile(`^git@` + GitHost + `:([^/]+)/(.+?)\.git(.*)$`)

// SourceURL builds the canonical clone URL for a package key.
func SourceURL(key PackageKey) string {
	return fmt.Sprintf("git@%s:%s/%s.git", GitHost, key.Organisation, key.Name)
}

// ParseSourceURL parses a clone URL with optional trailing constraint, e.g.
// "git@github.com:org/ntp-formula.git==v1.2.3".
func ParseSourceURL(url string) (*Dependency, error) {
	m := sourceURLRe.FindStringSubmatch(url)
	if m == nil {
		return nil, configErrorf("could not parse source url %q", url)
	}
	key := PackageKey{Organisation: m[1], Name: m[2]}
	return &Dependency{
		Key:        key,
		Source:     SourceURL(key),
		Constraint: m[3],
	}, nil
}

var shortRequirementRe = regexp.MustCompile(`^(.*?)([=><]{2})\s*(.*)$`)

// ParseRequirementEntry parses a single dependency declaration. Both the full
// clone-url form and the short "org/name==v1.0" form are accepted; a bare
// "org/name" means unconstrained.
func ParseRequirementEntry(entry string) (*Dependency, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, ".git") || strings.Contains(entry, "git@") {
		return ParseSourceURL(entry)
	}
	if m := shortRequirementRe.FindStringSubmatch(entry); m != nil {
		return ParseSourceURL(fmt.Sprintf("git@%s:%s.git%s%s", GitHost, m[1], m[2], m[3]))
	}
	return ParseSourceURL(fmt.Sprintf("git@%s:%s.git", GitHost, entry))
}

// ParseRequirements parses a list of dependency declarations into a Set,
// keyed by organisation/name. Duplicate keys keep the first entry.
func ParseRequirements(entries []string) (Set, error) {
	deps := make(Set, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		dep, err := ParseRequirementEntry(entry)
		if err != nil {
			return nil, err
		}
		if _, ok := deps[dep.Key]; ok {
			continue
		}
		deps[dep.Key] = dep
	}
	return deps, nil
}
