package metadata

import (
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ManifestFilename is the per-formula dependency manifest.
	ManifestFilename = "metadata.yml"
	// RequirementsFilename is the flat pinned lockfile.
	RequirementsFilename = "formula-requirements.txt"
)

// Manifest is a formula's own declared metadata.
type Manifest struct {
	// Formula is the "organisation/name" identity of the formula. Deploy
	// formulas (top-level environments) may leave it empty.
	Formula string `yaml:"formula"`
	// Dependencies lists constraint strings, in clone-url or short form.
	Dependencies []string `yaml:"dependencies"`
	// Exports names the directories the formula wants linked into the salt
	// root. Empty means the single default export.
	Exports []string `yaml:"exports"`
}

// ParseManifest decodes a metadata.yml document. Any shape problem is a
// ConfigError; missing optional keys are not.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, configErrorf("manifest is not a valid mapping: %v", err)
	}
	return &m, nil
}

// LoadManifest reads and parses a manifest file from disk.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf("could not load manifest %q: %v", path, err)
	}
	return ParseManifest(data)
}

// RootKey parses the manifest's own formula identity. ok is false for deploy
// formulas that declare no identity of their own.
func (m *Manifest) RootKey() (key PackageKey, ok bool, err error) {
	if m.Formula == "" {
		return PackageKey{}, false, nil
	}
	key, err = ParsePackageKey(m.Formula)
	if err != nil {
		return PackageKey{}, false, err
	}
	return key, true, nil
}

// DependencySet parses the declared dependency list. Two declarations with
// the same formula name are collapsed to the first one seen, even across
// organisations; later duplicates only warn.
func (m *Manifest) DependencySet() (Set, error) {
	deps := make(Set, len(m.Dependencies))
	seenNames := make(map[string]PackageKey, len(m.Dependencies))
	for _, entry := range m.Dependencies {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		dep, err := ParseRequirementEntry(entry)
		if err != nil {
			return nil, err
		}
		if first, ok := seenNames[dep.Key.Name]; ok {
			slog.Warn("skipping duplicate dependency", "formula", dep.Key, "kept", first)
			continue
		}
		seenNames[dep.Key.Name] = dep.Key
		deps[dep.Key] = dep
	}
	return deps, nil
}

// ExportNames returns the directories to link for a formula, defaulting to
// the formula name with any "-formula" suffix dropped.
func (m *Manifest) ExportNames(formulaName string) []string {
	if len(m.Exports) > 0 {
		return m.Exports
	}
	return []string{DefaultExport(formulaName)}
}

// DefaultExport is the conventional state directory for a formula name.
func DefaultExport(formulaName string) string {
	return strings.TrimSuffix(formulaName, "-formula")
}
