package workspace

import (
	"os"
	"path/filepath"

	"github.com/pingcap/errors"

	"github.com/salt-formulas/shaker/pkg/metadata"
)

// updateRootLinks rebuilds the salt root: each formula's exported state
// directories get one symlink each, and dynamic module files are linked into
// the shared extension directories.
func (m *Materializer) updateRootLinks(deps metadata.Set) error {
	for _, key := range deps.Keys() {
		name := key.Name
		for _, export := range m.formulaExports(name) {
			if err := m.linkExport(name, export); err != nil {
				return err
			}
		}
		if err := m.linkDynamicModules(name); err != nil {
			return err
		}
	}
	return nil
}

// formulaExports reads the checked-out formula's own manifest for an exports
// list, falling back to the single conventional state directory.
func (m *Materializer) formulaExports(name string) []string {
	manifestPath := filepath.Join(m.checkoutPath(name), metadata.ManifestFilename)
	manifest, err := metadata.LoadManifest(manifestPath)
	if err != nil {
		m.log.Debug("no readable manifest in checkout, using default export",
			"formula", name, "path", manifestPath)
		return []string{metadata.DefaultExport(name)}
	}
	return manifest.ExportNames(name)
}

// linkExport links one exported directory into the salt root. The export
// subdirectory is preferred; a formula without one is linked whole under its
// repository name.
func (m *Materializer) linkExport(name, export string) error {
	candidates := []struct {
		source string
		target string
	}{
		{filepath.Join(m.checkoutPath(name), export), filepath.Join(m.saltRootPath(), export)},
		{m.checkoutPath(name), filepath.Join(m.saltRootPath(), name)},
	}

	for _, c := range candidates {
		if _, err := os.Stat(c.source); err != nil {
			continue
		}
		if _, err := os.Lstat(c.target); err == nil {
			return errors.Errorf("link target %q already taken, formula %q conflicts with another formula",
				c.target, name)
		}
		rel, err := filepath.Rel(filepath.Dir(c.target), c.source)
		if err != nil {
			return errors.Wrapf(err, "relativize %q", c.source)
		}
		if err := os.Symlink(rel, c.target); err != nil {
			return errors.Wrapf(err, "link %q to %q", c.source, c.target)
		}
		m.log.Info("linked formula export", "source", c.source, "target", c.target)
		return nil
	}
	return errors.Errorf("no linkable directory found for formula %q export %q", name, export)
}

// linkDynamicModules links each file of the formula's salt extension
// directories into the shared ones under the salt root. Files already linked
// by another formula are left in place.
func (m *Materializer) linkDynamicModules(name string) error {
	repoDir := m.checkoutPath(name)
	for _, libDir := range dynamicModuleDirs {
		sourceDir := filepath.Join(repoDir, libDir)
		entries, err := os.ReadDir(sourceDir)
		if err != nil {
			continue
		}

		targetDir := filepath.Join(m.saltRootPath(), libDir)
		if err := os.MkdirAll(targetDir, 0o755); err != nil {
			return errors.Wrapf(err, "create %q", targetDir)
		}
		rel, err := filepath.Rel(targetDir, sourceDir)
		if err != nil {
			return errors.Wrapf(err, "relativize %q", sourceDir)
		}
		for _, entry := range entries {
			target := filepath.Join(targetDir, entry.Name())
			if err := os.Symlink(filepath.Join(rel, entry.Name()), target); err != nil {
				if os.IsExist(err) {
					m.log.Warn("dynamic module already linked", "formula", name, "file", entry.Name())
					continue
				}
				return errors.Wrapf(err, "link dynamic module %q", target)
			}
			m.log.Debug("linked dynamic module", "formula", name, "file", entry.Name())
		}
	}
	return nil
}
