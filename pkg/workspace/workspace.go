// Package workspace materializes a pinned dependency set on disk: formula
// repositories cloned under a vendor directory, their exported state trees
// symlinked into a single salt root.
package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pingcap/errors"

	"github.com/salt-formulas/shaker/pkg/constraint"
	"github.com/salt-formulas/shaker/pkg/metadata"
)

// Default directory layout under the project root.
const (
	DefaultWorkingDir = "vendor"
	DefaultInstallDir = "formula-repos"
	DefaultSaltRoot   = "_root"
)

// dynamicModuleDirs are the salt extension directories whose individual files
// are linked into the shared salt root, so several formulas can contribute to
// the same directory.
var dynamicModuleDirs = []string{"_modules", "_grains", "_renderers", "_returners", "_states"}

// Materializer checks out formula repositories and maintains the salt root
// symlink tree for one project directory.
type Materializer struct {
	// WorkingDir is the vendor directory everything lives under.
	WorkingDir string
	// InstallDir is the repository checkout directory, relative to WorkingDir.
	InstallDir string
	// SaltRoot is the symlink tree directory, relative to WorkingDir.
	SaltRoot string
	// Token authenticates git fetches over HTTPS.
	Token string
	// Simulate logs every action without touching the filesystem or remotes.
	Simulate bool

	log *slog.Logger
}

// InstallOptions controls one Install run.
type InstallOptions struct {
	// Overwrite deletes and recreates the checkout directory first.
	Overwrite bool
	// KeepOrphans preserves checkout directories that no longer correspond
	// to any dependency.
	KeepOrphans bool
	// RemoteCheck checks out by resolved commit sha; without it the
	// constraint's own tag is checked out, avoiding API lookups.
	RemoteCheck bool
}

func NewMaterializer(workingDir, token string) *Materializer {
	return &Materializer{
		WorkingDir: workingDir,
		InstallDir: DefaultInstallDir,
		SaltRoot:   DefaultSaltRoot,
		Token:      token,
		log:        slog.Default(),
	}
}

func (m *Materializer) installPath() string {
	return filepath.Join(m.WorkingDir, m.InstallDir)
}

func (m *Materializer) saltRootPath() string {
	return filepath.Join(m.WorkingDir, m.SaltRoot)
}

// Install brings the checkout directory and salt root in line with the
// dependency set. Returns the number of successfully updated and failed
// repositories; a nonzero failure count comes with a nil error, since the
// remaining formulas were still materialized.
func (m *Materializer) Install(ctx context.Context, deps metadata.Set, opts InstallOptions) (updated, failed int, err error) {
	if err := m.createDirectories(opts.Overwrite); err != nil {
		return 0, 0, err
	}

	for _, key := range deps.Keys() {
		dep := deps[key]

		useTag := !opts.RemoteCheck
		tag := dep.Tag
		if useTag {
			tag = constraint.Parse(dep.Constraint).Tag
			if tag == "" {
				return updated, failed, errors.Errorf(
					"formula %s has no tag in constraint %q and remote checks are disabled",
					key, dep.Constraint)
			}
		}

		if m.Simulate {
			m.log.Info("would install formula", "formula", key, "tag", tag, "sha", dep.SHA)
			updated++
			continue
		}
		if err := m.installSource(ctx, dep, tag, useTag); err != nil {
			m.log.Error("failed to install formula", "formula", key, "error", err)
			failed++
			continue
		}
		m.log.Info("installed formula", "formula", key, "tag", tag)
		updated++
	}

	if !opts.KeepOrphans {
		if err := m.removeOrphans(deps); err != nil {
			return updated, failed, err
		}
	}
	if m.Simulate {
		return updated, failed, nil
	}
	return updated, failed, m.updateRootLinks(deps)
}

// createDirectories sets up the vendor layout. The salt root holds only
// symlinks, so it is rebuilt from nothing on every run.
func (m *Materializer) createDirectories(overwrite bool) error {
	if m.Simulate {
		m.log.Info("would create directories",
			"install", m.installPath(), "saltRoot", m.saltRootPath())
		return nil
	}
	if err := os.MkdirAll(m.WorkingDir, 0o755); err != nil {
		return errors.Wrapf(err, "create working directory %q", m.WorkingDir)
	}

	rootPath := m.saltRootPath()
	if err := os.RemoveAll(rootPath); err != nil {
		return errors.Wrapf(err, "clear salt root %q", rootPath)
	}
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return errors.Wrapf(err, "create salt root %q", rootPath)
	}

	installPath := m.installPath()
	if overwrite {
		m.log.Debug("clearing checkout directory", "path", installPath)
		if err := os.RemoveAll(installPath); err != nil {
			return errors.Wrapf(err, "clear checkout directory %q", installPath)
		}
	}
	if err := os.MkdirAll(installPath, 0o755); err != nil {
		return errors.Wrapf(err, "create checkout directory %q", installPath)
	}
	return nil
}

// removeOrphans deletes checkout directories for formulas that are no longer
// in the dependency set.
func (m *Materializer) removeOrphans(deps metadata.Set) error {
	names := make(map[string]bool, len(deps))
	for key := range deps {
		names[key.Name] = true
	}

	entries, err := os.ReadDir(m.installPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "list checkout directory %q", m.installPath())
	}
	for _, entry := range entries {
		if names[entry.Name()] {
			continue
		}
		path := filepath.Join(m.installPath(), entry.Name())
		if m.Simulate {
			m.log.Info("would remove orphaned checkout", "path", path)
			continue
		}
		m.log.Info("removing orphaned checkout", "path", path)
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrapf(err, "remove orphaned checkout %q", path)
		}
	}
	return nil
}
