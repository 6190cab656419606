// Package clicommon wires the pieces every subcommand needs: the project
// directory, its manifest and lockfile, and the authenticated remote client.
package clicommon

import (
	"os"
	"path/filepath"

	"github.com/pingcap/errors"
	"github.com/spf13/cobra"

	"github.com/salt-formulas/shaker/pkg/github"
	"github.com/salt-formulas/shaker/pkg/metadata"
	"github.com/salt-formulas/shaker/pkg/resolver"
	"github.com/salt-formulas/shaker/pkg/workspace"
)

// App is the loaded project state a subcommand operates on.
type App struct {
	RootDir string
	Client  *github.Client
	// Manifest is the project's own metadata.yml.
	Manifest *metadata.Manifest
	// LocalRequirements is the pinned lockfile content, nil when the project
	// has none yet.
	LocalRequirements metadata.Set
}

// LoadApp reads the project in the --root-dir directory and builds the
// remote client from the environment.
func LoadApp(cmd *cobra.Command) (*App, error) {
	rootDir, err := cmd.Flags().GetString("root-dir")
	if err != nil {
		return nil, errors.Wrap(err, "get root-dir flag")
	}

	client, err := github.NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	manifest, err := metadata.LoadManifest(filepath.Join(rootDir, metadata.ManifestFilename))
	if err != nil {
		return nil, err
	}
	localReqs, err := metadata.LoadRequirementsFile(filepath.Join(rootDir, metadata.RequirementsFilename))
	if err != nil {
		return nil, err
	}
	return &App{
		RootDir:           rootDir,
		Client:            client,
		Manifest:          manifest,
		LocalRequirements: localReqs,
	}, nil
}

// RequirementsPath is the project's lockfile location.
func (a *App) RequirementsPath() string {
	return filepath.Join(a.RootDir, metadata.RequirementsFilename)
}

// GraphResolver builds a resolver rooted at the project manifest.
func (a *App) GraphResolver() (*resolver.GraphResolver, error) {
	return resolver.NewGraphResolver(a.Client, a.Manifest, a.LocalRequirements)
}

// Materializer builds the vendor-directory installer for the project.
func (a *App) Materializer(simulate bool) *workspace.Materializer {
	m := workspace.NewMaterializer(
		filepath.Join(a.RootDir, workspace.DefaultWorkingDir),
		os.Getenv(github.TokenEnvVar),
	)
	m.Simulate = simulate
	return m
}
