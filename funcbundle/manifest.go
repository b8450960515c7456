// Package funcbundle packages a function app bundle, uploads it, and
// waits for the deployed app to register its event trigger. The wait is
// the pipeline's synchronization barrier: the event-routing deployment
// that follows needs the trigger to exist as a wiring target.
package funcbundle

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the bundle manifest name expected in the source
// directory.
const ManifestFile = "bundle.yaml"

// Manifest describes the contents of a function bundle.
type Manifest struct {
	Name         string   `yaml:"name"`
	Runtime      string   `yaml:"runtime,omitempty"`
	Include      []string `yaml:"include"`
	Requirements []string `yaml:"requirements"`
}

// LoadManifest reads and validates bundle.yaml from the source
// directory. A bundle with no dependency requirements cannot be
// deployed: the packaged artifact must carry a requirements file for
// the runtime's dependency resolution.
func LoadManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read %s: %w", ManifestFile, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}
	if m.Name == "" {
		return Manifest{}, fmt.Errorf("%s: bundle name is empty", ManifestFile)
	}
	if len(m.Include) == 0 {
		return Manifest{}, fmt.Errorf("%s: no files to include", ManifestFile)
	}
	if len(m.Requirements) == 0 {
		return Manifest{}, fmt.Errorf("%s: no requirements could be derived", ManifestFile)
	}
	return m, nil
}
