// Package manifest loads the release manifest bootstrap deploys from
// (spec §6, §4.8): a YAML document naming the formation's services, read
// from either an environment value or a file bundled with the binary.
package manifest

import (
	"fmt"
	"os"

	"github.com/fleetform/fleetsched/pkg/types"
	"gopkg.in/yaml.v3"
)

// document is the on-disk/on-env shape: the name field is informational
// here since bootstrap always tags the loaded release "1" regardless of
// what the manifest declares (spec §4.8 step 1).
type document struct {
	Name     string                            `yaml:"name"`
	Services map[string]types.ServiceTemplate `yaml:"services"`
}

// Load reads a release manifest from env (if non-empty, treated as an
// inline YAML document) or else from the file at path. The returned
// Release is always named "1", per the bootstrap contract.
func Load(env, path string) (*types.Release, error) {
	var raw []byte
	var err error

	switch {
	case env != "":
		raw = []byte(env)
	case path != "":
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("manifest: neither an inline value nor a file path was provided")
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(doc.Services) == 0 {
		return nil, fmt.Errorf("manifest: no services declared")
	}

	return &types.Release{Name: "1", Services: doc.Services}, nil
}
