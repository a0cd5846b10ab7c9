package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetform/fleetsched/pkg/manifest"
	"github.com/fleetform/fleetsched/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
name: ignored
services:
  _store:
    image: acme/store:1
  api:
    image: acme/api:1
    command: ["serve"]
    env:
      PORT: "8080"
  _bootstrap:
    image: acme/bootstrap:1
`

func TestLoadFromEnvValue(t *testing.T) {
	rel, err := manifest.Load(sample, "")
	require.NoError(t, err)
	assert.Equal(t, "1", rel.Name)
	assert.Equal(t, "acme/api:1", rel.Services["api"].Image)
	assert.Equal(t, []string{"serve"}, rel.Services["api"].Command)
	assert.Contains(t, rel.Services, types.ServiceStore)
	assert.Contains(t, rel.Services, types.ServiceBootstrap)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "release.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0600))

	rel, err := manifest.Load("", path)
	require.NoError(t, err)
	assert.Equal(t, "1", rel.Name)
}

func TestLoadRequiresEnvOrPath(t *testing.T) {
	_, err := manifest.Load("", "")
	assert.Error(t, err)
}

func TestLoadRejectsEmptyServices(t *testing.T) {
	_, err := manifest.Load("name: x\nservices: {}\n", "")
	assert.Error(t, err)
}
