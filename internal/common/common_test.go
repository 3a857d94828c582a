package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fund-session-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNodeManifest_GeneratesAndPersistsUUID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: fund-core\nversion: 1.2.0\nserver: eu-1\n"), 0o644))

	manifest, err := LoadNodeManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "fund-core", manifest.Name)
	assert.Equal(t, "1.2.0", manifest.Version)
	assert.Equal(t, "eu-1", manifest.Server)
	assert.Equal(t, models.NodeRoleParent, manifest.Role())
	require.NotEmpty(t, manifest.UUID)

	again, err := LoadNodeManifest(path)
	require.NoError(t, err)
	assert.Equal(t, manifest.UUID, again.UUID)
}

func TestLoadNodeManifest_Invalid(t *testing.T) {
	dir := t.TempDir()

	missingName := filepath.Join(dir, "noname.yaml")
	require.NoError(t, os.WriteFile(missingName, []byte("version: 1.0.0\n"), 0o644))
	_, err := LoadNodeManifest(missingName)
	assert.Error(t, err)

	badUUID := filepath.Join(dir, "baduuid.yaml")
	require.NoError(t, os.WriteFile(badUUID, []byte("name: edge-child\nuuid: nope\n"), 0o644))
	_, err = LoadNodeManifest(badUUID)
	assert.Error(t, err)

	_, err = LoadNodeManifest(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestRenderTable(t *testing.T) {
	var buf strings.Builder
	RenderTable(&buf, []string{"Id", "Address"}, [][]string{
		{"1", "10.0.0.5"},
		{"2", "10.0.0.6"},
	})

	out := buf.String()
	assert.Contains(t, out, "ADDRESS")
	assert.Contains(t, out, "10.0.0.5")
	assert.Contains(t, out, "10.0.0.6")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "-", FormatTime(nil))
	ts := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2030-01-02T03:04:05Z", FormatTime(&ts))

	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd...", Truncate("abcdefghij", 7))
}
