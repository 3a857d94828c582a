package common

import (
	"fmt"
	"os"
	"path/filepath"

	"fund-session-engine/internal/models"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

// NodeManifest describes the node a process runs as.
type NodeManifest struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	UUID    string `yaml:"uuid"`
	Server  string `yaml:"server"`
}

// Role derives the node role from the manifest name.
func (m NodeManifest) Role() models.NodeRole {
	return models.RoleFromName(m.Name)
}

func resolvePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(wd, file), nil
}

// LoadNodeManifest reads the manifest. A manifest without a uuid gets a fresh
// one, which is written back so later starts reuse the same identity.
func LoadNodeManifest(manifestFile string) (*NodeManifest, error) {
	manifestPath, err := resolvePath(manifestFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", manifestFile, err)
	}

	var manifest NodeManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", manifestFile, err)
	}

	if manifest.Name == "" {
		return nil, fmt.Errorf("manifest %s missing name", manifestFile)
	}

	if manifest.UUID == "" {
		manifest.UUID = uuid.NewString()
		if err := SaveNodeManifest(manifestPath, &manifest); err != nil {
			return nil, err
		}
	} else if _, err := uuid.Parse(manifest.UUID); err != nil {
		return nil, fmt.Errorf("manifest %s has invalid uuid %q: %w", manifestFile, manifest.UUID, err)
	}

	return &manifest, nil
}

func SaveNodeManifest(manifestFile string, manifest *NodeManifest) error {
	manifestPath, err := resolvePath(manifestFile)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("unable to encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return fmt.Errorf("unable to write %s: %w", manifestFile, err)
	}
	return nil
}
