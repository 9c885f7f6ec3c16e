package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the file FindConfigFile looks for.
const ConfigFileName = "w3rt.toml"

// FindConfigFile searches startDir and each parent directory for w3rt.toml,
// so running w3rt anywhere inside a project picks up the project's config.
// The result is absolute; an empty path with a nil error means no file exists
// up to the filesystem root, which is not an error: every command runs fine
// on defaults alone.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadFromFile decodes one TOML config file. The returned metadata records
// which keys the file actually set; Validate reads its Undecoded list to
// warn about misspelled keys instead of silently ignoring them.
func LoadFromFile(path string) (*Config, toml.MetaData, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, md, fmt.Errorf("loading config %s: %w", path, err)
	}
	return &cfg, md, nil
}
