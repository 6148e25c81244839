package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Digest returns the hex-encoded BLAKE3 hash of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileDigest computes the BLAKE3 hash of a file.
func FileDigest(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return Digest(data), nil
}

// Changed reports whether the config file on disk differs from what was loaded.
func (c *Config) Changed() (bool, error) {
	if c.SourcePath == "" {
		return false, nil
	}
	current, err := FileDigest(c.SourcePath)
	if err != nil {
		return false, err
	}
	return current != c.Digest, nil
}

// Marshal renders the effective configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
