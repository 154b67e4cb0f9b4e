package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fileConfig is the JSON configuration accepted by --config. Flags given on
// the command line take precedence over file values.
type fileConfig struct {
	Variant    string `json:"variant"`
	Wasm       string `json:"wasm"`
	Zeroize    *bool  `json:"zeroize"`
	LogLevel   string `json:"log_level"`
	LogFormat  string `json:"log_format"`
	MemorySize uint32 `json:"memory_size"`
}

// loadConfig reads and parses a configuration file.
func loadConfig(path string) (*fileConfig, error) {
	absPath, err := securePath(path)
	if err != nil {
		return nil, fmt.Errorf("secure path: %w", err)
	}
	data, err := os.ReadFile(absPath) // #nosec G304 -- absPath validated by securePath
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var cfg fileConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig checks field values without opening any file.
func validateConfig(cfg *fileConfig) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if cfg.Wasm != "" {
		if _, err := securePath(cfg.Wasm); err != nil {
			return fmt.Errorf("wasm: %w", err)
		}
	}
	if cfg.LogLevel != "" {
		if _, err := parseLevel(cfg.LogLevel); err != nil {
			return err
		}
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format: unsupported %q", cfg.LogFormat)
	}
	return nil
}

// securePath validates that a file path doesn't escape the working directory.
func securePath(path string) (string, error) {
	clean := filepath.Clean(path)
	absPath, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	base, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	rel, err := filepath.Rel(base, absPath)
	if err != nil {
		return "", fmt.Errorf("relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes working directory", path)
	}
	return absPath, nil
}
