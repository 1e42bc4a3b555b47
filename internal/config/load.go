package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
// File values overlay the defaults; a missing file is not an error.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	cfg := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Loaded{
				Path:   resolvedPath,
				Config: cfg,
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
				Exists: false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	if err := materializeCommands(&cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Loaded{}, fmt.Errorf("validate config %q: %w", resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

// materializeCommands parses the raw command strings into argv form.
func materializeCommands(cfg *Config) error {
	clipboardArgv, err := parseArgv(cfg.ClipboardCmd)
	if err != nil {
		return fmt.Errorf("clipboard_cmd: %w", err)
	}
	cfg.ClipboardArgv = clipboardArgv

	pasteArgv, err := parseArgv(cfg.PasteCmd)
	if err != nil {
		return fmt.Errorf("paste_cmd: %w", err)
	}
	cfg.PasteArgv = pasteArgv
	return nil
}
