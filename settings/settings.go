// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package settings persists renderer configuration to a TOML
// file under the user's config directory.
package settings

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const prefix = "settings: "

// Settings holds every user-tunable renderer option, mirroring
// engine.Config plus a handful of window/display preferences the
// engine itself has no opinion on.
type Settings struct {
	DoubleBuffered bool
	MaxLight       int
	MaxShadow      int
	MaxJoint       int
	MaxDrawable    int
	MaxMaterial    int
	MaxSkin        int

	VSync      bool
	Fullscreen bool
	Width      int
	Height     int
}

// Default returns the built-in defaults, used when no settings
// file exists yet.
func Default() Settings {
	return Settings{
		DoubleBuffered: false,
		MaxLight:       1024,
		MaxShadow:      64,
		MaxJoint:       1024,
		MaxDrawable:    2048,
		MaxMaterial:    512,
		MaxSkin:        1024,
		VSync:          true,
		Fullscreen:     false,
		Width:          1280,
		Height:         720,
	}
}

const fileName = "settings.toml"

// Dir returns the directory settings files are read from and
// written to: $XDG_CONFIG_HOME/vireo, falling back to
// $HOME/.config/vireo if XDG_CONFIG_HOME is unset.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, "vireo")
}

// Load reads settings from dir/settings.toml. If the file does
// not exist, it returns Default() and writes it to dir so that a
// subsequent Load finds a file to edit.
func Load(dir string) (Settings, error) {
	path := filepath.Join(dir, fileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s := Default()
		return s, Save(dir, &s)
	}
	var s Settings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Settings{}, errors.New(prefix + "decode: " + err.Error())
	}
	return s, nil
}

// Save writes s to dir/settings.toml, creating dir if necessary.
func Save(dir string, s *Settings) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.New(prefix + "mkdir: " + err.Error())
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return errors.New(prefix + "encode: " + err.Error())
	}
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.New(prefix + "write: " + err.Error())
	}
	return nil
}
