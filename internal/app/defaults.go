package app

import (
	"fmt"
	"os"
	"path/filepath"

	"pbak/internal/config"
)

// Defaults holds the application default paths.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - PBAK_CONFIG_PATH: config file location (default: ~/.config/pbak.toml)
//   - PBAK_HOME: base directory for pbak data (default: ~/.local/share/pbak)
func GetDefaults() (*Defaults, error) {
	configPath := os.Getenv("PBAK_CONFIG_PATH")
	baseDir := os.Getenv("PBAK_HOME")

	if configPath == "" || baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		if configPath == "" {
			configPath = filepath.Join(homeDir, ".config", "pbak.toml")
		}
		if baseDir == "" {
			baseDir = filepath.Join(homeDir, ".local", "share", "pbak")
		}
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// InitOptions describes the machine-specific paths known at `pbak config init`.
type InitOptions struct {
	SourcePath    string
	PhotosDir     string
	ContainerPath string
	MountPoint    string
}

// InitialConfig builds the config written by `pbak config init`. Raw files
// (NEF and MOV) and JPGs from the card are sorted into PhotosDir/raw and
// PhotosDir/jpg, previews are rendered from the JPG copies, and the raw
// directory is mirrored into the volume. Sections whose paths are missing
// from opts are left for the user to fill in.
func InitialConfig(d *Defaults, opts InitOptions) *config.Config {
	cfg := config.NewConfig(d.BaseDir)
	cfg.LogDir = d.LogDir
	cfg.Source.Path = opts.SourcePath

	if opts.SourcePath == "" || opts.PhotosDir == "" {
		return cfg
	}

	raw := filepath.Join(opts.PhotosDir, "raw")
	jpg := filepath.Join(opts.PhotosDir, "jpg")
	cfg.Primary = []config.SyncPairConfig{
		{Source: filepath.Join(opts.SourcePath, "**", "*{NEF,MOV}"), Destination: raw},
		{Source: filepath.Join(opts.SourcePath, "**", "*JPG"), Destination: jpg},
	}
	cfg.Device.Enabled = true
	cfg.Previews.Enabled = true
	cfg.Previews.SourceDir = jpg
	cfg.Previews.Dir = filepath.Join(opts.PhotosDir, "previews")

	if opts.ContainerPath != "" && opts.MountPoint != "" {
		cfg.Volume.ContainerPath = opts.ContainerPath
		cfg.Volume.MountPoint = opts.MountPoint
		cfg.Volume.Sync = []config.SyncPairConfig{
			{Source: filepath.Join(raw, "*"), Destination: filepath.Join(opts.MountPoint, "photos")},
		}
	}
	return cfg
}
