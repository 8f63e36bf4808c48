package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for pbak.
type Config struct {
	BaseDir  string           `toml:"base_dir"`
	LogDir   string           `toml:"log_dir"`
	LogLevel string           `toml:"log_level"` // "debug", "info" (default), "warn" or "error"
	Source   SourceConfig     `toml:"source"`
	Primary  []SyncPairConfig `toml:"primary"`
	Device   DeviceConfig     `toml:"device"`
	Volume   VolumeConfig     `toml:"volume"`
	Previews PreviewsConfig   `toml:"previews"`
	Database DatabaseConfig   `toml:"database"`
}

// SourceConfig describes where new files arrive, typically a mounted camera card.
type SourceConfig struct {
	Path             string `toml:"path"`
	UnmountAfterSync bool   `toml:"unmount_after_sync"`
}

// SyncPairConfig maps a source glob to a destination directory.
type SyncPairConfig struct {
	Source      string   `toml:"source"`
	Destination string   `toml:"destination"`
	Exclude     []string `toml:"exclude,omitempty"`
}

// DeviceConfig controls retrieval from a tethered camera.
type DeviceConfig struct {
	Enabled       bool     `toml:"enabled"`
	Binary        string   `toml:"binary,omitempty"`         // defaults to "gphoto2"
	KillProcesses []string `toml:"kill_processes,omitempty"` // nil selects the gvfs monitors
	RangeMode     string   `toml:"range_mode,omitempty"`     // "listing_size" (default) or "to_end"
	// Destination receives retrieved files. Defaults to the source path.
	Destination string `toml:"destination,omitempty"`
}

// VolumeConfig describes the encrypted removable destination.
// An empty ContainerPath disables the volume stage.
type VolumeConfig struct {
	ContainerPath     string           `toml:"container_path"`
	MountPoint        string           `toml:"mount_point"`
	KeyfilePath       string           `toml:"keyfile_path"`
	KeyfileEscrowPath string           `toml:"keyfile_escrow_path,omitempty"` // defaults to <keyfile_path>.age
	Binary            string           `toml:"binary,omitempty"`              // defaults to /usr/bin/veracrypt
	UseSudo           bool             `toml:"use_sudo"`
	UnmountExternal   bool             `toml:"unmount_external"`
	MaxAttempts       int              `toml:"max_attempts"`
	PollInterval      string           `toml:"poll_interval"`          // Go duration, e.g. "2s"
	InUseCheck        string           `toml:"in_use_check,omitempty"` // "fuser" (default) or "process"
	Sync              []SyncPairConfig `toml:"sync"`
}

// Poll returns the parsed poll interval.
func (v VolumeConfig) Poll() (time.Duration, error) {
	if v.PollInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval %q: %w", v.PollInterval, err)
	}
	return d, nil
}

// PreviewsConfig controls generation of scaled-down previews.
type PreviewsConfig struct {
	Enabled       bool   `toml:"enabled"`
	SourceDir     string `toml:"source_dir"`
	Dir           string `toml:"dir"`
	Size          string `toml:"size"`                     // ImageMagick geometry, e.g. "1600x1600"
	ConvertBinary string `toml:"convert_binary,omitempty"` // defaults to "convert"
	Viewer        string `toml:"viewer,omitempty"`
	ScriptDir     string `toml:"script_dir,omitempty"`
}

// DatabaseConfig represents configuration for the run history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a new Config rooted at baseDir with default settings.
// Paths that depend on the local machine are left empty for the user to fill in.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Source: SourceConfig{
			UnmountAfterSync: true,
		},
		Device: DeviceConfig{
			Binary:    "gphoto2",
			RangeMode: "listing_size",
		},
		Volume: VolumeConfig{
			KeyfilePath:     filepath.Join(baseDir, "keys", "veracrypt.key"),
			Binary:          "/usr/bin/veracrypt",
			UseSudo:         true,
			UnmountExternal: true,
			MaxAttempts:     20,
			PollInterval:    "2s",
			InUseCheck:      "fuser",
		},
		Previews: PreviewsConfig{
			Size:          "1600x1600",
			ConvertBinary: "convert",
			Viewer:        "eog",
			ScriptDir:     filepath.Join(baseDir, "scripts"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
