package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"pbak/internal/fs"
)

// VolumeEnabled reports whether a removable volume is configured.
func (c *Config) VolumeEnabled() bool {
	return c.Volume.ContainerPath != ""
}

// Validate checks the config for values that would fail at run time.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	abs := func(field, path string) {
		if path != "" && !filepath.IsAbs(path) {
			errs = append(errs, fmt.Errorf("%s must be an absolute path: %q", field, path))
		}
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level: %q", c.LogLevel))
	}

	if c.Source.Path == "" {
		errs = append(errs, errors.New("source.path is required"))
	}
	abs("source.path", c.Source.Path)
	abs("device.destination", c.Device.Destination)

	for i, p := range c.Primary {
		errs = append(errs, validatePair(fmt.Sprintf("primary[%d]", i), p)...)
	}

	switch c.Device.RangeMode {
	case "", "listing_size", "to_end":
	default:
		errs = append(errs, fmt.Errorf("unknown device.range_mode: %q", c.Device.RangeMode))
	}

	if c.VolumeEnabled() {
		abs("volume.container_path", c.Volume.ContainerPath)
		if c.Volume.MountPoint == "" {
			errs = append(errs, errors.New("volume.mount_point is required when container_path is set"))
		}
		abs("volume.mount_point", c.Volume.MountPoint)
		abs("volume.keyfile_path", c.Volume.KeyfilePath)
		if c.Volume.MaxAttempts < 0 {
			errs = append(errs, fmt.Errorf("volume.max_attempts must not be negative: %d", c.Volume.MaxAttempts))
		}
		if d, err := c.Volume.Poll(); err != nil {
			errs = append(errs, err)
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("volume.poll_interval must not be negative: %s", d))
		}
		switch c.Volume.InUseCheck {
		case "", "fuser", "process":
		default:
			errs = append(errs, fmt.Errorf("unknown volume.in_use_check: %q", c.Volume.InUseCheck))
		}
		for i, p := range c.Volume.Sync {
			errs = append(errs, validatePair(fmt.Sprintf("volume.sync[%d]", i), p)...)
		}
	}

	if c.Previews.Enabled {
		if c.Previews.SourceDir == "" || c.Previews.Dir == "" {
			errs = append(errs, errors.New("previews.source_dir and previews.dir are required when previews are enabled"))
		}
		abs("previews.source_dir", c.Previews.SourceDir)
		abs("previews.dir", c.Previews.Dir)
		abs("previews.script_dir", c.Previews.ScriptDir)
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			errs = append(errs, errors.New("database.data_dir required for sqlite database"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database.type: %q", c.Database.Type))
	}

	return errors.Join(errs...)
}

func validatePair(field string, p SyncPairConfig) []error {
	var errs []error
	if p.Source == "" || p.Destination == "" {
		errs = append(errs, fmt.Errorf("%s: source and destination are required", field))
	}
	if p.Destination != "" && !filepath.IsAbs(p.Destination) {
		errs = append(errs, fmt.Errorf("%s.destination must be an absolute path: %q", field, p.Destination))
	}
	if p.Source != "" && !doublestar.ValidatePathPattern(p.Source) {
		errs = append(errs, fmt.Errorf("%s.source is not a valid pattern: %q", field, p.Source))
	}
	if bad, ok := fs.ValidatePatterns(p.Exclude); !ok {
		errs = append(errs, fmt.Errorf("%s.exclude has an invalid pattern: %q", field, bad))
	}
	return errs
}
