package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("PBAK_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("PBAK_HOME", "/custom/pbak")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if d.ConfigPath != "/custom/config.toml" {
			t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, "/custom/config.toml")
		}
		if d.BaseDir != "/custom/pbak" {
			t.Errorf("BaseDir = %q, want %q", d.BaseDir, "/custom/pbak")
		}
		if d.LogDir != "/custom/pbak/log" {
			t.Errorf("LogDir = %q, want %q", d.LogDir, "/custom/pbak/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("PBAK_CONFIG_PATH", "")
		t.Setenv("PBAK_HOME", "")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "pbak.toml")
		if d.ConfigPath != wantConfig {
			t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "pbak")
		if d.BaseDir != wantBase {
			t.Errorf("BaseDir = %q, want %q", d.BaseDir, wantBase)
		}
		if d.LogDir != filepath.Join(wantBase, "log") {
			t.Errorf("LogDir = %q, want %q", d.LogDir, filepath.Join(wantBase, "log"))
		}
	})
}

func TestInitialConfig(t *testing.T) {
	d := &Defaults{ConfigPath: "/c/pbak.toml", BaseDir: "/data/pbak", LogDir: "/data/pbak/log"}

	t.Run("bare", func(t *testing.T) {
		cfg := InitialConfig(d, InitOptions{})
		if len(cfg.Primary) != 0 || cfg.Previews.Enabled || cfg.VolumeEnabled() {
			t.Errorf("InitialConfig() = %+v, want no pairs, previews or volume", cfg)
		}
		if cfg.BaseDir != "/data/pbak" {
			t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/pbak")
		}
	})

	t.Run("full", func(t *testing.T) {
		cfg := InitialConfig(d, InitOptions{
			SourcePath:    "/media/me/NIKON",
			PhotosDir:     "/home/me/photos",
			ContainerPath: "/media/me/USB/photos.hc",
			MountPoint:    "/mnt/pbak",
		})
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}

		if len(cfg.Primary) != 2 {
			t.Fatalf("len(Primary) = %d, want 2", len(cfg.Primary))
		}
		if got := cfg.Primary[0].Source; got != "/media/me/NIKON/**/*{NEF,MOV}" {
			t.Errorf("Primary[0].Source = %q", got)
		}
		if got := cfg.Primary[1].Destination; got != "/home/me/photos/jpg" {
			t.Errorf("Primary[1].Destination = %q", got)
		}
		if cfg.Previews.SourceDir != "/home/me/photos/jpg" || cfg.Previews.Dir != "/home/me/photos/previews" {
			t.Errorf("Previews = %+v", cfg.Previews)
		}
		if len(cfg.Volume.Sync) != 1 {
			t.Fatalf("len(Volume.Sync) = %d, want 1", len(cfg.Volume.Sync))
		}
		if s := cfg.Volume.Sync[0]; s.Source != "/home/me/photos/raw/*" || s.Destination != "/mnt/pbak/photos" {
			t.Errorf("Volume.Sync[0] = %+v", s)
		}
	})
}
