package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pbak/internal/app"
	"pbak/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var verbose bool

// loadConfig reads the config file named by the defaults.
func loadConfig() (*app.Defaults, *config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return defaults, cfg, nil
}

// newApp reads the config and creates a PbakApp. The caller must defer app.Close().
func newApp() (*app.PbakApp, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewPbakApp(cfg, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "pbak",
	Short:        "Offload photos from a camera and back them up",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		var opts app.InitOptions
		opts.SourcePath, _ = cmd.Flags().GetString("source")
		opts.PhotosDir, _ = cmd.Flags().GetString("photos")
		opts.ContainerPath, _ = cmd.Flags().GetString("container")
		opts.MountPoint, _ = cmd.Flags().GetString("mount-point")

		cfg := app.InitialConfig(defaults, opts)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nStill to fill in:\n%v\n", err)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Source:    %s\n", cfg.Source.Path)
		fmt.Printf("Device:    %s\n", enabled(cfg.Device.Enabled))
		fmt.Printf("Volume:    %s\n", describeVolume(cfg))
		fmt.Printf("Previews:  %s\n", enabled(cfg.Previews.Enabled))
		fmt.Printf("Database:  %s\n\n", cfg.Database.Type)

		printPairs("Primary sync", cfg.Primary)
		printPairs("Volume sync", cfg.Volume.Sync)

		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nProblems:\n%v\n", err)
		}
		return nil
	},
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func describeVolume(cfg *config.Config) string {
	if !cfg.VolumeEnabled() {
		return "disabled"
	}
	return fmt.Sprintf("%s -> %s", cfg.Volume.ContainerPath, cfg.Volume.MountPoint)
}

// help setup command
var helpSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Explain the system requirements and sudoers configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			defaults, derr := app.GetDefaults()
			if derr != nil {
				return derr
			}
			cfg = config.NewConfig(defaults.BaseDir)
		}
		fmt.Print(setupHelp(cfg, currentUser()))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("source", "", "Mount point of the camera card")
	configInitCmd.Flags().String("photos", "", "Directory receiving raw/ and jpg/ copies")
	configInitCmd.Flags().String("container", "", "VeraCrypt container on the removable drive")
	configInitCmd.Flags().String("mount-point", "", "Where the container is mounted")

	// backup commands
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("no-prompt", false, "Do not offer to open the first new preview")
	runCmd.Flags().Bool("skip-device", false, "Skip retrieval from the camera")
	runCmd.Flags().Bool("skip-volume", false, "Skip the encrypted volume")
	runCmd.Flags().Bool("skip-previews", false, "Skip preview generation")
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(previewsCmd)
	previewsCmd.Flags().Bool("no-prompt", false, "Do not offer to open the first new preview")

	// volume subcommands
	volumeCmd.AddCommand(volumeStatusCmd)
	volumeCmd.AddCommand(volumeSyncCmd)
	volumeCmd.AddCommand(volumeUnmountCmd)
	rootCmd.AddCommand(volumeCmd)

	// device subcommands
	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceRangeCmd)
	rootCmd.AddCommand(deviceCmd)

	// keyfile subcommands
	keyfileCmd.AddCommand(keyfileGenerateCmd)
	keyfileCmd.AddCommand(keyfileEscrowCmd)
	keyfileCmd.AddCommand(keyfileRecoverCmd)
	keyfileGenerateCmd.Flags().StringP("output", "o", "", "Keyfile path (default: volume.keyfile_path)")
	rootCmd.AddCommand(keyfileCmd)

	// history
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	historyCmd.Flags().Bool("stages", false, "Show the stages of each run")
	historyCmd.AddCommand(historyExportCmd)

	rootCmd.AddCommand(configCmd)

	// help setup lives under cobra's generated help command
	rootCmd.InitDefaultHelpCmd()
	for _, c := range rootCmd.Commands() {
		if c.Name() == "help" {
			c.AddCommand(helpSetupCmd)
		}
	}
}
