package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pbak/internal/encryption"
	"pbak/internal/keyfile"
)

// keyfile command
var keyfileCmd = &cobra.Command{
	Use:   "keyfile",
	Short: "Create and safeguard the volume keyfile",
}

var keyfileGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a new random keyfile",
	Long: "Write a new random keyfile. An existing keyfile is moved to <path>_bak first.\n" +
		"The keyfile belongs on this machine, never on the drive holding the container.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("output")
		if path == "" {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Volume.KeyfilePath
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		backup, err := keyfile.Generate(abs)
		if err != nil {
			return err
		}
		if backup != "" {
			fmt.Printf("Moved previous keyfile to %s\n", backup)
		}
		fmt.Printf("Generated random keyfile in %s\n", abs)
		return nil
	},
}

var keyfileEscrowCmd = &cobra.Command{
	Use:   "escrow",
	Short: "Seal a passphrase-protected copy of the keyfile",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		escrow, err := encryption.NewKeyEscrowFromConfig(cfg.Volume)
		if err != nil {
			return err
		}

		pass, err := promptPassword("Escrow passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}

		if err := escrow.Seal(pass); err != nil {
			return err
		}
		fmt.Printf("Sealed keyfile into %s\n", escrow.Path())
		fmt.Println("Copy it somewhere other than this machine and the backup drive.")
		return nil
	},
}

var keyfileRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Restore the keyfile from its sealed copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		escrow, err := encryption.NewKeyEscrowFromConfig(cfg.Volume)
		if err != nil {
			return err
		}
		if !escrow.IsSealed() {
			return fmt.Errorf("no sealed keyfile at %s", escrow.Path())
		}

		pass, err := promptPassword("Escrow passphrase: ")
		if err != nil {
			return err
		}
		if err := escrow.Recover(pass); err != nil {
			return err
		}
		fmt.Printf("Restored keyfile to %s\n", cfg.Volume.KeyfilePath)
		return nil
	},
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read password without echo
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(password), nil
}
