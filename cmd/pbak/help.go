package main

import (
	"fmt"
	"os/user"
	"strings"

	"pbak/internal/config"
)

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return "USER"
	}
	return u.Username
}

// setupHelp renders the requirements text, including the sudoers rule for
// the exact veracrypt command lines pbak runs.
func setupHelp(cfg *config.Config, username string) string {
	binary := cfg.Volume.Binary
	if binary == "" {
		binary = "/usr/bin/veracrypt"
	}
	keyfile := placeholder(cfg.Volume.KeyfilePath, "<keyfile_path>")
	container := placeholder(cfg.Volume.ContainerPath, "<container_path>")
	mountPoint := placeholder(cfg.Volume.MountPoint, "<mount_point>")

	mount := strings.Join([]string{binary, "--text", "--non-interactive", "--keyfiles", keyfile, "--mount", container, mountPoint}, " ")
	unmount := strings.Join([]string{binary, "--text", "--non-interactive", "-d", mountPoint}, " ")

	var b strings.Builder
	b.WriteString(`Requirements:
- gphoto2, for retrieving files from a tethered camera.
- ImageMagick (convert), for rendering previews.
- VeraCrypt, for the encrypted copy on a removable drive.
- Sudo rights to mount and unmount the VeraCrypt volume.

VeraCrypt configuration:
Create a VeraCrypt container on the removable drive and secure it with a keyfile
only (no password), for example one made with "pbak keyfile generate". Keep the
keyfile on this machine, never on the drive holding the container. Keep a copy of
the keyfile elsewhere too ("pbak keyfile escrow"): losing this machine otherwise
makes the encrypted backup useless.

Sudoers configuration:
To mount without a password prompt, add the following with visudo:

`)
	fmt.Fprintf(&b, "# Cmnd alias specification\nCmnd_Alias VERACRYPT = %s, \\\n                       %s\n\n", mount, unmount)
	fmt.Fprintf(&b, "%s ALL=NOPASSWD: VERACRYPT\n", username)
	return b.String()
}

func placeholder(v, name string) string {
	if v == "" {
		return name
	}
	return v
}
