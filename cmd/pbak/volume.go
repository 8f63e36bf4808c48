package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pbak/internal/app"
	"pbak/internal/pbak"
)

// volume command
var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Inspect and manage the encrypted volume",
}

var volumeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the volume is present, mounted and in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.VolumeStatus(cmd.Context())
		if err != nil {
			return err
		}

		present := "missing"
		if st.ContainerPresent {
			present = "present"
		}
		fmt.Printf("Container:   %s (%s)\n", st.ContainerPath, present)
		if st.Partition == nil {
			fmt.Printf("Mount point: %s (not mounted)\n", st.MountPoint)
			return nil
		}
		fmt.Printf("Mount point: %s (%s on %s)\n", st.MountPoint, st.Partition.FSType, st.Partition.Device)
		if st.TotalBytes > 0 {
			fmt.Printf("Usage:       %s of %s\n", humanize.Bytes(st.UsedBytes), humanize.Bytes(st.TotalBytes))
		}
		fmt.Printf("In use:      %t\n", st.InUse)
		return nil
	},
}

var volumeSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mount the volume, copy new files onto it and unmount it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := runOperation(cmd, app.OpVolume)
		if err != nil {
			return err
		}
		return a.Close()
	},
}

var volumeUnmountCmd = &cobra.Command{
	Use:   "unmount",
	Short: "Wait until the volume is idle and unmount it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.UnmountVolume(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s after %d check(s)\n", res.State, res.Attempts)
		return nil
	},
}

// device command
var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Query the tethered camera",
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the files on the camera",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		listing, err := a.DeviceList(cmd.Context())
		if err != nil {
			return err
		}
		if listing.Len() == 0 {
			fmt.Println("No files on device.")
			return nil
		}

		table := newTable(cmd.OutOrStdout(), []string{"#", "Name"})
		for _, e := range listing.Entries() {
			table.Append([]string{strconv.Itoa(e.Index), e.Name})
		}
		table.Render()
		return nil
	},
}

var deviceRangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Show the range the next retrieval would download",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		d, listing, err := a.DeviceRange(cmd.Context())
		if errors.Is(err, pbak.ErrNoNewFiles) {
			fmt.Println("No new files on device.")
			return nil
		}
		if err != nil {
			return err
		}
		first, _ := listing.Name(d.Start)
		fmt.Printf("Next retrieval: %s (%d on device, first new file %s)\n", d.Range(), listing.Len(), first)
		return nil
	},
}
