package device

import (
	"context"
	"fmt"
	"os"

	"pbak/internal/config"
	"pbak/internal/pbak"
)

// DefaultKillProcesses are desktop monitors that claim the camera over PTP
// and make gphoto2 fail to connect.
var DefaultKillProcesses = []string{"gvfs-gphoto2-volume-monitor", "gvfsd-gphoto2"}

// Client talks to a capture device through the gphoto2 command line tool.
type Client struct {
	runner        pbak.CommandRunner
	logger        pbak.Logger
	binary        string
	killProcesses []string
	mode          pbak.RangeMode
}

var _ pbak.DeviceRetriever = (*Client)(nil)

// NewClient creates a Client. An empty binary defaults to "gphoto2".
func NewClient(runner pbak.CommandRunner, logger pbak.Logger, binary string, killProcesses []string, mode pbak.RangeMode) *Client {
	if binary == "" {
		binary = "gphoto2"
	}
	return &Client{
		runner:        runner,
		logger:        logger,
		binary:        binary,
		killProcesses: killProcesses,
		mode:          mode,
	}
}

// NewClientFromConfig creates a Client from the device config section.
func NewClientFromConfig(cfg config.DeviceConfig, runner pbak.CommandRunner, logger pbak.Logger) (*Client, error) {
	mode, err := pbak.ParseRangeMode(cfg.RangeMode)
	if err != nil {
		return nil, err
	}
	kill := cfg.KillProcesses
	if kill == nil {
		kill = DefaultKillProcesses
	}
	return NewClient(runner, logger, cfg.Binary, kill, mode), nil
}

// List queries the device for its current file listing. Listings are never cached.
func (c *Client) List(ctx context.Context) (*Listing, error) {
	c.releaseDevice(ctx)

	cmd := pbak.Command{Name: c.binary, Args: []string{"--list-files"}}
	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", cmd, err)
	}
	if !res.Success() {
		return nil, &pbak.DeviceUnavailableError{Command: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return ParseListing(res.Stdout)
}

// Range computes the directive for destDir without retrieving anything.
func (c *Client) Range(ctx context.Context, destDir string) (pbak.RetrievalDirective, *Listing, error) {
	existing, err := existingNames(destDir)
	if err != nil {
		return pbak.RetrievalDirective{}, nil, err
	}
	listing, err := c.List(ctx)
	if err != nil {
		return pbak.RetrievalDirective{}, nil, err
	}
	d, err := NextNewRange(listing, existing, c.mode)
	return d, listing, err
}

// Retrieve pulls every file from the first one missing in destDir onwards.
// The device tool runs with destDir as its working directory.
func (c *Client) Retrieve(ctx context.Context, destDir string) (*pbak.RetrievalResult, error) {
	existing, err := existingNames(destDir)
	if err != nil {
		return nil, err
	}
	listing, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	d, err := NextNewRange(listing, existing, c.mode)
	if err != nil {
		return nil, err
	}

	cmd := pbak.Command{
		Name: c.binary,
		Args: []string{"--get-file=" + d.Range()},
		Dir:  destDir,
	}
	c.logger.Info("retrieving from device", "range", d.Range(), "dest", destDir)
	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", cmd, err)
	}
	if !res.Success() {
		return nil, &pbak.DeviceUnavailableError{Command: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	return &pbak.RetrievalResult{
		Directive: d,
		Listed:    listing.Len(),
		Existing:  len(existing),
	}, nil
}

// releaseDevice kills processes that hold the device. Failures are expected
// when none are running and are ignored.
func (c *Client) releaseDevice(ctx context.Context) {
	for _, name := range c.killProcesses {
		res, err := c.runner.Run(ctx, pbak.Command{Name: "killall", Args: []string{name}})
		if err != nil || !res.Success() {
			c.logger.Debug("killall had no effect", "process", name)
		}
	}
}

// existingNames returns the basenames of the top-level entries of dir.
func existingNames(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		names[e.Name()] = struct{}{}
	}
	return names, nil
}
