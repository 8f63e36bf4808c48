package pbak

import "context"

// DeviceRetriever pulls new files from a capture device into a directory.
type DeviceRetriever interface {
	Retrieve(ctx context.Context, destDir string) (*RetrievalResult, error)
}

// Synchronizer copies files that are absent from each pair's destination.
type Synchronizer interface {
	Sync(ctx context.Context, pairs []SyncPair, progress ProgressFunc) (*SyncReport, error)
}

// Unmounter detaches whatever is mounted at path.
type Unmounter interface {
	Unmount(ctx context.Context, path string) error
}

// Mounter attaches and detaches an encrypted volume.
type Mounter interface {
	Unmounter
	Mount(ctx context.Context, vol Volume) error
}

// WorkFunc is run while a volume is mounted.
type WorkFunc func(ctx context.Context) error

// VolumeLifecycle mounts a volume if needed, runs work, and always attempts
// a guarded unmount afterwards.
type VolumeLifecycle interface {
	WithMountedVolume(ctx context.Context, vol Volume, mounter Mounter, work WorkFunc) (*LifecycleReport, error)
}

// PreviewGenerator renders previews for files that have none yet.
type PreviewGenerator interface {
	Generate(ctx context.Context) (*PreviewReport, error)
}

// KeyEscrow keeps a passphrase-protected copy of the volume keyfile so the
// volume stays recoverable if the machine holding the keyfile is lost.
type KeyEscrow interface {
	// Seal encrypts the keyfile into the escrow file.
	Seal(passphrase string) error
	// Recover restores the keyfile from the escrow file.
	Recover(passphrase string) error
	// IsSealed reports whether an escrow file exists.
	IsSealed() bool
	// Path is where the sealed copy lives.
	Path() string
}
