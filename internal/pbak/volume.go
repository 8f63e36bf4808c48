package pbak

import "context"

// MountTable answers whether a path is currently a mount point.
type MountTable interface {
	IsMounted(ctx context.Context, mountPoint string) (bool, error)
}

// InUseChecker reports whether any process holds files open under a mount point.
type InUseChecker interface {
	InUse(ctx context.Context, mountPoint string) (bool, error)
}
