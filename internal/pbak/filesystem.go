package pbak

// FilesystemManager abstracts the filesystem operations the synchronizer needs.
type FilesystemManager interface {
	// EnsureDir creates path and any missing parents. Existing directories are fine.
	EnsureDir(path string) error

	// Glob expands pattern to the sorted list of matching regular files.
	// Symlinks, directories and special files are not returned.
	Glob(pattern string) ([]string, error)

	// Exists reports whether any directory entry is present at path,
	// without following symlinks.
	Exists(path string) (bool, error)

	// CopyFile copies src to dst so that dst never appears partially written.
	// It returns the number of bytes copied.
	CopyFile(src, dst string) (int64, error)
}
