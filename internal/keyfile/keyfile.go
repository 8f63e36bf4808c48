// Package keyfile creates the random keyfile that unlocks the encrypted volume.
package keyfile

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
)

// Length is the number of characters in a generated keyfile.
const Length = 160

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// BackupPath returns where an existing keyfile at path is moved before a new
// one is written.
func BackupPath(path string) string {
	return path + "_bak"
}

// Generate writes a fresh keyfile to path. An existing file is first moved to
// BackupPath(path), replacing any earlier backup. It returns the backup path,
// or "" when there was nothing to move aside.
func Generate(path string) (string, error) {
	return generate(rand.Reader, path)
}

func generate(random io.Reader, path string) (string, error) {
	key, err := randomString(random, Length)
	if err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("creating keyfile directory: %w", err)
	}

	var backup string
	if _, err := os.Lstat(path); err == nil {
		backup = BackupPath(path)
		if err := os.Rename(path, backup); err != nil {
			return "", fmt.Errorf("moving existing keyfile aside: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return backup, fmt.Errorf("creating keyfile: %w", err)
	}
	if _, err := f.WriteString(key); err != nil {
		f.Close()
		return backup, fmt.Errorf("writing keyfile: %w", err)
	}
	if err := f.Close(); err != nil {
		return backup, fmt.Errorf("closing keyfile: %w", err)
	}
	return backup, nil
}

func randomString(random io.Reader, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(random, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}
