package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"filippo.io/age"

	"pbak/internal/config"
	"pbak/internal/keyfile"
	"pbak/internal/pbak"
)

// AgeEscrow implements pbak.KeyEscrow using filippo.io/age with a scrypt
// passphrase recipient. The escrow file is a standard age file and can be
// opened with `age -d` on any machine.
type AgeEscrow struct {
	keyfilePath string
	escrowPath  string
}

var _ pbak.KeyEscrow = (*AgeEscrow)(nil)

// NewAgeEscrow creates a new AgeEscrow from the volume configuration.
func NewAgeEscrow(cfg config.VolumeConfig) *AgeEscrow {
	escrow := cfg.KeyfileEscrowPath
	if escrow == "" {
		escrow = cfg.KeyfilePath + ".age"
	}
	return &AgeEscrow{
		keyfilePath: cfg.KeyfilePath,
		escrowPath:  escrow,
	}
}

// Path returns the escrow file location.
func (e *AgeEscrow) Path() string {
	return e.escrowPath
}

// Seal encrypts the keyfile with the passphrase and writes the escrow file,
// replacing any previous one.
func (e *AgeEscrow) Seal(passphrase string) error {
	if passphrase == "" {
		return errors.New("passphrase must not be empty")
	}

	key, err := os.ReadFile(e.keyfilePath)
	if err != nil {
		return fmt.Errorf("reading keyfile: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(key); err != nil {
		return fmt.Errorf("encrypting keyfile: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	if err := writeAtomic(e.escrowPath, sealed.Bytes()); err != nil {
		return fmt.Errorf("writing escrow file: %w", err)
	}
	return nil
}

// Recover decrypts the escrow file with the passphrase and writes the
// keyfile. An existing keyfile that differs from the recovered one is moved
// aside the same way a regenerated keyfile is.
func (e *AgeEscrow) Recover(passphrase string) error {
	sealed, err := os.ReadFile(e.escrowPath)
	if err != nil {
		return fmt.Errorf("reading escrow file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return fmt.Errorf("decrypting escrow file: %w", err)
	}
	key, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading decrypted keyfile: %w", err)
	}

	current, err := os.ReadFile(e.keyfilePath)
	switch {
	case err == nil && bytes.Equal(current, key):
		return nil
	case err == nil:
		if err := os.Rename(e.keyfilePath, keyfile.BackupPath(e.keyfilePath)); err != nil {
			return fmt.Errorf("moving existing keyfile aside: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("reading keyfile: %w", err)
	}

	if err := writeAtomic(e.keyfilePath, key); err != nil {
		return fmt.Errorf("writing keyfile: %w", err)
	}
	return nil
}

// IsSealed returns true if the escrow file exists.
func (e *AgeEscrow) IsSealed() bool {
	_, err := os.Stat(e.escrowPath)
	return err == nil
}

// writeAtomic writes data with mode 0600 through a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
