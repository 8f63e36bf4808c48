package encryption

import (
	"errors"

	"pbak/internal/config"
	"pbak/internal/pbak"
)

// NewKeyEscrowFromConfig creates a KeyEscrow for the configured volume keyfile.
func NewKeyEscrowFromConfig(cfg config.VolumeConfig) (pbak.KeyEscrow, error) {
	if cfg.KeyfilePath == "" {
		return nil, errors.New("volume.keyfile_path is not set")
	}
	return NewAgeEscrow(cfg), nil
}
