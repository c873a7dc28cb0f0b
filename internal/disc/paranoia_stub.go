//go:build !(linux && cgo && cdparanoia)

package disc

import (
	"fmt"

	apperrors "github.com/mfutil/mfutil-go/internal/errors"
)

// ParanoiaDrive is unavailable in this build.
type ParanoiaDrive struct {
	opts ParanoiaOptions
}

func errNoParanoia() error {
	err := apperrors.NewDeviceError("CD support not compiled in; rebuild on linux with CGO_ENABLED=1 and -tags cdparanoia", nil)
	err.Retryable = false
	return err
}

// Open implements Drive.
func (d *ParanoiaDrive) Open(device string) error { return errNoParanoia() }

// ReadTOC implements Drive.
func (d *ParanoiaDrive) ReadTOC() ([]Track, error) { return nil, errNoParanoia() }

// Seek implements Drive.
func (d *ParanoiaDrive) Seek(sector int32) error {
	return fmt.Errorf("seek to sector %d: %w", sector, errNoParanoia())
}

// ReadSector implements Drive.
func (d *ParanoiaDrive) ReadSector() ([]byte, error) { return nil, errNoParanoia() }

// Close implements Drive.
func (d *ParanoiaDrive) Close() error { return nil }
