//go:build !(linux && cgo && cdparanoia)

package disc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mfutil/mfutil-go/internal/disc"
	apperrors "github.com/mfutil/mfutil-go/internal/errors"
)

func TestParanoiaDriveUnavailable(t *testing.T) {
	drive := disc.NewParanoiaDrive(disc.DefaultParanoiaOptions())

	err := drive.Open("/dev/sr0")
	assert.True(t, apperrors.IsDeviceError(err))
	assert.False(t, apperrors.IsRetryable(err))
	assert.NoError(t, drive.Close())
}
