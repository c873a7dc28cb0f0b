package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	apperrors "github.com/mfutil/mfutil-go/internal/errors"
)

// DeviceLock gives one process exclusive use of a drive
type DeviceLock struct {
	fl *flock.Flock
}

// LockPath returns the lock file used for device inside dir
func LockPath(dir, device string) string {
	name := strings.Trim(strings.ReplaceAll(filepath.ToSlash(filepath.Clean(device)), "/", "_"), "_")
	if name == "" || name == "." {
		name = "device"
	}
	return filepath.Join(dir, "mfutil-"+name+".lock")
}

// AcquireDeviceLock takes the lock for device without waiting. A drive
// already locked by another import yields a non-retryable device error.
func AcquireDeviceLock(dir, device string) (*DeviceLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.NewFileSystemError(fmt.Sprintf("failed to create lock directory %s", dir), err)
	}

	fl := flock.New(LockPath(dir, device))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, apperrors.NewFileSystemError(fmt.Sprintf("failed to lock %s", fl.Path()), err)
	}
	if !locked {
		e := apperrors.NewDeviceError(fmt.Sprintf("device %s is in use by another import", device), nil)
		e.Retryable = false
		return nil, e
	}
	return &DeviceLock{fl: fl}, nil
}

// Release drops the lock
func (l *DeviceLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
