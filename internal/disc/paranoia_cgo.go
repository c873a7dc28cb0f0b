//go:build linux && cgo && cdparanoia

package disc

// #cgo LDFLAGS: -lcdda_interface -lcdda_paranoia
// #include <stdio.h>
// #include <stdlib.h>
// #include <stdint.h>
// #include <cdda_interface.h>
// #include <cdda_paranoia.h>
import "C"

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	apperrors "github.com/mfutil/mfutil-go/internal/errors"
)

// samplesPerSector is CD_FRAMEWORDS: 16-bit words in one sector.
const samplesPerSector = BytesPerSector / 2

// ParanoiaDrive reads audio through libcdparanoia.
type ParanoiaDrive struct {
	opts     ParanoiaOptions
	drive    *C.cdrom_drive
	paranoia *C.cdrom_paranoia
}

// Open implements Drive.
func (d *ParanoiaDrive) Open(device string) error {
	if d.drive != nil {
		return nil
	}

	cdev := C.CString(device)
	defer C.free(unsafe.Pointer(cdev))

	drive := C.cdda_identify(cdev, C.CDDA_MESSAGE_FORGETIT, nil)
	if drive == nil {
		return apperrors.NewDeviceError(fmt.Sprintf("no CD drive or disc found at %s", device), nil)
	}

	if rc := C.cdda_open(drive); rc != 0 {
		C.cdda_close(drive)
		return apperrors.NewDeviceError(fmt.Sprintf("failed to open %s", device), fmt.Errorf("cdda_open returned %d", int(rc)))
	}

	d.drive = drive
	d.paranoia = C.paranoia_init(drive)

	mode := C.int(C.PARANOIA_MODE_FULL ^ C.PARANOIA_MODE_NEVERSKIP)
	if d.opts.Mode == "disable" {
		mode = C.PARANOIA_MODE_DISABLE
	}
	C.paranoia_modeset(d.paranoia, mode)
	return nil
}

// ReadTOC implements Drive.
func (d *ParanoiaDrive) ReadTOC() ([]Track, error) {
	if d.drive == nil {
		return nil, fmt.Errorf("drive not open")
	}

	n := int(C.cdda_tracks(d.drive))
	if n <= 0 {
		return nil, apperrors.NewDeviceError("disc has no tracks", nil)
	}

	toc := make([]Track, 0, n)
	for i := 1; i <= n; i++ {
		toc = append(toc, Track{
			Number:      i,
			FirstSector: int32(C.cdda_track_firstsector(d.drive, C.int(i))),
			LastSector:  int32(C.cdda_track_lastsector(d.drive, C.int(i))),
			IsAudio:     C.cdda_track_audiop(d.drive, C.int(i)) == 1,
		})
	}
	return toc, nil
}

// Seek implements Drive.
func (d *ParanoiaDrive) Seek(sector int32) error {
	if d.paranoia == nil {
		return fmt.Errorf("drive not open")
	}
	if res := C.paranoia_seek(d.paranoia, C.long(sector), C.SEEK_SET); res < 0 {
		return apperrors.NewDeviceError(fmt.Sprintf("seek to sector %d failed", sector), fmt.Errorf("paranoia_seek returned %d", int64(res)))
	}
	return nil
}

// ReadSector implements Drive. Samples come back in host order and are
// rewritten as little-endian.
func (d *ParanoiaDrive) ReadSector() ([]byte, error) {
	if d.paranoia == nil {
		return nil, fmt.Errorf("drive not open")
	}

	ptr := C.paranoia_read_limited(d.paranoia, nil, C.int(d.opts.MaxRetries))
	if ptr == nil {
		return nil, nil
	}

	samples := unsafe.Slice((*int16)(unsafe.Pointer(ptr)), samplesPerSector)
	out := make([]byte, BytesPerSector)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}

// Close implements Drive.
func (d *ParanoiaDrive) Close() error {
	if d.paranoia != nil {
		C.paranoia_free(d.paranoia)
		d.paranoia = nil
	}
	if d.drive != nil {
		C.cdda_close(d.drive)
		d.drive = nil
	}
	return nil
}
