// Package rip extracts the PCM audio of a single track from a drive.
package rip

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mfutil/mfutil-go/internal/disc"
	apperrors "github.com/mfutil/mfutil-go/internal/errors"
	"github.com/mfutil/mfutil-go/internal/monitoring"
	"github.com/mfutil/mfutil-go/internal/progress"
)

// DefaultProgressInterval is how many sectors pass between progress messages.
const DefaultProgressInterval = 100

// Ripper reads tracks sector by sector.
type Ripper struct {
	interval int
	logger   *zap.Logger
}

// NewRipper creates a Ripper that reports progress every interval sectors.
func NewRipper(interval int, logger *zap.Logger) *Ripper {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &Ripper{
		interval: interval,
		logger:   monitoring.OrNop(logger),
	}
}

// Rip returns the 16-bit little-endian stereo PCM for track. The read stops
// early at the first sector the drive cannot deliver; a partial track is
// returned as long as at least one sector was read. ctx is checked between
// sectors, so cancellation waits for the read in flight.
func (r *Ripper) Rip(ctx context.Context, drive disc.Drive, track disc.CdTrack, sink progress.Sink) ([]byte, error) {
	if sink == nil {
		sink = progress.Discard
	}

	total := track.Sectors()
	if total <= 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("track %d has an empty sector range", track.Number))
	}

	if err := drive.Seek(track.FirstSector); err != nil {
		return nil, fmt.Errorf("seek to track %d: %w", track.Number, err)
	}

	var buf bytes.Buffer
	buf.Grow(total * disc.BytesPerSector)

	read := 0
	var stopErr error
	for sector := track.FirstSector; sector <= track.LastSector; sector++ {
		if err := ctx.Err(); err != nil {
			monitoring.RecordSectors(read)
			return nil, err
		}

		frame, err := drive.ReadSector()
		if err != nil || frame == nil {
			stopErr = err
			break
		}
		buf.Write(frame)
		read++

		if read%r.interval == 0 {
			sink.Send(progress.SectorProgress{
				Track:       track.Number,
				Percent:     read * 100 / total,
				SectorsRead: read,
			})
		}
	}
	monitoring.RecordSectors(read)

	if read == 0 {
		msg := fmt.Sprintf("failed to read any audio data from track %d", track.Number)
		if stopErr != nil {
			return nil, apperrors.NewDeviceError(msg, stopErr)
		}
		e := apperrors.NewDeviceError(msg, nil)
		e.Retryable = false
		return nil, e
	}

	if read < total {
		r.logger.Warn("track read ended early",
			zap.Int("track", track.Number),
			zap.Int("sectors_read", read),
			zap.Int("sectors_expected", total),
			zap.Error(stopErr),
		)
	}

	return buf.Bytes(), nil
}
