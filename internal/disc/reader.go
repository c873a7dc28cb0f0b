package disc

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/mfutil/mfutil-go/internal/errors"
)

// Drive is the capability set the importer needs from a CD drive. A Drive
// is owned by one import at a time and is not safe for concurrent use.
type Drive interface {
	// Open identifies and opens the device.
	Open(device string) error
	// ReadTOC returns every entry of the table of contents, including data
	// tracks and malformed entries.
	ReadTOC() ([]Track, error)
	// Seek positions the read head at the given sector.
	Seek(sector int32) error
	// ReadSector returns the next sector of 16-bit little-endian stereo
	// PCM. A nil frame means no more data could be read.
	ReadSector() ([]byte, error)
	// Close releases the device.
	Close() error
}

// ErrNoAudioTracks is returned when nothing importable remains after
// filtering the table of contents.
var ErrNoAudioTracks = apperrors.NewValidationError("no valid audio tracks found on the disc; it may be damaged or unreadable")

// Reader identifies a disc in a drive.
type Reader struct {
	drive       Drive
	logger      *zap.Logger
	openRetries int
}

// NewReader creates a Reader. openRetries bounds how often a busy drive is
// re-opened before giving up.
func NewReader(drive Drive, logger *zap.Logger, openRetries int) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		drive:       drive,
		logger:      logger,
		openRetries: openRetries,
	}
}

// Read opens device and returns the disc's identity and audio tracks with
// placeholder metadata. The drive stays open on success; the caller owns
// closing it.
func (r *Reader) Read(ctx context.Context, device string) (*Info, error) {
	cfg := apperrors.DeviceRetryConfig(r.openRetries)
	cfg.OnRetry = r.logRetry(device)

	err := apperrors.RetryWithBackoff(ctx, cfg, func() error {
		return openDrive(r.drive, device)
	})
	if err != nil {
		return nil, err
	}

	toc, err := r.drive.ReadTOC()
	if err != nil {
		r.drive.Close()
		return nil, asDeviceError("failed to read table of contents", err)
	}

	id, err := ComputeDiscID(toc)
	if err != nil {
		r.drive.Close()
		return nil, apperrors.NewDeviceError(fmt.Sprintf("failed to identify disc in %s", device), err)
	}

	info, err := BuildInfo(id, toc, r.logger)
	if err != nil {
		r.drive.Close()
		return nil, err
	}

	r.logger.Info("disc identified",
		zap.String("disc_id", info.DiscID),
		zap.Int("toc_entries", len(toc)),
		zap.Int("audio_tracks", len(info.Tracks)),
		zap.Float64("total_seconds", info.TotalDurationSeconds),
	)
	return info, nil
}

// BuildInfo filters a table of contents down to importable audio tracks and
// wraps them in an Info with placeholder metadata.
func BuildInfo(discID string, toc []Track, logger *zap.Logger) (*Info, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tracks := make([]CdTrack, 0, len(toc))
	for _, t := range toc {
		if !t.IsAudio {
			logger.Info("skipping data track", zap.Int("track", t.Number))
			continue
		}
		if !t.Valid() {
			logger.Warn("skipping track with invalid sector range",
				zap.Int("track", t.Number),
				zap.Int32("first_sector", t.FirstSector),
				zap.Int32("last_sector", t.LastSector),
			)
			continue
		}
		tracks = append(tracks, CdTrack{
			Number:          t.Number,
			Title:           PlaceholderTitle(t.Number),
			Artist:          UnknownArtist,
			DurationSeconds: durationOf(t.Sectors()),
			FirstSector:     t.FirstSector,
			LastSector:      t.LastSector,
		})
	}

	if len(tracks) == 0 {
		return nil, ErrNoAudioTracks
	}

	return NewInfo(discID, UnknownAlbum, UnknownArtist, "", tracks), nil
}

func (r *Reader) logRetry(device string) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		r.logger.Warn("drive not ready, retrying",
			zap.String("device", device),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
}

func openDrive(d Drive, device string) error {
	if err := d.Open(device); err != nil {
		return asDeviceError(fmt.Sprintf("failed to open %s", device), err)
	}
	return nil
}

// asDeviceError keeps driver errors that already carry a type and wraps
// anything else as a non-retryable device error.
func asDeviceError(message string, err error) error {
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	wrapped := apperrors.NewDeviceError(message, err)
	wrapped.Retryable = false
	return wrapped
}
