// Package importer sequences a whole CD import: identify the disc, resolve
// metadata, then rip, encode and tag each track under a per-track timeout.
package importer

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mfutil/mfutil-go/internal/coverart"
	"github.com/mfutil/mfutil-go/internal/disc"
	"github.com/mfutil/mfutil-go/internal/encoder"
	apperrors "github.com/mfutil/mfutil-go/internal/errors"
	"github.com/mfutil/mfutil-go/internal/metadata"
	"github.com/mfutil/mfutil-go/internal/monitoring"
	"github.com/mfutil/mfutil-go/internal/progress"
	"github.com/mfutil/mfutil-go/internal/rip"
	"github.com/mfutil/mfutil-go/internal/store"
)

// DefaultTrackTimeout bounds the rip, encode and tag of one track.
const DefaultTrackTimeout = 300 * time.Second

// DiscReader identifies the disc in a drive and leaves the drive open
type DiscReader interface {
	Read(ctx context.Context, device string) (*disc.Info, error)
}

// ReleaseResolver fills in release metadata; it never fails
type ReleaseResolver interface {
	Resolve(ctx context.Context, info *disc.Info) *disc.Info
}

// CoverArtResolver finds a cover image; nil means none
type CoverArtResolver interface {
	Resolve(ctx context.Context, q coverart.Query) []byte
}

// History records import outcomes
type History interface {
	BeginImport(rec *store.ImportRecord) error
	RecordTrack(importID string, tr *store.TrackRecord) error
	FinishImport(importID, status, errMsg string) error
}

// Options tunes an Orchestrator
type Options struct {
	TrackTimeout     time.Duration
	FileExtension    string
	EmbedCoverArt    bool
	SaveCoverArtFile bool
	LockDir          string
	OpenRetries      int
}

// Config wires an Orchestrator. Releases, Covers and History are optional.
type Config struct {
	Drive    disc.Drive
	Reader   DiscReader
	Releases ReleaseResolver
	Covers   CoverArtResolver
	Ripper   *rip.Ripper
	Encoder  *encoder.Encoder
	Tagger   *metadata.TagWriter
	History  History
	Options  Options
	Logger   *zap.Logger
}

// Request names the drive to import from and the library root
type Request struct {
	Device   string
	MusicDir string
	// Progress receives messages for this import; nil discards them.
	Progress progress.Sink
}

// TrackFailure describes a track that was not imported
type TrackFailure struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Summary is the outcome of a completed import
type Summary struct {
	ImportID  string         `json:"import_id"`
	DiscID    string         `json:"disc_id"`
	ReleaseID string         `json:"release_id,omitempty"`
	Artist    string         `json:"artist"`
	Album     string         `json:"album"`
	OutputDir string         `json:"output_dir"`
	Total     int            `json:"total"`
	Imported  int            `json:"imported"`
	Failures  []TrackFailure `json:"failures,omitempty"`
	Cancelled bool           `json:"cancelled"`
	Duration  time.Duration  `json:"duration"`
}

// Status condenses the summary into a history status
func (s *Summary) Status() string {
	switch {
	case s.Cancelled:
		return store.StatusCancelled
	case s.Imported == s.Total:
		return store.StatusCompleted
	case s.Imported == 0:
		return store.StatusFailed
	default:
		return store.StatusPartial
	}
}

// Orchestrator runs imports. It is not safe for concurrent Run calls; use a
// Worker to serialize them.
type Orchestrator struct {
	drive    disc.Drive
	reader   DiscReader
	releases ReleaseResolver
	covers   CoverArtResolver
	ripper   *rip.Ripper
	encoder  *encoder.Encoder
	tagger   *metadata.TagWriter
	history  History
	opts     Options
	logger   *zap.Logger

	cancelled atomic.Bool
	state     atomic.Int32
}

// New creates an Orchestrator
func New(cfg Config) *Orchestrator {
	logger := monitoring.OrNop(cfg.Logger)
	opts := cfg.Options
	if opts.TrackTimeout <= 0 {
		opts.TrackTimeout = DefaultTrackTimeout
	}
	if opts.FileExtension == "" {
		opts.FileExtension = "flac"
	}

	o := &Orchestrator{
		drive:    cfg.Drive,
		reader:   cfg.Reader,
		releases: cfg.Releases,
		covers:   cfg.Covers,
		ripper:   cfg.Ripper,
		encoder:  cfg.Encoder,
		tagger:   cfg.Tagger,
		history:  cfg.History,
		opts:     opts,
		logger:   logger,
	}
	if o.reader == nil {
		o.reader = disc.NewReader(cfg.Drive, logger, opts.OpenRetries)
	}
	if o.ripper == nil {
		o.ripper = rip.NewRipper(rip.DefaultProgressInterval, logger)
	}
	if o.encoder == nil {
		o.encoder = encoder.New(encoder.DefaultBlockSize, logger)
	}
	if o.tagger == nil {
		o.tagger = metadata.NewTagWriter("mfutil")
	}
	return o
}

// Cancel asks a running import to stop before its next track. A call made
// before Run starts applies to that run; the request is cleared when Run
// returns.
func (o *Orchestrator) Cancel() {
	o.cancelled.Store(true)
}

// State returns the current stage
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State, logger *zap.Logger) {
	o.state.Store(int32(s))
	logger.Debug("import state", zap.Stringer("state", s))
}

// Run imports the disc in req.Device into req.MusicDir. An error is returned
// only for failures before the first track; nothing is written in that case.
// Track failures are reported through progress and the summary.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Summary, error) {
	sink := req.Progress
	if sink == nil {
		sink = progress.Discard
	}
	if req.Device == "" {
		return nil, apperrors.NewValidationError("device cannot be empty")
	}
	if req.MusicDir == "" {
		return nil, apperrors.NewValidationError("music directory cannot be empty")
	}

	defer o.cancelled.Store(false)
	start := time.Now()
	summary := &Summary{ImportID: uuid.NewString()}
	logger := monitoring.ImportLogger(o.logger, summary.ImportID, req.Device)

	monitoring.RecordImportStart()
	defer monitoring.RecordImportEnd()

	o.setState(StateStart, logger)
	if o.opts.LockDir != "" {
		lock, err := AcquireDeviceLock(o.opts.LockDir, req.Device)
		if err != nil {
			return nil, o.fatal(logger, err)
		}
		defer lock.Release()
	}

	o.setState(StateReadTOC, logger)
	stageStart := time.Now()
	info, err := o.reader.Read(ctx, req.Device)
	if err != nil {
		return nil, o.fatal(logger, err)
	}
	if o.drive != nil {
		defer o.drive.Close()
	}
	monitoring.RecordStage("read_toc", time.Since(stageStart))
	sink.Send(progress.Info{Text: fmt.Sprintf("Read CD table of contents: %d audio tracks (disc id %s)", len(info.Tracks), info.DiscID)})

	o.setState(StateResolveRelease, logger)
	if o.releases != nil {
		sink.Send(progress.Info{Text: "Looking up CD information from MusicBrainz..."})
		stageStart = time.Now()
		info = o.releases.Resolve(ctx, info)
		monitoring.RecordStage("resolve_release", time.Since(stageStart))
	}
	if info.HasRelease() {
		sink.Send(progress.Info{Text: fmt.Sprintf("Found release: %s - %s (%s)", info.Artist, info.Title, info.ReleaseID)})
	} else {
		sink.Send(progress.Info{Text: "No release match found, using placeholder metadata"})
	}

	o.setState(StateResolveCoverArt, logger)
	var cover []byte
	if o.covers != nil {
		stageStart = time.Now()
		cover = o.covers.Resolve(ctx, coverart.Query{ReleaseID: info.ReleaseID, Artist: info.Artist, Album: info.Title})
		monitoring.RecordStage("resolve_cover_art", time.Since(stageStart))
		if cover != nil {
			sink.Send(progress.Info{Text: "Cover art found"})
		} else {
			sink.Send(progress.Info{Text: "No cover art found"})
		}
	}

	albumDir := filepath.Join(req.MusicDir, "Artists", disc.SanitizeFilename(info.Artist), disc.SanitizeFilename(info.Title))
	if err := os.MkdirAll(albumDir, 0755); err != nil {
		return nil, o.fatal(logger, apperrors.NewFileSystemError(fmt.Sprintf("failed to create %s", albumDir), err))
	}

	summary.DiscID = info.DiscID
	summary.ReleaseID = info.ReleaseID
	summary.Artist = info.Artist
	summary.Album = info.Title
	summary.OutputDir = albumDir
	summary.Total = len(info.Tracks)

	o.beginHistory(logger, summary, req.Device)
	logger.Info("import started",
		zap.String("disc_id", info.DiscID),
		zap.String("release_id", info.ReleaseID),
		zap.String("output_dir", albumDir),
		zap.Int("tracks", summary.Total),
	)

	sink.Send(progress.TotalTracks{Count: summary.Total})
	for _, track := range info.Tracks {
		if o.cancelled.Load() || ctx.Err() != nil {
			summary.Cancelled = true
			sink.Send(progress.Info{Text: "Import cancelled"})
			break
		}

		sink.Send(progress.TrackStarted{Number: track.Number, Title: track.Title})
		path, err := o.runTrack(ctx, logger, info, track, albumDir, cover, sink)
		if err != nil {
			reason := reasonFor(err)
			summary.Failures = append(summary.Failures, TrackFailure{Number: track.Number, Title: track.Title, Reason: reason})
			sink.Send(progress.TrackError{Number: track.Number, Title: track.Title, Reason: reason})
			logger.Warn("track failed", zap.Int("track", track.Number), zap.String("reason", reason), zap.Error(err))
			o.recordTrack(logger, summary.ImportID, track, store.TrackFailed, reason, "")
			if apperrors.IsTimeoutError(err) {
				monitoring.RecordTrack("timeout")
			} else {
				monitoring.RecordTrack("failed")
			}
			monitoring.RecordError(string(apperrors.GetErrorType(err)))
			continue
		}

		summary.Imported++
		sink.Send(progress.TrackCompleted{Number: track.Number, Title: track.Title, Total: summary.Total})
		o.recordTrack(logger, summary.ImportID, track, store.TrackImported, "", path)
		monitoring.RecordTrack("imported")
	}

	o.setState(StateFinished, logger)
	summary.Duration = time.Since(start)
	sink.Send(progress.ImportFinished{Artist: info.Artist, Title: info.Title, Imported: summary.Imported, Total: summary.Total})
	o.finishHistory(logger, summary)

	logger.Info("import finished",
		zap.String("status", summary.Status()),
		zap.Int("imported", summary.Imported),
		zap.Int("total", summary.Total),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (o *Orchestrator) fatal(logger *zap.Logger, err error) error {
	monitoring.RecordError(string(apperrors.GetErrorType(err)))
	logger.Error("import failed", zap.Stringer("state", o.State()), zap.Error(err))
	return err
}

type trackOutcome struct {
	path string
	err  error
}

// runTrack imports one track under the track timeout. The work runs on its
// own goroutine so the deadline is reported promptly, but runTrack still
// waits for it to return: the drive is never shared between two tracks.
func (o *Orchestrator) runTrack(ctx context.Context, logger *zap.Logger, info *disc.Info, track disc.CdTrack, dir string, cover []byte, sink progress.Sink) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, o.opts.TrackTimeout)
	defer cancel()

	done := make(chan trackOutcome, 1)
	go func() {
		path, err := o.importTrack(tctx, logger, info, track, dir, cover, sink)
		done <- trackOutcome{path: path, err: err}
	}()

	var out trackOutcome
	select {
	case out = <-done:
	case <-tctx.Done():
		out = <-done
		if out.err == nil {
			return out.path, nil
		}
	}

	if out.err != nil && tctx.Err() != nil {
		if ctx.Err() != nil {
			return "", apperrors.NewTimeoutError("cancelled", ctx.Err())
		}
		return "", apperrors.NewTimeoutError("timeout", out.err)
	}
	return out.path, out.err
}

func (o *Orchestrator) importTrack(ctx context.Context, logger *zap.Logger, info *disc.Info, track disc.CdTrack, dir string, cover []byte, sink progress.Sink) (string, error) {
	o.setState(StateRip, logger)
	stageStart := time.Now()
	pcm, err := o.ripper.Rip(ctx, o.drive, track, sink)
	if err != nil {
		return "", err
	}
	monitoring.RecordStage("rip", time.Since(stageStart))
	if err := ctx.Err(); err != nil {
		return "", err
	}

	o.setState(StateEncode, logger)
	stageStart = time.Now()
	dest := filepath.Join(dir, track.OutputFilename(o.opts.FileExtension))
	if err := o.encoder.Encode(pcm, dest); err != nil {
		return "", err
	}
	monitoring.RecordStage("encode", time.Since(stageStart))
	if err := ctx.Err(); err != nil {
		os.Remove(dest)
		return "", err
	}

	o.setState(StateTag, logger)
	stageStart = time.Now()
	o.tag(logger, info, track, dest, cover)
	monitoring.RecordStage("tag", time.Since(stageStart))

	return dest, nil
}

// tag writes tags and cover art. Failures here are logged only; the audio
// is already safely on disk.
func (o *Orchestrator) tag(logger *zap.Logger, info *disc.Info, track disc.CdTrack, dest string, cover []byte) {
	tags := &metadata.TrackTags{
		Title:       track.Title,
		Artist:      track.Artist,
		Album:       info.Title,
		AlbumArtist: info.Artist,
		TrackNumber: track.Number,
		TrackTotal:  len(info.Tracks),
		ReleaseID:   info.ReleaseID,
		DiscID:      info.DiscID,
	}

	embedded := false
	if o.opts.EmbedCoverArt && len(cover) > 0 {
		tags.Picture = cover
		if err := o.tagger.Write(dest, tags); err == nil {
			embedded = true
		} else {
			logger.Warn("failed to embed cover art", zap.String("file", dest), zap.Error(err))
			tags.Picture = nil
		}
	}
	if !embedded {
		if err := o.tagger.Write(dest, tags); err != nil {
			logger.Warn("failed to write tags", zap.String("file", dest), zap.Error(err))
		}
	}

	if len(cover) > 0 && !embedded && o.opts.SaveCoverArtFile {
		if err := encoder.WriteCoverArt(dest, cover); err != nil {
			logger.Warn("failed to save cover art", zap.String("file", dest), zap.Error(err))
		}
	}
}

func (o *Orchestrator) beginHistory(logger *zap.Logger, s *Summary, device string) {
	if o.history == nil {
		return
	}
	err := o.history.BeginImport(&store.ImportRecord{
		ID:          s.ImportID,
		DiscID:      s.DiscID,
		ReleaseID:   s.ReleaseID,
		Device:      device,
		Artist:      s.Artist,
		Album:       s.Album,
		OutputDir:   s.OutputDir,
		TotalTracks: s.Total,
	})
	if err != nil {
		logger.Warn("failed to record import", zap.Error(err))
	}
}

func (o *Orchestrator) recordTrack(logger *zap.Logger, importID string, track disc.CdTrack, status, reason, path string) {
	if o.history == nil {
		return
	}
	err := o.history.RecordTrack(importID, &store.TrackRecord{
		Number:       track.Number,
		Title:        track.Title,
		Status:       status,
		ErrorMessage: reason,
		FilePath:     path,
	})
	if err != nil {
		logger.Warn("failed to record track", zap.Int("track", track.Number), zap.Error(err))
	}
}

func (o *Orchestrator) finishHistory(logger *zap.Logger, s *Summary) {
	if o.history == nil {
		return
	}
	if err := o.history.FinishImport(s.ImportID, s.Status(), ""); err != nil {
		logger.Warn("failed to finish import record", zap.Error(err))
	}
}

// reasonFor renders an error for a TrackError message.
func reasonFor(err error) string {
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
