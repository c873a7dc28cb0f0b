package importer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfutil/mfutil-go/internal/coverart"
	"github.com/mfutil/mfutil-go/internal/disc"
	"github.com/mfutil/mfutil-go/internal/disc/disctest"
	"github.com/mfutil/mfutil-go/internal/encoder"
	apperrors "github.com/mfutil/mfutil-go/internal/errors"
	"github.com/mfutil/mfutil-go/internal/metadata"
	"github.com/mfutil/mfutil-go/internal/progress"
	"github.com/mfutil/mfutil-go/internal/store"
)

type releaseFunc func(ctx context.Context, info *disc.Info) *disc.Info

func (f releaseFunc) Resolve(ctx context.Context, info *disc.Info) *disc.Info { return f(ctx, info) }

type coverFunc func(ctx context.Context, q coverart.Query) []byte

func (f coverFunc) Resolve(ctx context.Context, q coverart.Query) []byte { return f(ctx, q) }

// titled names the tracks and sets a release like a metadata match would.
func titled(artist, album string, titles ...string) releaseFunc {
	return func(_ context.Context, info *disc.Info) *disc.Info {
		tracks := make([]disc.CdTrack, len(info.Tracks))
		copy(tracks, info.Tracks)
		for i := range tracks {
			if i < len(titles) {
				tracks[i].Title = titles[i]
			}
			tracks[i].Artist = artist
		}
		return disc.NewInfo(info.DiscID, album, artist, "rel-1", tracks)
	}
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 20), B: uint8(y * 20), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func kinds(msgs []progress.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Kind() == "info" || m.Kind() == "sector_progress" {
			continue
		}
		out = append(out, m.Kind())
	}
	return out
}

func TestRunImportsAllTracks(t *testing.T) {
	drive := disctest.NewMockDrive(30, 45)
	musicDir := t.TempDir()
	cover := testJPEG(t)

	db, err := store.InitDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer db.Close()
	history := store.NewHistoryStore(db)

	var gotQuery coverart.Query
	o := New(Config{
		Drive:    drive,
		Releases: titled("Test Artist", "Test Album", "Intro", "Outro"),
		Covers: coverFunc(func(_ context.Context, q coverart.Query) []byte {
			gotQuery = q
			return cover
		}),
		History: history,
		Options: Options{TrackTimeout: 10 * time.Second, SaveCoverArtFile: true},
	})

	rec := &progress.Recorder{}
	summary, err := o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: musicDir, Progress: rec})
	require.NoError(t, err)

	albumDir := filepath.Join(musicDir, "Artists", "Test Artist", "Test Album")
	assert.Equal(t, albumDir, summary.OutputDir)
	assert.Equal(t, 2, summary.Imported)
	assert.Equal(t, 2, summary.Total)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, store.StatusCompleted, summary.Status())
	assert.Equal(t, coverart.Query{ReleaseID: "rel-1", Artist: "Test Artist", Album: "Test Album"}, gotQuery)
	assert.True(t, drive.Closed())
	assert.Equal(t, StateFinished, o.State())

	first := filepath.Join(albumDir, "01 Intro.flac")
	tags, err := metadata.Read(first)
	require.NoError(t, err)
	assert.Equal(t, "Intro", tags.Title)
	assert.Equal(t, "Test Album", tags.Album)
	assert.Equal(t, "Test Artist", tags.AlbumArtist)
	assert.Equal(t, 1, tags.TrackNumber)
	assert.Equal(t, 2, tags.TrackTotal)
	assert.Equal(t, "rel-1", tags.ReleaseID)
	assert.Empty(t, tags.Picture)

	assert.FileExists(t, filepath.Join(albumDir, "02 Outro.flac"))
	assert.FileExists(t, encoder.CoverArtPath(first))

	assert.Equal(t, []string{
		"total_tracks",
		"track_started", "track_completed",
		"track_started", "track_completed",
		"import_finished",
	}, kinds(rec.Messages()))

	msgs := rec.Messages()
	assert.Equal(t, progress.ImportFinished{Artist: "Test Artist", Title: "Test Album", Imported: 2, Total: 2}, msgs[len(msgs)-1])

	got, tracks, err := history.GetImport(summary.ImportID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.ImportedTracks)
	require.Len(t, tracks, 2)
	assert.Equal(t, first, tracks[0].FilePath)
}

func TestRunEmbedsCoverArt(t *testing.T) {
	drive := disctest.NewMockDrive(20)
	musicDir := t.TempDir()
	cover := testJPEG(t)

	o := New(Config{
		Drive:    drive,
		Releases: titled("Test Artist", "Test Album", "Only"),
		Covers:   coverFunc(func(context.Context, coverart.Query) []byte { return cover }),
		Options:  Options{EmbedCoverArt: true, SaveCoverArtFile: true},
	})

	summary, err := o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: musicDir})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Imported)

	path := filepath.Join(summary.OutputDir, "01 Only.flac")
	tags, err := metadata.Read(path)
	require.NoError(t, err)
	assert.Equal(t, cover, tags.Picture)
	assert.NoFileExists(t, encoder.CoverArtPath(path))
}

func TestRunWithoutReleaseUsesPlaceholders(t *testing.T) {
	drive := disctest.NewMockDrive(10, 10, 10)
	musicDir := t.TempDir()

	o := New(Config{
		Drive:    drive,
		Releases: releaseFunc(func(_ context.Context, info *disc.Info) *disc.Info { return info }),
		Covers:   coverFunc(func(context.Context, coverart.Query) []byte { return nil }),
	})

	summary, err := o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: musicDir})
	require.NoError(t, err)

	albumDir := filepath.Join(musicDir, "Artists", disc.UnknownArtist, disc.UnknownAlbum)
	for _, name := range []string{"01 Track 01.flac", "02 Track 02.flac", "03 Track 03.flac"} {
		assert.FileExists(t, filepath.Join(albumDir, name))
	}
	assert.Equal(t, 3, summary.Imported)
	assert.Empty(t, summary.ReleaseID)

	tags, err := metadata.Read(filepath.Join(albumDir, "02 Track 02.flac"))
	require.NoError(t, err)
	assert.Equal(t, disc.UnknownArtist, tags.Artist)
	assert.Empty(t, tags.ReleaseID)
}

func TestRunTrackTimeout(t *testing.T) {
	drive := disctest.NewMockDrive(5, 40, 5)
	drive.SectorDelay = map[int]time.Duration{2: 50 * time.Millisecond}
	musicDir := t.TempDir()

	o := New(Config{
		Drive:    drive,
		Releases: titled("Test Artist", "Test Album", "One", "Two", "Three"),
		Options:  Options{TrackTimeout: 300 * time.Millisecond},
	})

	rec := &progress.Recorder{}
	summary, err := o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: musicDir, Progress: rec})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Imported)
	assert.Equal(t, store.StatusPartial, summary.Status())
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, TrackFailure{Number: 2, Title: "Two", Reason: "timeout"}, summary.Failures[0])

	var trackErrors []progress.TrackError
	for _, m := range rec.Messages() {
		if te, ok := m.(progress.TrackError); ok {
			trackErrors = append(trackErrors, te)
		}
	}
	assert.Equal(t, []progress.TrackError{{Number: 2, Title: "Two", Reason: "timeout"}}, trackErrors)

	assert.FileExists(t, filepath.Join(summary.OutputDir, "01 One.flac"))
	assert.NoFileExists(t, filepath.Join(summary.OutputDir, "02 Two.flac"))
	assert.FileExists(t, filepath.Join(summary.OutputDir, "03 Three.flac"))

	// the timed out read finishes before the next track starts
	assert.Equal(t, 1, drive.MaxConcurrentReads())
}

func TestRunTrackWithoutData(t *testing.T) {
	drive := disctest.NewMockDrive(10, 10)
	drive.FailAt = map[int]int32{1: 0}
	musicDir := t.TempDir()

	o := New(Config{Drive: drive})

	summary, err := o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: musicDir})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Imported)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, 1, summary.Failures[0].Number)
	assert.Equal(t, "failed to read any audio data from track 1", summary.Failures[0].Reason)
}

func TestRunIdentifyFailure(t *testing.T) {
	drive := disctest.NewMockDrive(10)
	drive.OpenErr = errors.New("no medium found")
	musicDir := t.TempDir()

	rec := &progress.Recorder{}
	o := New(Config{Drive: drive})
	summary, err := o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: musicDir, Progress: rec})

	require.Error(t, err)
	assert.Nil(t, summary)
	assert.True(t, apperrors.IsDeviceError(err))
	assert.NoDirExists(t, filepath.Join(musicDir, "Artists"))
	assert.Empty(t, rec.Messages())
}

func TestRunNoAudioTracks(t *testing.T) {
	drive := disctest.NewMockDrive(10)
	drive.TOC[0].IsAudio = false
	musicDir := t.TempDir()

	o := New(Config{Drive: drive})
	_, err := o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: musicDir})

	assert.ErrorIs(t, err, disc.ErrNoAudioTracks)
	assert.NoDirExists(t, filepath.Join(musicDir, "Artists"))
}

func TestRunValidation(t *testing.T) {
	o := New(Config{Drive: disctest.NewMockDrive(10)})

	tests := []struct {
		name string
		req  Request
	}{
		{"no device", Request{MusicDir: t.TempDir()}},
		{"no music dir", Request{Device: "/dev/sr0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Run(context.Background(), tt.req)
			assert.Equal(t, apperrors.ErrTypeValidation, apperrors.GetErrorType(err))
		})
	}
}

// cancelAfter cancels the orchestrator once the given track completes.
type cancelAfter struct {
	progress.Recorder
	o     *Orchestrator
	track int
}

func (c *cancelAfter) Send(m progress.Message) {
	c.Recorder.Send(m)
	if tc, ok := m.(progress.TrackCompleted); ok && tc.Number == c.track {
		c.o.Cancel()
	}
}

func TestRunCancel(t *testing.T) {
	drive := disctest.NewMockDrive(10, 10, 10)
	musicDir := t.TempDir()

	o := New(Config{Drive: drive})
	sink := &cancelAfter{o: o, track: 1}

	summary, err := o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: musicDir, Progress: sink})
	require.NoError(t, err)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, store.StatusCancelled, summary.Status())
	assert.NoFileExists(t, filepath.Join(summary.OutputDir, "02 Track 02.flac"))

	msgs := sink.Messages()
	assert.Equal(t, "import_finished", msgs[len(msgs)-1].Kind())
}

func TestRunCancelBeforeStart(t *testing.T) {
	drive := disctest.NewMockDrive(10, 10)
	musicDir := t.TempDir()

	o := New(Config{Drive: drive})
	o.Cancel()

	summary, err := o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: musicDir})
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Zero(t, summary.Imported)
	assert.Equal(t, store.StatusCancelled, summary.Status())

	// the request does not carry over to the next run
	summary, err = o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: musicDir})
	require.NoError(t, err)
	assert.False(t, summary.Cancelled)
	assert.Equal(t, 2, summary.Imported)
}

func TestRunDeviceLocked(t *testing.T) {
	lockDir := t.TempDir()
	held, err := AcquireDeviceLock(lockDir, "/dev/sr0")
	require.NoError(t, err)
	defer held.Release()

	drive := disctest.NewMockDrive(10)
	o := New(Config{Drive: drive, Options: Options{LockDir: lockDir}})

	_, err = o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, apperrors.IsDeviceError(err))
	assert.False(t, apperrors.IsRetryable(err))
	assert.Zero(t, drive.Opens())
}

func TestRunReleasesDeviceLock(t *testing.T) {
	lockDir := t.TempDir()
	o := New(Config{Drive: disctest.NewMockDrive(10), Options: Options{LockDir: lockDir}})

	_, err := o.Run(context.Background(), Request{Device: "/dev/sr0", MusicDir: t.TempDir()})
	require.NoError(t, err)

	lock, err := AcquireDeviceLock(lockDir, "/dev/sr0")
	require.NoError(t, err)
	assert.NoError(t, lock.Release())
}

func TestLockPath(t *testing.T) {
	assert.Equal(t, filepath.Join("locks", "mfutil-dev_sr0.lock"), LockPath("locks", "/dev/sr0"))
	assert.Equal(t, filepath.Join("locks", "mfutil-device.lock"), LockPath("locks", "/"))
}

func TestSummaryStatus(t *testing.T) {
	tests := []struct {
		name    string
		summary Summary
		want    string
	}{
		{"all imported", Summary{Total: 3, Imported: 3}, store.StatusCompleted},
		{"some imported", Summary{Total: 3, Imported: 1}, store.StatusPartial},
		{"none imported", Summary{Total: 3}, store.StatusFailed},
		{"cancelled", Summary{Total: 3, Imported: 3, Cancelled: true}, store.StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.summary.Status())
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "read_toc", StateReadTOC.String())
	assert.Equal(t, "tag", StateTag.String())
	assert.Equal(t, "unknown", State(99).String())
}
