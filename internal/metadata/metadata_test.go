package metadata

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	"github.com/mfutil/mfutil-go/internal/disc/disctest"
	"github.com/mfutil/mfutil-go/internal/encoder"
)

func newFLAC(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "01 Track 01.flac")
	pcm := append(disctest.SectorPCM(0, false), disctest.SectorPCM(1, false)...)
	if err := encoder.New(0, nil).Encode(pcm, path); err != nil {
		t.Fatalf("Failed to create FLAC file: %v", err)
	}
	return path
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}
	return buf.Bytes()
}

func TestWriteAndRead(t *testing.T) {
	path := newFLAC(t)
	want := &TrackTags{
		Title:       "So What",
		Artist:      "Miles Davis",
		Album:       "Kind of Blue",
		AlbumArtist: "Miles Davis",
		TrackNumber: 1,
		TrackTotal:  5,
		ReleaseID:   "a1b2c3",
		DiscID:      "Wn8eRBtfLDfM0qjYPdxrz.Zjs_U-",
	}

	if err := NewTagWriter("mfutil").Write(path, want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Read() = %+v, want %+v", got, want)
	}
}

func TestWriteReplacesExistingFields(t *testing.T) {
	path := newFLAC(t)
	w := NewTagWriter("mfutil")

	if err := w.Write(path, &TrackTags{Title: "Track 01", TrackNumber: 1}); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if err := w.Write(path, &TrackTags{Title: "Blue in Green", TrackNumber: 3}); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	f, err := flac.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	blocks := 0
	for _, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		blocks++
		cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			t.Fatalf("ParseFromMetaDataBlock failed: %v", err)
		}
		titles, _ := cmt.Get(FieldTitle)
		if len(titles) != 1 || titles[0] != "Blue in Green" {
			t.Errorf("TITLE = %v, want [Blue in Green]", titles)
		}
		numbers, _ := cmt.Get(FieldTrackNumber)
		if len(numbers) != 1 || numbers[0] != "3" {
			t.Errorf("TRACKNUMBER = %v, want [3]", numbers)
		}
	}
	if blocks != 1 {
		t.Errorf("expected 1 Vorbis comment block, got %d", blocks)
	}
}

func TestWriteKeepsUnmanagedFields(t *testing.T) {
	path := newFLAC(t)

	f, err := flac.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	cmt := flacvorbis.New()
	if err := cmt.Add("GENRE", "Jazz"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	block := cmt.Marshal()
	f.Meta = append(f.Meta, &block)
	if err := f.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := NewTagWriter("mfutil").Write(path, &TrackTags{Title: "Freddie Freeloader"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	f, err = flac.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	for _, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		cmt, _ := flacvorbis.ParseFromMetaDataBlock(*block)
		genres, _ := cmt.Get("GENRE")
		if len(genres) != 1 || genres[0] != "Jazz" {
			t.Errorf("GENRE = %v, want [Jazz]", genres)
		}
	}
}

func TestWriteEmbedsPicture(t *testing.T) {
	path := newFLAC(t)
	img := testJPEG(t)
	w := NewTagWriter("mfutil")

	for i := 0; i < 2; i++ {
		if err := w.Write(path, &TrackTags{Title: "Track 01", Picture: img}); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	f, err := flac.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	pictures := 0
	for _, block := range f.Meta {
		if block.Type == flac.Picture {
			pictures++
		}
	}
	if pictures != 1 {
		t.Errorf("expected 1 picture block, got %d", pictures)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got.Picture, img) {
		t.Error("embedded picture does not match")
	}
	if got.PictureMIME != "image/jpeg" {
		t.Errorf("PictureMIME = %q, want image/jpeg", got.PictureMIME)
	}
}

func TestWriteErrors(t *testing.T) {
	w := NewTagWriter("mfutil")

	tests := []struct {
		name string
		path string
		tags *TrackTags
	}{
		{"nil tags", newFLAC(t), nil},
		{"missing file", filepath.Join(t.TempDir(), "missing.flac"), &TrackTags{Title: "x"}},
		{"invalid picture", newFLAC(t), &TrackTags{Title: "x", Picture: []byte("not an image")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.Write(tt.path, tt.tags); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
