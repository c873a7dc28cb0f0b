// Package metadata reads and writes Vorbis comment tags on FLAC files.
package metadata

import (
	"fmt"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	apperrors "github.com/mfutil/mfutil-go/internal/errors"
)

// Vorbis comment field names written by TagWriter.
const (
	FieldTitle       = "TITLE"
	FieldArtist      = "ARTIST"
	FieldAlbum       = "ALBUM"
	FieldAlbumArtist = "ALBUMARTIST"
	FieldTrackNumber = "TRACKNUMBER"
	FieldTrackTotal  = "TRACKTOTAL"
	FieldAlbumID     = "MUSICBRAINZ_ALBUMID"
	FieldDiscID      = "MUSICBRAINZ_DISCID"
)

// TrackTags contains the tags for one imported track
type TrackTags struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	TrackNumber int
	TrackTotal  int
	ReleaseID   string
	DiscID      string

	// Picture is embedded as the front cover when set
	Picture     []byte
	PictureMIME string
}

func (t *TrackTags) fields() [][2]string {
	var out [][2]string
	add := func(key, value string) {
		if value != "" {
			out = append(out, [2]string{key, value})
		}
	}
	add(FieldTitle, t.Title)
	add(FieldArtist, t.Artist)
	add(FieldAlbum, t.Album)
	add(FieldAlbumArtist, t.AlbumArtist)
	if t.TrackNumber > 0 {
		add(FieldTrackNumber, strconv.Itoa(t.TrackNumber))
	}
	if t.TrackTotal > 0 {
		add(FieldTrackTotal, strconv.Itoa(t.TrackTotal))
	}
	add(FieldAlbumID, t.ReleaseID)
	add(FieldDiscID, t.DiscID)
	return out
}

// TagWriter writes tags into FLAC files in place
type TagWriter struct {
	vendor string
}

// NewTagWriter creates a TagWriter. vendor is recorded in new comment blocks.
func NewTagWriter(vendor string) *TagWriter {
	return &TagWriter{vendor: vendor}
}

// Write replaces the managed fields in the file's Vorbis comment block,
// creating the block if needed. Fields the writer does not manage are kept.
func (w *TagWriter) Write(path string, tags *TrackTags) error {
	if tags == nil {
		return apperrors.NewValidationError("tags cannot be nil")
	}

	f, err := flac.ParseFile(path)
	if err != nil {
		return apperrors.NewFileSystemError(fmt.Sprintf("failed to parse FLAC file %s", path), err)
	}

	idx := -1
	for i, block := range f.Meta {
		if block.Type == flac.VorbisComment {
			idx = i
			break
		}
	}

	var cmt *flacvorbis.MetaDataBlockVorbisComment
	if idx >= 0 {
		cmt, err = flacvorbis.ParseFromMetaDataBlock(*f.Meta[idx])
		if err != nil {
			cmt = nil
		}
	}
	if cmt == nil {
		cmt = flacvorbis.New()
		if w.vendor != "" {
			cmt.Vendor = w.vendor
		}
	}

	fields := tags.fields()
	managed := make(map[string]bool, len(fields))
	for _, kv := range fields {
		managed[kv[0]] = true
	}
	kept := cmt.Comments[:0]
	for _, c := range cmt.Comments {
		key, _, _ := strings.Cut(c, "=")
		if !managed[strings.ToUpper(key)] {
			kept = append(kept, c)
		}
	}
	cmt.Comments = kept

	for _, kv := range fields {
		if err := cmt.Add(kv[0], kv[1]); err != nil {
			return apperrors.NewValidationError(fmt.Sprintf("invalid tag %s: %v", kv[0], err))
		}
	}

	block := cmt.Marshal()
	if idx >= 0 {
		f.Meta[idx] = &block
	} else {
		f.Meta = append(f.Meta, &block)
	}

	if len(tags.Picture) > 0 {
		if err := embedPicture(f, tags.Picture, tags.PictureMIME); err != nil {
			return err
		}
	}

	if err := f.Save(path); err != nil {
		return apperrors.NewFileSystemError(fmt.Sprintf("failed to save FLAC file %s", path), err)
	}
	return nil
}

// embedPicture replaces any front cover picture block.
func embedPicture(f *flac.File, img []byte, mime string) error {
	if mime == "" {
		mime = "image/jpeg"
	}
	pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Front Cover", img, mime)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("invalid cover art image: %v", err))
	}

	meta := f.Meta[:0]
	for _, block := range f.Meta {
		if block.Type == flac.Picture {
			existing, err := flacpicture.ParseFromMetaDataBlock(*block)
			if err == nil && existing.PictureType == flacpicture.PictureTypeFrontCover {
				continue
			}
		}
		meta = append(meta, block)
	}
	block := pic.Marshal()
	f.Meta = append(meta, &block)
	return nil
}

// Read returns the managed tags and embedded front cover of a FLAC file.
func Read(path string) (*TrackTags, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil, apperrors.NewFileSystemError(fmt.Sprintf("failed to parse FLAC file %s", path), err)
	}

	tags := &TrackTags{}
	for _, block := range f.Meta {
		switch block.Type {
		case flac.VorbisComment:
			cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				continue
			}
			get := func(key string) string {
				if vals, err := cmt.Get(key); err == nil && len(vals) > 0 {
					return vals[0]
				}
				return ""
			}
			tags.Title = get(FieldTitle)
			tags.Artist = get(FieldArtist)
			tags.Album = get(FieldAlbum)
			tags.AlbumArtist = get(FieldAlbumArtist)
			tags.TrackNumber, _ = strconv.Atoi(get(FieldTrackNumber))
			tags.TrackTotal, _ = strconv.Atoi(get(FieldTrackTotal))
			tags.ReleaseID = get(FieldAlbumID)
			tags.DiscID = get(FieldDiscID)
		case flac.Picture:
			pic, err := flacpicture.ParseFromMetaDataBlock(*block)
			if err == nil && pic.PictureType == flacpicture.PictureTypeFrontCover {
				tags.Picture = pic.ImageData
				tags.PictureMIME = pic.MIME
			}
		}
	}
	return tags, nil
}
