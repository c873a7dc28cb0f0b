package coverart

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
)

// Cache stores fetched cover art on disk
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(key string) string {
	hash := md5.Sum([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(hash[:])+".jpg")
}

// Get returns the cached image for key
func (c *Cache) Get(key string) ([]byte, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// Put stores data under key. The write goes through a temporary file and a
// rename so readers never see a partial image.
func (c *Cache) Put(key string, data []byte) error {
	path := c.path(key)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Size returns the total size of cached images in bytes
func (c *Cache) Size() (int64, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// Shrink scales an image down so neither side exceeds maxSize, keeping the
// aspect ratio. Smaller images are returned unchanged.
func Shrink(data []byte, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		return data, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxSize && height <= maxSize {
		return data, nil
	}

	var resized image.Image
	if width > height {
		resized = resize.Resize(uint(maxSize), 0, img, resize.Lanczos3)
	} else {
		resized = resize.Resize(0, uint(maxSize), img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, resized)
	default:
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}
