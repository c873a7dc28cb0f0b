// Package disctest provides an in-memory CD drive for tests.
package disctest

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/mfutil/mfutil-go/internal/disc"
)

// MockDrive serves a fixed table of contents and synthesizes PCM sectors.
// Each sector's samples encode the sector number so tests can check which
// sectors were read.
type MockDrive struct {
	TOC []disc.Track

	// OpenErr is returned by Open, OpenFailures times, or always when
	// OpenFailures is zero.
	OpenErr      error
	OpenFailures int
	TOCErr       error

	// FailAt makes ReadSector return nil from that sector on (per track
	// number). A value equal to the track's first sector yields no data.
	FailAt map[int]int32
	// SectorDelay slows reads of the given track numbers.
	SectorDelay map[int]time.Duration
	// Silent makes every sector all zero samples.
	Silent bool

	mu       sync.Mutex
	opened   bool
	closed   bool
	device   string
	pos      int32
	opens    int
	reads    int
	inFlight int
	maxConc  int
}

// NewMockDrive returns a drive with contiguous audio tracks of the given
// lengths in sectors.
func NewMockDrive(lengths ...int32) *MockDrive {
	var toc []disc.Track
	var start int32
	for i, n := range lengths {
		toc = append(toc, disc.Track{
			Number:      i + 1,
			FirstSector: start,
			LastSector:  start + n - 1,
			IsAudio:     true,
		})
		start += n
	}
	return &MockDrive{TOC: toc}
}

// Open implements disc.Drive.
func (d *MockDrive) Open(device string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.OpenErr != nil && (d.OpenFailures == 0 || d.opens <= d.OpenFailures) {
		return d.OpenErr
	}
	d.opened = true
	d.closed = false
	d.device = device
	return nil
}

// ReadTOC implements disc.Drive.
func (d *MockDrive) ReadTOC() ([]disc.Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return nil, fmt.Errorf("drive not open")
	}
	if d.TOCErr != nil {
		return nil, d.TOCErr
	}
	out := make([]disc.Track, len(d.TOC))
	copy(out, d.TOC)
	return out, nil
}

// Seek implements disc.Drive.
func (d *MockDrive) Seek(sector int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return fmt.Errorf("drive not open")
	}
	d.pos = sector
	return nil
}

// ReadSector implements disc.Drive.
func (d *MockDrive) ReadSector() ([]byte, error) {
	d.mu.Lock()
	if !d.opened {
		d.mu.Unlock()
		return nil, fmt.Errorf("drive not open")
	}
	sector := d.pos
	track := d.trackAt(sector)
	d.inFlight++
	if d.inFlight > d.maxConc {
		d.maxConc = d.inFlight
	}
	delay := d.SectorDelay[track]
	failAt, hasFail := d.FailAt[track]
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight--

	if hasFail && sector >= failAt {
		return nil, nil
	}

	d.pos++
	d.reads++
	return d.sector(sector), nil
}

// Close implements disc.Drive.
func (d *MockDrive) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	d.closed = true
	return nil
}

// Closed reports whether Close was called after the last Open.
func (d *MockDrive) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Opens returns how many times Open was called.
func (d *MockDrive) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// SectorsRead returns the number of sectors served.
func (d *MockDrive) SectorsRead() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// MaxConcurrentReads returns the highest number of overlapping reads seen.
func (d *MockDrive) MaxConcurrentReads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxConc
}

func (d *MockDrive) trackAt(sector int32) int {
	for _, t := range d.TOC {
		if sector >= t.FirstSector && sector <= t.LastSector {
			return t.Number
		}
	}
	return 0
}

// SectorPCM returns the frame MockDrive serves for a sector.
func SectorPCM(sector int32, silent bool) []byte {
	buf := make([]byte, disc.BytesPerSector)
	if silent {
		return buf
	}
	for i := 0; i < disc.BytesPerSector; i += 2 {
		v := int16((int(sector)*31+i)%2000 - 1000)
		binary.LittleEndian.PutUint16(buf[i:], uint16(v))
	}
	return buf
}

func (d *MockDrive) sector(sector int32) []byte {
	return SectorPCM(sector, d.Silent)
}
