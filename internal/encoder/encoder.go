// Package encoder turns raw CD audio into FLAC files.
package encoder

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
	"go.uber.org/zap"

	"github.com/mfutil/mfutil-go/internal/disc"
	apperrors "github.com/mfutil/mfutil-go/internal/errors"
	"github.com/mfutil/mfutil-go/internal/monitoring"
)

// DefaultBlockSize is the number of inter-channel samples per FLAC frame.
const DefaultBlockSize = 4096

const bytesPerFrame = disc.Channels * disc.BitsPerSample / 8

// Encoder writes 16-bit stereo 44.1 kHz PCM as FLAC.
type Encoder struct {
	blockSize int
	logger    *zap.Logger
}

// New creates an Encoder. A non-positive blockSize selects DefaultBlockSize.
func New(blockSize int, logger *zap.Logger) *Encoder {
	if blockSize <= 0 || blockSize > 65535 {
		blockSize = DefaultBlockSize
	}
	return &Encoder{
		blockSize: blockSize,
		logger:    monitoring.OrNop(logger),
	}
}

// Encode writes pcm (interleaved little-endian left/right samples) to dest.
// The file is written under dest+".part" and renamed once complete, so dest
// never holds a truncated stream.
func (e *Encoder) Encode(pcm []byte, dest string) error {
	if len(pcm) == 0 {
		return apperrors.NewEncodeError("no audio data to encode", nil)
	}
	if len(pcm)%bytesPerFrame != 0 {
		e.logger.Warn("trailing bytes dropped from PCM",
			zap.String("dest", dest),
			zap.Int("bytes", len(pcm)%bytesPerFrame),
		)
		pcm = pcm[:len(pcm)-len(pcm)%bytesPerFrame]
		if len(pcm) == 0 {
			return apperrors.NewEncodeError("no complete sample frames to encode", nil)
		}
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return apperrors.NewFileSystemError(fmt.Sprintf("failed to create %s", tmp), err)
	}

	if err := e.write(f, pcm); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return apperrors.NewFileSystemError(fmt.Sprintf("failed to move %s into place", dest), err)
	}
	return nil
}

// write encodes into f. The flac encoder closes f and patches the stream
// info block on success.
func (e *Encoder) write(f *os.File, pcm []byte) error {
	nsamples := len(pcm) / bytesPerFrame

	info := &meta.StreamInfo{
		BlockSizeMin:  uint16(e.blockSize),
		BlockSizeMax:  uint16(e.blockSize),
		SampleRate:    disc.SampleRate,
		NChannels:     disc.Channels,
		BitsPerSample: disc.BitsPerSample,
		NSamples:      uint64(nsamples),
	}
	if nsamples < e.blockSize {
		info.BlockSizeMin = uint16(nsamples)
		info.BlockSizeMax = uint16(nsamples)
	}

	enc, err := flac.NewEncoder(f, info)
	if err != nil {
		return apperrors.NewEncodeError("failed to start FLAC stream", err)
	}

	left := make([]int32, e.blockSize)
	right := make([]int32, e.blockSize)
	for start := 0; start < nsamples; start += e.blockSize {
		n := e.blockSize
		if start+n > nsamples {
			n = nsamples - start
		}
		deinterleave(pcm[start*bytesPerFrame:(start+n)*bytesPerFrame], left[:n], right[:n])

		fr := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(n),
				SampleRate:        disc.SampleRate,
				Channels:          frame.ChannelsLR,
				BitsPerSample:     disc.BitsPerSample,
			},
			Subframes: []*frame.Subframe{
				subframe(left[:n]),
				subframe(right[:n]),
			},
		}
		if err := enc.WriteFrame(fr); err != nil {
			enc.Close()
			return apperrors.NewEncodeError(fmt.Sprintf("failed to write frame at sample %d", start), err)
		}
	}

	if err := enc.Close(); err != nil {
		return apperrors.NewEncodeError("failed to finish FLAC stream", err)
	}
	return nil
}

func deinterleave(pcm []byte, left, right []int32) {
	for i := range left {
		off := i * bytesPerFrame
		left[i] = int32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		right[i] = int32(int16(binary.LittleEndian.Uint16(pcm[off+2:])))
	}
}

const (
	maxFixedOrder     = 4
	maxPartitionOrder = 6
	maxRice1Param     = 14 // 15 escapes with 4-bit parameters
	maxRice2Param     = 30 // 31 escapes with 5-bit parameters
)

// subframe picks the smallest encoding of one channel of a block: the
// constant predictor for digital silence, otherwise the fixed predictor
// order and Rice partitioning with the fewest estimated bits. Verbatim is
// kept when no prediction beats it.
func subframe(samples []int32) *frame.Subframe {
	s := make([]int32, len(samples))
	copy(s, samples)
	sf := &frame.Subframe{Samples: s, NSamples: len(s)}

	if isConstant(s) {
		sf.Pred = frame.PredConstant
		return sf
	}

	sf.Pred = frame.PredVerbatim
	best := uint64(len(s)) * disc.BitsPerSample
	residuals := make([]int32, len(s))
	for order := 0; order <= maxFixedOrder && order < len(s); order++ {
		fixedResiduals(s, order, residuals)
		rice, method, bits := partitionResiduals(residuals[order:], len(s), order)
		// warm-up samples, coding method and partition order
		bits += uint64(order)*disc.BitsPerSample + 2 + 4
		if bits < best {
			best = bits
			sf.SubHeader = frame.SubHeader{
				Pred:                 frame.PredFixed,
				Order:                order,
				ResidualCodingMethod: method,
				RiceSubframe:         rice,
			}
		}
	}
	return sf
}

func isConstant(s []int32) bool {
	for _, v := range s[1:] {
		if v != s[0] {
			return false
		}
	}
	return true
}

// fixedResiduals stores the prediction error of the fixed predictor of the
// given order in out[order:].
func fixedResiduals(s []int32, order int, out []int32) {
	coeffs := frame.FixedCoeffs[order]
	for i := order; i < len(s); i++ {
		var pred int64
		for j, c := range coeffs {
			pred += int64(c) * int64(s[i-j-1])
		}
		out[i] = s[i] - int32(pred)
	}
}

// partitionResiduals chooses the Rice partition order and per-partition
// parameters for residuals, which start at sample index order of a block of
// n samples. The returned size is an upper bound on the encoded bits.
func partitionResiduals(residuals []int32, n, order int) (*frame.RiceSubframe, frame.ResidualCodingMethod, uint64) {
	maxOrder := 0
	for p := 1; p <= maxPartitionOrder; p++ {
		if n%(1<<p) != 0 || n>>p <= order {
			break
		}
		maxOrder = p
	}

	// folded residual sums and counts per partition at maxOrder
	size := n >> maxOrder
	sums := make([]uint64, 1<<maxOrder)
	counts := make([]uint64, 1<<maxOrder)
	for i, r := range residuals {
		part := (i + order) / size
		sums[part] += uint64(uint32(r<<1) ^ uint32(r>>31))
		counts[part]++
	}

	var (
		best       *frame.RiceSubframe
		bestMethod frame.ResidualCodingMethod
		bestBits   uint64
	)
	for p := maxOrder; p >= 0; p-- {
		parts := make([]frame.RicePartition, 1<<p)
		var bits uint64
		method := frame.ResidualCodingMethodRice1
		for i := range parts {
			k, b := riceParam(sums[i], counts[i])
			parts[i].Param = k
			bits += b
			if k > maxRice1Param {
				method = frame.ResidualCodingMethodRice2
			}
		}
		if method == frame.ResidualCodingMethodRice2 {
			bits += uint64(len(parts)) * 5
		} else {
			bits += uint64(len(parts)) * 4
		}

		if best == nil || bits < bestBits {
			best = &frame.RiceSubframe{PartOrder: p, Partitions: parts}
			bestMethod, bestBits = method, bits
		}

		// merge neighbours for the next, coarser order
		for i := 0; i < len(parts)/2; i++ {
			sums[i] = sums[2*i] + sums[2*i+1]
			counts[i] = counts[2*i] + counts[2*i+1]
		}
	}
	return best, bestMethod, bestBits
}

// riceParam returns the Rice parameter with the smallest size bound for a
// partition of count residuals whose folded values add up to sum. Each
// residual costs a stop bit, k low bits and its value shifted by k in unary.
func riceParam(sum, count uint64) (uint, uint64) {
	bestK, bestBits := uint(0), count+sum
	for k := uint(1); k <= maxRice2Param; k++ {
		bits := count*uint64(k+1) + sum>>k
		if bits < bestBits {
			bestK, bestBits = k, bits
		}
	}
	return bestK, bestBits
}

// CoverArtPath is the sibling image path for an audio file.
func CoverArtPath(dest string) string {
	return strings.TrimSuffix(dest, filepath.Ext(dest)) + ".jpg"
}

// WriteCoverArt stores img next to the audio file at dest.
func WriteCoverArt(dest string, img []byte) error {
	if len(img) == 0 {
		return nil
	}
	path := CoverArtPath(dest)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return apperrors.NewFileSystemError(fmt.Sprintf("failed to write cover art %s", path), err)
	}
	return nil
}
