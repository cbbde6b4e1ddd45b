package audio

import (
	"encoding/binary"
	"math"
)

// FloorDB is the lowest level reported by metering. Idle and silent inputs
// sit at this value.
const FloorDB = -80.0

// LevelDB returns the RMS level of little-endian int16 PCM in dBFS, clamped
// to [FloorDB, 0].
func LevelDB(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return FloorDB
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	if rms <= 0 {
		return FloorDB
	}
	db := 20 * math.Log10(rms)
	if db < FloorDB {
		return FloorDB
	}
	if db > 0 {
		return 0
	}
	return db
}

// Smooth applies one step of exponential smoothing. alpha is the weight of
// the new reading; values outside (0, 1] return next unchanged.
func Smooth(prev, next, alpha float64) float64 {
	if alpha <= 0 || alpha >= 1 {
		return next
	}
	return prev + alpha*(next-prev)
}
