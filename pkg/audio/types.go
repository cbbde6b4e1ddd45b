package audio

import "time"

// Format describes the sample rate and channel count of 16-bit PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of little-endian int16 PCM in f.
func (f Format) BytesPerSecond() int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return f.SampleRate * ch * 2
}

// Clip is a self-contained piece of PCM audio such as the ringtone or a
// synthesized caller line.
type Clip struct {
	// PCM is little-endian int16 sample data.
	PCM []byte

	Format Format
}

// Duration returns the playing time of the clip.
func (c Clip) Duration() time.Duration {
	bps := c.Format.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(len(c.PCM)) * int64(time.Second) / int64(bps))
}
