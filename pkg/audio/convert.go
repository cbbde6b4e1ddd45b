package audio

import "encoding/binary"

// Convert re-encodes clip for a device that only accepts target. Multi-channel
// input is averaged down to mono, resampled linearly and then fanned out to
// target.Channels. A clip already in target is returned as is.
func Convert(clip Clip, target Format) Clip {
	if clip.Format == target || target.SampleRate <= 0 || target.Channels <= 0 {
		return clip
	}
	mono := downmix(decode(clip.PCM), clip.Format.Channels)
	mono = resample(mono, clip.Format.SampleRate, target.SampleRate)
	return Clip{PCM: encode(upmix(mono, target.Channels)), Format: target}
}

// decode reads little-endian int16 samples. A trailing odd byte is dropped.
func decode(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func encode(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// downmix averages interleaved frames of n channels into one sample each.
func downmix(samples []int16, n int) []int16 {
	if n <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/n)
	for f := range out {
		var sum int32
		for _, s := range samples[f*n : f*n+n] {
			sum += int32(s)
		}
		out[f] = int16(sum / int32(n))
	}
	return out
}

// upmix copies each mono sample into n interleaved channels.
func upmix(mono []int16, n int) []int16 {
	if n <= 1 {
		return mono
	}
	out := make([]int16, 0, len(mono)*n)
	for _, s := range mono {
		for range n {
			out = append(out, s)
		}
	}
	return out
}

// resample converts mono samples between rates by linear interpolation.
func resample(mono []int16, from, to int) []int16 {
	if from <= 0 || to <= 0 || from == to || len(mono) == 0 {
		return mono
	}
	n := int(int64(len(mono)) * int64(to) / int64(from))
	out := make([]int16, n)
	step := float64(from) / float64(to)
	last := len(mono) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = mono[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(mono[j])*(1-frac) + float64(mono[j+1])*frac)
	}
	return out
}
