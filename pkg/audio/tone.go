package audio

import (
	"math"
	"time"
)

// RingtoneFormat is the format produced by [Ringtone].
var RingtoneFormat = Format{SampleRate: 24000, Channels: 1}

// Ringtone synthesizes one cycle of a classic dual-tone ring: 440 Hz and
// 480 Hz mixed for two seconds followed by four seconds of silence.
// Intended for playback with [PlayOptions.Loop].
func Ringtone() Clip {
	return Clip{
		PCM:    dualTone(RingtoneFormat.SampleRate, 440, 480, 2*time.Second, 4*time.Second, 0.4),
		Format: RingtoneFormat,
	}
}

func dualTone(sampleRate int, f1, f2 float64, on, off time.Duration, volume float64) []byte {
	onSamples := int(float64(sampleRate) * on.Seconds())
	offSamples := int(float64(sampleRate) * off.Seconds())
	buf := make([]byte, (onSamples+offSamples)*2)

	// 10ms fade on each edge to avoid clicks.
	fade := sampleRate / 100
	for i := 0; i < onSamples; i++ {
		t := float64(i) / float64(sampleRate)
		env := 1.0
		if i < fade {
			env = float64(i) / float64(fade)
		} else if onSamples-i < fade {
			env = float64(onSamples-i) / float64(fade)
		}
		v := (math.Sin(2*math.Pi*f1*t) + math.Sin(2*math.Pi*f2*t)) / 2
		sample := int16(v * 32767 * volume * env)
		buf[i*2] = byte(sample)
		buf[i*2+1] = byte(sample >> 8)
	}
	return buf
}
