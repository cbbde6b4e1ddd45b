// Package desktop implements the [audio] recorder and player on real desktop
// hardware through miniaudio (github.com/gen2brain/malgo). Building it
// requires cgo.
//
// Desktops have no haptics, no OS-level microphone prompt and no audio
// session routing, so [New] pairs the malgo devices with the headless router
// and vibrator.
package desktop

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/awkwardescape/pkg/audio"
	"github.com/MrWong99/awkwardescape/pkg/audio/headless"
)

// CaptureFormat is used for microphone metering.
var CaptureFormat = audio.Format{SampleRate: 16000, Channels: 1}

// OutputFormat is the format every clip is converted to before playback.
var OutputFormat = audio.Format{SampleRate: 48000, Channels: 2}

// Context owns the miniaudio context shared by recorder and player.
type Context struct {
	ctx *malgo.AllocatedContext

	// device is the hex-encoded capture device id; empty selects the default.
	device string
}

// Option configures a [Context].
type Option func(*Context)

// WithCaptureDevice selects a capture device by its hex-encoded id as
// reported by [Context.CaptureDevices].
func WithCaptureDevice(id string) Option {
	return func(c *Context) { c.device = id }
}

// Open initialises miniaudio.
func Open(opts ...Option) (*Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("desktop: init context: %w", err)
	}
	c := &Context{ctx: ctx}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// New returns a [audio.Devices] bundle using c for recording and playback.
func New(c *Context) audio.Devices {
	return audio.Devices{
		Recorder: &Recorder{c: c},
		Player:   &Player{c: c},
		Router:   headless.Router{},
		Vibrator: &headless.Vibrator{},
	}
}

// Device describes a capture device.
type Device struct {
	ID   string
	Name string
}

// CaptureDevices lists the available microphones.
func (c *Context) CaptureDevices() ([]Device, error) {
	devices, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("desktop: list devices: %w", err)
	}
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, Device{ID: hex.EncodeToString(d.ID.Pointer()[:]), Name: d.Name()})
	}
	return out, nil
}

// Close releases the miniaudio context.
func (c *Context) Close() {
	c.ctx.Uninit()
	c.ctx.Free()
}

// ─── Recorder ────────────────────────────────────────────────────────────────

// Recorder meters the microphone.
type Recorder struct {
	c *Context
}

var _ audio.Recorder = (*Recorder)(nil)

// RequestPermission implements [audio.Recorder]. Desktops grant access when
// at least one capture device is present.
func (r *Recorder) RequestPermission(context.Context) (bool, error) {
	devices, err := r.c.CaptureDevices()
	if err != nil {
		return false, err
	}
	return len(devices) > 0, nil
}

// StartMetering implements [audio.Recorder].
func (r *Recorder) StartMetering(context.Context) (audio.Recording, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(CaptureFormat.Channels)
	cfg.SampleRate = uint32(CaptureFormat.SampleRate)

	if r.c.device != "" {
		idBytes, err := hex.DecodeString(r.c.device)
		if err != nil {
			return nil, fmt.Errorf("desktop: invalid device id: %w", err)
		}
		var id malgo.DeviceID
		copy(id[:], idBytes)
		cfg.Capture.DeviceID = id.Pointer()
	}

	rec := &recording{}
	rec.level.Store(math.Float64bits(audio.FloorDB))
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, _ uint32) {
			rec.level.Store(math.Float64bits(audio.LevelDB(data)))
		},
	}
	dev, err := malgo.InitDevice(r.c.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("desktop: init capture: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("desktop: start capture: %w", err)
	}
	rec.dev = dev
	return rec, nil
}

type recording struct {
	dev   *malgo.Device
	level atomic.Uint64
	once  sync.Once
}

func (r *recording) Level() float64 { return math.Float64frombits(r.level.Load()) }

func (r *recording) Stop() error {
	r.once.Do(func() {
		r.dev.Stop()
		r.dev.Uninit()
		r.level.Store(math.Float64bits(audio.FloorDB))
	})
	return nil
}

// ─── Player ──────────────────────────────────────────────────────────────────

// Player plays clips on the default output device. Each clip gets its own
// miniaudio device so the ringtone and a caller line never share state.
type Player struct {
	c *Context
}

var _ audio.Player = (*Player)(nil)

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, clip audio.Clip, opts audio.PlayOptions) (audio.Playback, error) {
	if len(clip.PCM) < 2 {
		pb := &playback{done: make(chan struct{}), finished: make(chan struct{})}
		close(pb.done)
		return pb, nil
	}
	if clip.Format.Channels <= 0 {
		clip.Format.Channels = 1
	}
	clip = audio.Convert(clip, OutputFormat)

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(OutputFormat.Channels)
	cfg.SampleRate = uint32(OutputFormat.SampleRate)

	pcm := applyGain(clip.PCM, opts.Volume)
	pb := &playback{
		pcm:      pcm,
		loop:     opts.Loop,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	callbacks := malgo.DeviceCallbacks{Data: pb.fill}
	dev, err := malgo.InitDevice(p.c.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("desktop: init playback: %w", err)
	}
	pb.dev = dev
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("desktop: start playback: %w", err)
	}
	go func() {
		<-pb.finished
		_ = pb.Stop()
	}()
	return pb, nil
}

type playback struct {
	dev  *malgo.Device
	pcm  []byte
	loop bool
	pos  int

	done       chan struct{}
	finished   chan struct{}
	finishOnce sync.Once
	stopOnce   sync.Once
}

// fill runs on the miniaudio thread. It must not call back into the device.
func (p *playback) fill(out, _ []byte, _ uint32) {
	n := 0
	for n < len(out) {
		if p.pos >= len(p.pcm) {
			if !p.loop {
				break
			}
			p.pos = 0
		}
		c := copy(out[n:], p.pcm[p.pos:])
		n += c
		p.pos += c
	}
	clear(out[n:])
	if n < len(out) {
		p.finishOnce.Do(func() { close(p.finished) })
	}
}

func (p *playback) Done() <-chan struct{} { return p.done }

func (p *playback) Stop() error {
	p.stopOnce.Do(func() {
		if p.dev != nil {
			p.dev.Stop()
			p.dev.Uninit()
		}
		close(p.done)
		slog.Debug("desktop: playback stopped", "loop", p.loop)
	})
	return nil
}

func applyGain(pcm []byte, volume float64) []byte {
	if volume <= 0 || volume >= 1 {
		return pcm
	}
	out := make([]byte, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(pcm[i]) | int16(pcm[i+1])<<8
		v := int16(float64(s) * volume)
		out[i] = byte(v)
		out[i+1] = byte(v >> 8)
	}
	return out
}
