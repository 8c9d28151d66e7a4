package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/pattinsonfuture/Podssistant/internal/domain"
	"github.com/pattinsonfuture/Podssistant/internal/ports"
)

// ErrNoInputDevice is returned when no matching capture device exists.
var ErrNoInputDevice = errors.New("no matching audio input device")

const defaultFramesPerBuffer = 1024

// DeviceConfig selects and shapes a portaudio input stream.
type DeviceConfig struct {
	// Query is a case-insensitive substring matched against device names.
	// Empty selects the default input device (or a loopback device when
	// PreferLoopback is set and one exists).
	Query string
	// PreferLoopback picks a monitor/stereo-mix style device over the
	// default input when no Query is given.
	PreferLoopback bool
	// Channels forces a channel count; 0 uses the device's input channels
	// capped at stereo.
	Channels        int
	FramesPerBuffer int
}

// Device is a portaudio-backed capture device producing 16-bit little-endian
// PCM. The buffer returned by ReadFrame is reused across calls.
type Device struct {
	cfg DeviceConfig

	mu     sync.Mutex
	stream *portaudio.Stream
	opened bool
	buf    []int16
	out    []byte
	format domain.AudioFormat
}

func NewDevice(cfg DeviceConfig) *Device {
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = defaultFramesPerBuffer
	}
	return &Device{cfg: cfg}
}

func (d *Device) Open() (domain.AudioFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return d.format, nil
	}

	if err := portaudio.Initialize(); err != nil {
		return domain.AudioFormat{}, fmt.Errorf("initialize portaudio: %w", err)
	}

	info, err := selectDevice(d.cfg)
	if err != nil {
		_ = portaudio.Terminate()
		return domain.AudioFormat{}, err
	}

	channels := d.cfg.Channels
	if channels <= 0 {
		channels = info.MaxInputChannels
		if channels > 2 {
			channels = 2
		}
	}
	if channels <= 0 {
		channels = 1
	}
	sampleRate := int(info.DefaultSampleRate)

	params := portaudio.HighLatencyParameters(info, nil)
	params.Input.Channels = channels
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = d.cfg.FramesPerBuffer

	d.buf = make([]int16, d.cfg.FramesPerBuffer*channels)
	d.out = make([]byte, len(d.buf)*2)

	stream, err := portaudio.OpenStream(params, d.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return domain.AudioFormat{}, fmt.Errorf("open stream on %q: %w", info.Name, err)
	}

	d.stream = stream
	d.opened = true
	d.format = domain.AudioFormat{
		SampleRate:    sampleRate,
		BitsPerSample: 16,
		Channels:      channels,
	}
	return d.format, nil
}

func (d *Device) Start() error {
	d.mu.Lock()
	stream := d.stream
	d.mu.Unlock()
	if stream == nil {
		return errors.New("device not open")
	}
	return stream.Start()
}

func (d *Device) ReadFrame() ([]byte, error) {
	d.mu.Lock()
	stream := d.stream
	d.mu.Unlock()
	if stream == nil {
		return nil, errors.New("device not open")
	}
	if err := stream.Read(); err != nil {
		return nil, err
	}
	for i, sample := range d.buf {
		binary.LittleEndian.PutUint16(d.out[i*2:], uint16(sample))
	}
	return d.out, nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	stream := d.stream
	d.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.Stop()
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return nil
	}
	d.opened = false
	err := d.stream.Close()
	d.stream = nil
	_ = portaudio.Terminate()
	return err
}

func selectDevice(cfg DeviceConfig) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	if query := strings.TrimSpace(cfg.Query); query != "" {
		lower := strings.ToLower(query)
		for _, info := range devices {
			if info.MaxInputChannels > 0 && strings.Contains(strings.ToLower(info.Name), lower) {
				return info, nil
			}
		}
		return nil, fmt.Errorf("%w: %q", ErrNoInputDevice, query)
	}

	if cfg.PreferLoopback {
		for _, info := range devices {
			if info.MaxInputChannels > 0 && isLoopbackName(info.Name) {
				return info, nil
			}
		}
	}

	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoInputDevice, err)
	}
	return info, nil
}

func isLoopbackName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "loopback") ||
		strings.Contains(lower, "monitor") ||
		strings.Contains(lower, "stereo mix")
}

// ListInputDevices enumerates capture devices, loopback-style devices first.
func ListInputDevices() ([]domain.InputDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	var loopback, other []domain.InputDevice
	for i, info := range devices {
		if info.MaxInputChannels <= 0 {
			continue
		}
		dev := domain.InputDevice{
			Index:    i,
			Name:     info.Name,
			Channels: info.MaxInputChannels,
			Loopback: isLoopbackName(info.Name),
		}
		if dev.Loopback {
			loopback = append(loopback, dev)
		} else {
			other = append(other, dev)
		}
	}
	return append(loopback, other...), nil
}

// Factory builds capture engines over fresh portaudio devices. Each New call
// opens its own device so that a failed engine never poisons the next one.
type Factory struct {
	cfg DeviceConfig
	log *slog.Logger
}

func NewFactory(cfg DeviceConfig, log *slog.Logger) *Factory {
	if log == nil {
		log = slog.Default()
	}
	return &Factory{cfg: cfg, log: log}
}

func (f *Factory) New(cb ports.CaptureCallbacks) (ports.CaptureEngine, domain.AudioFormat, error) {
	engine, err := NewEngine(NewDevice(f.cfg), cb, f.log)
	if err != nil {
		return nil, domain.AudioFormat{}, err
	}
	return engine, engine.Format(), nil
}
