// Package adpd1080 drives the ADPD1080 photometric front end of the CN0569
// board through the iiod client and exposes it as a gesture.SampleSource.
package adpd1080

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ALU-panda/production-tests/internal/config"
	"github.com/ALU-panda/production-tests/internal/gesture"
	"github.com/ALU-panda/production-tests/internal/monitoring"
)

const (
	// ChannelMask enables all eight photodiode channels.
	ChannelMask uint32 = 0xff
	// BytesPerSample is the size of one channel reading in a buffer.
	BytesPerSample = 2

	attrSampleRate = "sampling_frequency"
	attrOffset     = "offset"
)

// Client is the subset of the iiod client the device uses.
type Client interface {
	SetTimeout(ctx context.Context, d time.Duration) error
	ReadDeviceAttr(ctx context.Context, dev, attr string) (string, error)
	WriteDeviceAttr(ctx context.Context, dev, attr, value string) error
	ReadChannelAttr(ctx context.Context, dev, ch, attr string) (string, error)
	WriteChannelAttr(ctx context.Context, dev, ch, attr, value string) error
	OpenBuffer(ctx context.Context, dev string, samples int, mask uint32) error
	ReadBuffer(ctx context.Context, dev string, n int) ([]byte, error)
	CloseBuffer(ctx context.Context, dev string) error
	Close() error
}

// Config holds the acquisition settings.
type Config struct {
	Name                string
	BufferSamples       int
	SampleRateHz        int
	CalibrationRateHz   int
	CalibrationCaptures int
}

// DefaultConfig returns the production settings: 8-sample buffers at 512 Hz,
// calibrated from 5 buffers at 10 Hz.
func DefaultConfig() Config {
	return ConfigFrom(config.DefaultTestConfig())
}

// ConfigFrom extracts the device settings from a test config.
func ConfigFrom(c *config.TestConfig) Config {
	return Config{
		Name:                c.GetDeviceName(),
		BufferSamples:       c.GetBufferSamples(),
		SampleRateHz:        c.GetSampleRateHz(),
		CalibrationRateHz:   c.GetCalibrationRateHz(),
		CalibrationCaptures: c.GetCalibrationCaptures(),
	}
}

// ChannelName returns the IIO name of photodiode channel i.
func ChannelName(i int) string {
	return "voltage" + strconv.Itoa(i)
}

var _ gesture.SampleSource = (*Device)(nil)

// Device is an ADPD1080 behind an iiod link. It is safe for concurrent use,
// though calls are serialized.
type Device struct {
	client Client
	cfg    Config

	mu   sync.Mutex
	open bool
	rate int
}

// New returns a Device using client. Zero config fields take the defaults.
func New(client Client, cfg Config) *Device {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.BufferSamples <= 0 {
		cfg.BufferSamples = def.BufferSamples
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = def.SampleRateHz
	}
	if cfg.CalibrationRateHz <= 0 {
		cfg.CalibrationRateHz = def.CalibrationRateHz
	}
	if cfg.CalibrationCaptures <= 0 {
		cfg.CalibrationCaptures = def.CalibrationCaptures
	}
	return &Device{client: client, cfg: cfg}
}

// Config returns the effective settings.
func (d *Device) Config() Config { return d.cfg }

// SampleRate returns the last rate written with SetSampleRate, or 0.
func (d *Device) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// Setup prepares the device for a test run: it disables the iiod timeout,
// calibrates the channel offsets at the calibration rate and then switches to
// the run rate.
func (d *Device) Setup(ctx context.Context) error {
	if err := d.client.SetTimeout(ctx, 0); err != nil {
		return fmt.Errorf("disable iiod timeout: %w", err)
	}
	if err := d.SetSampleRate(ctx, d.cfg.CalibrationRateHz); err != nil {
		return err
	}
	if _, err := d.Calibrate(ctx, d.cfg.CalibrationCaptures); err != nil {
		return err
	}
	return d.SetSampleRate(ctx, d.cfg.SampleRateHz)
}

// SetSampleRate closes any open buffer and writes the sampling frequency. The
// rate the firmware settled on is read back for the log only.
func (d *Device) SetSampleRate(ctx context.Context, hz int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.closeBuffer(ctx); err != nil {
		return err
	}
	if err := d.client.WriteDeviceAttr(ctx, d.cfg.Name, attrSampleRate, strconv.Itoa(hz)); err != nil {
		return fmt.Errorf("set %s sample rate to %d Hz: %w", d.cfg.Name, hz, err)
	}
	d.rate = hz
	got, err := d.client.ReadDeviceAttr(ctx, d.cfg.Name, attrSampleRate)
	if err != nil {
		monitoring.Logf("%s sample rate set to %d Hz; read back failed: %v", d.cfg.Name, hz, err)
		return nil
	}
	monitoring.Logf("%s sample rate set to %d Hz (device reports %s)", d.cfg.Name, hz, got)
	return nil
}

// Poll reads one buffer and returns the per-channel sum of its samples.
func (d *Device) Poll(ctx context.Context) (gesture.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sums, err := d.capture(ctx)
	if err != nil {
		return gesture.Sample{}, err
	}
	var s gesture.Sample
	for ch := range s {
		s[ch] = uint32(sums[ch])
	}
	return s, nil
}

// Calibrate captures the given number of buffers, computes the mean
// per-sample reading of each channel and adds it to the channel's offset.
// It returns the applied adjustments.
func (d *Device) Calibrate(ctx context.Context, captures int) ([gesture.NumChannels]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var adjust [gesture.NumChannels]int
	if captures <= 0 {
		return adjust, fmt.Errorf("calibration needs at least one capture, got %d", captures)
	}

	var totals [gesture.NumChannels]uint64
	for i := 0; i < captures; i++ {
		sums, err := d.capture(ctx)
		if err != nil {
			return adjust, fmt.Errorf("calibration capture %d: %w", i+1, err)
		}
		for ch := range totals {
			totals[ch] += sums[ch]
		}
	}

	n := uint64(captures * d.cfg.BufferSamples)
	for ch := range adjust {
		adjust[ch] = int(totals[ch] / n)
		name := ChannelName(ch)
		raw, err := d.client.ReadChannelAttr(ctx, d.cfg.Name, name, attrOffset)
		if err != nil {
			return adjust, fmt.Errorf("read %s offset: %w", name, err)
		}
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return adjust, fmt.Errorf("parse %s offset %q: %w", name, raw, err)
		}
		if err := d.client.WriteChannelAttr(ctx, d.cfg.Name, name, attrOffset, strconv.Itoa(offset+adjust[ch])); err != nil {
			return adjust, fmt.Errorf("write %s offset: %w", name, err)
		}
	}
	monitoring.Logf("%s calibrated over %d buffers: offsets adjusted by %v", d.cfg.Name, captures, adjust)
	return adjust, nil
}

// Close releases the buffer and the underlying link.
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	bufErr := d.closeBuffer(ctx)
	if err := d.client.Close(); err != nil {
		return err
	}
	return bufErr
}

// capture reads one buffer and returns per-channel sums. Callers hold mu.
func (d *Device) capture(ctx context.Context) ([gesture.NumChannels]uint64, error) {
	var sums [gesture.NumChannels]uint64
	if !d.open {
		if err := d.client.OpenBuffer(ctx, d.cfg.Name, d.cfg.BufferSamples, ChannelMask); err != nil {
			return sums, fmt.Errorf("open %s buffer: %w", d.cfg.Name, err)
		}
		d.open = true
	}

	size := d.cfg.BufferSamples * gesture.NumChannels * BytesPerSample
	data, err := d.client.ReadBuffer(ctx, d.cfg.Name, size)
	if err != nil {
		return sums, fmt.Errorf("read %s buffer: %w", d.cfg.Name, err)
	}
	if len(data) != size {
		return sums, fmt.Errorf("read %s buffer: got %d bytes, want %d", d.cfg.Name, len(data), size)
	}
	for i := 0; i < len(data); i += BytesPerSample {
		ch := (i / BytesPerSample) % gesture.NumChannels
		sums[ch] += uint64(binary.LittleEndian.Uint16(data[i:]))
	}
	return sums, nil
}

func (d *Device) closeBuffer(ctx context.Context) error {
	if !d.open {
		return nil
	}
	d.open = false
	if err := d.client.CloseBuffer(ctx, d.cfg.Name); err != nil {
		return fmt.Errorf("close %s buffer: %w", d.cfg.Name, err)
	}
	return nil
}
