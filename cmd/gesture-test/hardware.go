package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ALU-panda/production-tests/internal/adpd1080"
	"github.com/ALU-panda/production-tests/internal/config"
	"github.com/ALU-panda/production-tests/internal/gesture"
	"github.com/ALU-panda/production-tests/internal/iio"
	"github.com/ALU-panda/production-tests/internal/monitoring"
	"github.com/ALU-panda/production-tests/internal/serialport"
)

var errNotConnected = errors.New("sensor not configured")

// hardware connects to the board when the operator confirms the run, so a
// missing board is reported in the console flow.
type hardware struct {
	cfg      *config.TestConfig
	port     string
	discover serialport.Enumerator
	open     serialport.Opener

	dev *adpd1080.Device
}

func newHardware(cfg *config.TestConfig, port string) *hardware {
	return &hardware{
		cfg:      cfg,
		port:     port,
		discover: serialport.SystemPorts,
		open:     serialport.Open,
	}
}

// Setup finds and opens the board, then calibrates the sensor.
func (h *hardware) Setup(ctx context.Context) error {
	path := h.port
	if path == "" {
		var err error
		if path, err = serialport.Discover(h.discover, h.cfg.GetUSBVendorID()); err != nil {
			return err
		}
	}

	port, err := h.open(path, serialport.PortOptions(h.cfg.GetSerial()))
	if err != nil {
		return err
	}
	client := iio.NewClient(port)
	v, err := client.Version(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("iiod on %s not responding: %w", path, err)
	}
	monitoring.Logf("iiod %s on %s", v, path)

	h.dev = adpd1080.New(client, adpd1080.ConfigFrom(h.cfg))
	if err := h.dev.Setup(ctx); err != nil {
		return err
	}
	dc := h.dev.Config()
	monitoring.Logf("%s ready: %d-sample buffers at %d Hz", dc.Name, dc.BufferSamples, h.dev.SampleRate())
	return nil
}

// Poll reads the next sample from the sensor.
func (h *hardware) Poll(ctx context.Context) (gesture.Sample, error) {
	if h.dev == nil {
		return gesture.Sample{}, errNotConnected
	}
	return h.dev.Poll(ctx)
}

// Close releases the board, if it was opened.
func (h *hardware) Close() {
	if h.dev == nil {
		return
	}
	if err := h.dev.Close(context.Background()); err != nil {
		monitoring.Logf("closing sensor: %v", err)
	}
}
