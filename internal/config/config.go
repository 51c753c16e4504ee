package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the path to the canonical test settings file.
const DefaultConfigPath = "config/gesture.defaults.json"

// TestConfig holds the production test settings. Every field is optional:
// the Get* accessors fall back to the production defaults, so partial
// files are safe.
type TestConfig struct {
	// Gesture detection
	PresenceThreshold *uint64  `json:"presence_threshold,omitempty"`
	MinActiveFrames   *int     `json:"min_active_frames,omitempty"`
	ClickDistance     *float64 `json:"click_distance,omitempty"`
	MismatchBudget    *int     `json:"mismatch_budget,omitempty"`

	// Sequencing
	TrialTimeout    *string `json:"trial_timeout,omitempty"`     // duration string, "0s" waits forever
	InterTrialPause *string `json:"inter_trial_pause,omitempty"` // duration string like "1s"

	// Device
	DeviceName          *string `json:"device_name,omitempty"`
	SampleRateHz        *int    `json:"sample_rate_hz,omitempty"`
	CalibrationRateHz   *int    `json:"calibration_rate_hz,omitempty"`
	CalibrationCaptures *int    `json:"calibration_captures,omitempty"`
	BufferSamples       *int    `json:"buffer_samples,omitempty"`

	// Serial link
	USBVendorID *string       `json:"usb_vid,omitempty"`
	Serial      *SerialConfig `json:"serial,omitempty"`
}

// SerialConfig describes the serial framing of the board link.
type SerialConfig struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// DefaultTestConfig returns a TestConfig with every field set to its
// production default.
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		PresenceThreshold:   ptrUint64(1000),
		MinActiveFrames:     ptrInt(5),
		ClickDistance:       ptrFloat64(0.07),
		MismatchBudget:      ptrInt(10),
		TrialTimeout:        ptrString("0s"),
		InterTrialPause:     ptrString("1s"),
		DeviceName:          ptrString("adpd1080"),
		SampleRateHz:        ptrInt(512),
		CalibrationRateHz:   ptrInt(10),
		CalibrationCaptures: ptrInt(5),
		BufferSamples:       ptrInt(8),
		USBVendorID:         ptrString("0D28"),
		Serial:              &SerialConfig{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
	}
}

// LoadTestConfig loads a TestConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTestConfig(path string) (*TestConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TestConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TestConfig) Validate() error {
	if c.PresenceThreshold != nil && *c.PresenceThreshold == 0 {
		return fmt.Errorf("presence_threshold must be positive")
	}
	if c.MinActiveFrames != nil && *c.MinActiveFrames < 1 {
		return fmt.Errorf("min_active_frames must be at least 1, got %d", *c.MinActiveFrames)
	}
	if c.ClickDistance != nil && (*c.ClickDistance <= 0 || *c.ClickDistance > 2) {
		return fmt.Errorf("click_distance must be in (0, 2], got %f", *c.ClickDistance)
	}
	if c.MismatchBudget != nil && *c.MismatchBudget < 1 {
		return fmt.Errorf("mismatch_budget must be at least 1, got %d", *c.MismatchBudget)
	}

	for name, v := range map[string]*string{
		"trial_timeout":     c.TrialTimeout,
		"inter_trial_pause": c.InterTrialPause,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}

	for name, v := range map[string]*int{
		"sample_rate_hz":       c.SampleRateHz,
		"calibration_rate_hz":  c.CalibrationRateHz,
		"calibration_captures": c.CalibrationCaptures,
		"buffer_samples":       c.BufferSamples,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	if c.DeviceName != nil && strings.TrimSpace(*c.DeviceName) == "" {
		return fmt.Errorf("device_name must not be empty")
	}
	if c.USBVendorID != nil && len(strings.TrimSpace(*c.USBVendorID)) != 4 {
		return fmt.Errorf("usb_vid must be 4 hex digits, got %q", *c.USBVendorID)
	}

	return nil
}

// GetPresenceThreshold returns the presence_threshold value or the default.
func (c *TestConfig) GetPresenceThreshold() uint64 {
	if c.PresenceThreshold == nil {
		return 1000
	}
	return *c.PresenceThreshold
}

// GetMinActiveFrames returns the min_active_frames value or the default.
func (c *TestConfig) GetMinActiveFrames() int {
	if c.MinActiveFrames == nil {
		return 5
	}
	return *c.MinActiveFrames
}

// GetClickDistance returns the click_distance value or the default.
func (c *TestConfig) GetClickDistance() float64 {
	if c.ClickDistance == nil {
		return 0.07
	}
	return *c.ClickDistance
}

// GetMismatchBudget returns the mismatch_budget value or the default.
func (c *TestConfig) GetMismatchBudget() int {
	if c.MismatchBudget == nil {
		return 10
	}
	return *c.MismatchBudget
}

// GetTrialTimeout parses and returns the TrialTimeout. Zero means no timeout.
func (c *TestConfig) GetTrialTimeout() time.Duration {
	if c.TrialTimeout == nil || *c.TrialTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.TrialTimeout)
	if err != nil {
		return 0 // default on parse error
	}
	return d
}

// GetInterTrialPause parses and returns the InterTrialPause.
func (c *TestConfig) GetInterTrialPause() time.Duration {
	if c.InterTrialPause == nil || *c.InterTrialPause == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.InterTrialPause)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetDeviceName returns the IIO device name or the default.
func (c *TestConfig) GetDeviceName() string {
	if c.DeviceName == nil {
		return "adpd1080"
	}
	return *c.DeviceName
}

// GetSampleRateHz returns the sample_rate_hz value or the default.
func (c *TestConfig) GetSampleRateHz() int {
	if c.SampleRateHz == nil {
		return 512
	}
	return *c.SampleRateHz
}

// GetCalibrationRateHz returns the calibration_rate_hz value or the default.
func (c *TestConfig) GetCalibrationRateHz() int {
	if c.CalibrationRateHz == nil {
		return 10
	}
	return *c.CalibrationRateHz
}

// GetCalibrationCaptures returns the calibration_captures value or the default.
func (c *TestConfig) GetCalibrationCaptures() int {
	if c.CalibrationCaptures == nil {
		return 5
	}
	return *c.CalibrationCaptures
}

// GetBufferSamples returns the buffer_samples value or the default.
func (c *TestConfig) GetBufferSamples() int {
	if c.BufferSamples == nil {
		return 8
	}
	return *c.BufferSamples
}

// GetUSBVendorID returns the usb_vid value or the default (ARM DAPLink).
func (c *TestConfig) GetUSBVendorID() string {
	if c.USBVendorID == nil {
		return "0D28"
	}
	return strings.ToUpper(strings.TrimSpace(*c.USBVendorID))
}

// GetSerial returns the serial framing or the default 115200 8N1.
func (c *TestConfig) GetSerial() SerialConfig {
	if c.Serial == nil {
		return SerialConfig{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}
	}
	return *c.Serial
}
