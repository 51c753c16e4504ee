package adpd1080

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ALU-panda/production-tests/internal/gesture"
	"github.com/ALU-panda/production-tests/internal/iio"
	"github.com/ALU-panda/production-tests/internal/monitoring"
)

var _ Client = (*iio.Client)(nil)

func init() {
	monitoring.SetLogger(nil)
}

// fakeClient records calls and serves buffers built from per-channel values.
type fakeClient struct {
	calls    []string
	offsets  map[string]string
	rates    []string
	buffers  [][]byte
	readErr  error
	openErr  error
	closed   bool
	timeouts []time.Duration
	rateErr  error
	reads    int
}

func newFakeClient() *fakeClient {
	f := &fakeClient{offsets: map[string]string{}}
	for i := 0; i < gesture.NumChannels; i++ {
		f.offsets[ChannelName(i)] = "100"
	}
	return f
}

// buffer builds one interleaved buffer where channel ch reads values[ch] in
// every sample.
func buffer(samples int, values [gesture.NumChannels]uint16) []byte {
	out := make([]byte, 0, samples*gesture.NumChannels*BytesPerSample)
	for s := 0; s < samples; s++ {
		for _, v := range values {
			out = binary.LittleEndian.AppendUint16(out, v)
		}
	}
	return out
}

func (f *fakeClient) SetTimeout(_ context.Context, d time.Duration) error {
	f.calls = append(f.calls, "TIMEOUT")
	f.timeouts = append(f.timeouts, d)
	return nil
}

func (f *fakeClient) ReadDeviceAttr(_ context.Context, _, _ string) (string, error) {
	f.reads++
	if f.rateErr != nil || len(f.rates) == 0 {
		return "", f.rateErr
	}
	return f.rates[len(f.rates)-1], nil
}

func (f *fakeClient) WriteDeviceAttr(_ context.Context, dev, attr, value string) error {
	f.calls = append(f.calls, fmt.Sprintf("WRITE %s %s=%s", dev, attr, value))
	f.rates = append(f.rates, value)
	return nil
}

func (f *fakeClient) ReadChannelAttr(_ context.Context, _, ch, _ string) (string, error) {
	return f.offsets[ch], nil
}

func (f *fakeClient) WriteChannelAttr(_ context.Context, _, ch, _, value string) error {
	f.offsets[ch] = value
	return nil
}

func (f *fakeClient) OpenBuffer(_ context.Context, dev string, samples int, mask uint32) error {
	f.calls = append(f.calls, fmt.Sprintf("OPEN %s %d %x", dev, samples, mask))
	return f.openErr
}

func (f *fakeClient) ReadBuffer(_ context.Context, _ string, n int) ([]byte, error) {
	f.calls = append(f.calls, "READBUF "+strconv.Itoa(n))
	if f.readErr != nil {
		return nil, f.readErr
	}
	if len(f.buffers) == 0 {
		return make([]byte, n), nil
	}
	b := f.buffers[0]
	f.buffers = f.buffers[1:]
	return b, nil
}

func (f *fakeClient) CloseBuffer(_ context.Context, dev string) error {
	f.calls = append(f.calls, "CLOSE "+dev)
	return nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestNew_Defaults(t *testing.T) {
	d := New(newFakeClient(), Config{})
	want := Config{Name: "adpd1080", BufferSamples: 8, SampleRateHz: 512, CalibrationRateHz: 10, CalibrationCaptures: 5}
	if diff := cmp.Diff(want, d.Config()); diff != "" {
		t.Errorf("Config() mismatch (-want +got):\n%s", diff)
	}
}

func TestDevice_PollSumsChannels(t *testing.T) {
	f := newFakeClient()
	f.buffers = [][]byte{
		buffer(8, [8]uint16{1, 2, 3, 4, 100, 200, 300, 65535}),
		buffer(8, [8]uint16{0, 0, 0, 0, 0, 0, 0, 1}),
	}
	d := New(f, Config{})
	ctx := context.Background()

	s, err := d.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, gesture.Sample{8, 16, 24, 32, 800, 1600, 2400, 8 * 65535}, s)

	s, err = d.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, gesture.Sample{0, 0, 0, 0, 0, 0, 0, 8}, s)

	// The buffer is opened once and reused.
	assert.Equal(t, []string{"OPEN adpd1080 8 ff", "READBUF 128", "READBUF 128"}, f.calls)
}

func TestDevice_PollErrors(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		f := newFakeClient()
		f.openErr = errors.New("busy")
		_, err := New(f, Config{}).Poll(context.Background())
		assert.ErrorIs(t, err, f.openErr)
	})
	t.Run("read", func(t *testing.T) {
		f := newFakeClient()
		f.readErr = errors.New("unplugged")
		_, err := New(f, Config{}).Poll(context.Background())
		assert.ErrorIs(t, err, f.readErr)
	})
	t.Run("short buffer", func(t *testing.T) {
		f := newFakeClient()
		f.buffers = [][]byte{make([]byte, 10)}
		_, err := New(f, Config{}).Poll(context.Background())
		assert.Error(t, err)
	})
}

func TestDevice_SetSampleRateClosesBuffer(t *testing.T) {
	f := newFakeClient()
	d := New(f, Config{})
	ctx := context.Background()

	_, err := d.Poll(ctx)
	require.NoError(t, err)
	require.NoError(t, d.SetSampleRate(ctx, 10))
	_, err = d.Poll(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"OPEN adpd1080 8 ff",
		"READBUF 128",
		"CLOSE adpd1080",
		"WRITE adpd1080 sampling_frequency=10",
		"OPEN adpd1080 8 ff",
		"READBUF 128",
	}, f.calls)
	assert.Equal(t, 10, d.SampleRate())
}

func TestDevice_SetSampleRateReadsBack(t *testing.T) {
	f := newFakeClient()
	d := New(f, Config{})
	ctx := context.Background()

	require.NoError(t, d.SetSampleRate(ctx, 512))
	assert.Equal(t, 1, f.reads)

	f.rateErr = errors.New("link busy")
	require.NoError(t, d.SetSampleRate(ctx, 10), "a failed read back is only logged")
	assert.Equal(t, 2, f.reads)
	assert.Equal(t, 10, d.SampleRate())
}

func TestDevice_CalibrateAveragesPerSample(t *testing.T) {
	f := newFakeClient()
	f.buffers = [][]byte{
		buffer(8, [8]uint16{10, 20, 30, 40, 50, 60, 70, 80}),
		buffer(8, [8]uint16{20, 20, 30, 40, 50, 60, 70, 81}),
	}
	d := New(f, Config{})

	adjust, err := d.Calibrate(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, [8]int{15, 20, 30, 40, 50, 60, 70, 80}, adjust)
	assert.Equal(t, "115", f.offsets["voltage0"])
	assert.Equal(t, "180", f.offsets["voltage7"])
}

func TestDevice_CalibrateInvalid(t *testing.T) {
	_, err := New(newFakeClient(), Config{}).Calibrate(context.Background(), 0)
	assert.Error(t, err)

	f := newFakeClient()
	f.offsets["voltage2"] = "n/a"
	_, err = New(f, Config{}).Calibrate(context.Background(), 1)
	assert.ErrorContains(t, err, "voltage2")
}

func TestDevice_Setup(t *testing.T) {
	f := newFakeClient()
	d := New(f, Config{CalibrationCaptures: 2})

	require.NoError(t, d.Setup(context.Background()))
	assert.Equal(t, []time.Duration{0}, f.timeouts)
	assert.Equal(t, []string{"10", "512"}, f.rates)
	assert.Equal(t, 512, d.SampleRate())
	assert.Equal(t, []string{
		"TIMEOUT",
		"WRITE adpd1080 sampling_frequency=10",
		"OPEN adpd1080 8 ff",
		"READBUF 128",
		"READBUF 128",
		"CLOSE adpd1080",
		"WRITE adpd1080 sampling_frequency=512",
	}, f.calls)
}

func TestDevice_Close(t *testing.T) {
	f := newFakeClient()
	d := New(f, Config{})
	_, err := d.Poll(context.Background())
	require.NoError(t, err)

	require.NoError(t, d.Close(context.Background()))
	assert.True(t, f.closed)
	assert.Equal(t, "CLOSE adpd1080", f.calls[len(f.calls)-1])
}
