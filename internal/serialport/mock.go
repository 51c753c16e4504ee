package serialport

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by TestableSerialPort after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestableSerialPort implements TimeoutSerialPorter with configurable
// behaviour for testing. When its read buffer is empty a Read waits for the
// read timeout and returns (0, nil), like a real port with a timeout set.
// OnWrite lets a test play the device side of a request/response protocol.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// ShortWrite makes the next Write report one byte fewer than requested
	ShortWrite bool

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// OnWrite, if set, is called with each written chunk and may return a
	// reply that is appended to the read buffer.
	OnWrite func(p []byte) []byte
}

// NewTestableSerialPort creates a new TestableSerialPort with a 1ms read
// timeout.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		ReadTimeout: time.Millisecond,
	}
}

// Read reads from the read buffer, optionally simulating errors and timeouts.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	t.ReadCalls++

	if t.Closed {
		t.mu.Unlock()
		return 0, ErrPortClosed
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		t.mu.Unlock()
		return 0, err
	}

	if t.ReadBuffer.Len() == 0 {
		timeout := t.ReadTimeout
		t.mu.Unlock()
		time.Sleep(timeout)
		return 0, nil
	}

	defer t.mu.Unlock()
	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer, optionally simulating errors.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, ErrPortClosed
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	if t.ShortWrite && len(p) > 0 {
		t.ShortWrite = false
		return t.WriteBuffer.Write(p[:len(p)-1])
	}

	n, err = t.WriteBuffer.Write(p)
	if t.OnWrite != nil {
		if reply := t.OnWrite(p); len(reply) > 0 {
			t.ReadBuffer.Write(reply)
		}
	}
	return n, err
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
}

// GetWrittenData returns a copy of all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}

// Reset clears all buffers and resets state.
func (t *TestableSerialPort) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Reset()
	t.WriteBuffer.Reset()
	t.ReadCalls = 0
	t.WriteCalls = 0
	t.Closed = false
	t.ReadError = nil
	t.WriteError = nil
	t.CloseError = nil
	t.ShortWrite = false
}
