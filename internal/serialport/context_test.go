package serialport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestContextReader_WaitsThroughTimeouts(t *testing.T) {
	port := NewTestableSerialPort()
	r := NewContextReader(port)

	go func() {
		time.Sleep(20 * time.Millisecond)
		port.AddReadData([]byte("0\n"))
	}()

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf[:n]) != "0\n" {
		t.Errorf("Read() = %q, want %q", buf[:n], "0\n")
	}
	if port.ReadCalls < 2 {
		t.Errorf("expected timed-out reads before data, got %d calls", port.ReadCalls)
	}
}

func TestContextReader_Cancelled(t *testing.T) {
	port := NewTestableSerialPort()
	r := NewContextReader(port)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	r.SetContext(ctx)

	start := time.Now()
	_, err := r.Read(make([]byte, 4))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Read() error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Read() did not observe the deadline promptly")
	}
}

func TestContextReader_PropagatesErrors(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = io.ErrUnexpectedEOF
	r := NewContextReader(port)

	if _, err := r.Read(make([]byte, 4)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Read() error = %v, want ErrUnexpectedEOF", err)
	}
}

func TestContextReader_EmptyBuffer(t *testing.T) {
	r := NewContextReader(NewTestableSerialPort())
	n, err := r.Read(nil)
	if n != 0 || err != nil {
		t.Fatalf("Read(nil) = %d, %v; want 0, nil", n, err)
	}
}
