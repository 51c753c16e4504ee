// Package iio is a small client for the iiod text protocol spoken by the
// ADICUP3029 IIO firmware over its USB serial link.
//
// Only the commands the production test needs are implemented: attribute
// reads and writes, and the OPEN/READBUF/CLOSE buffer cycle.
package iio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ALU-panda/production-tests/internal/monitoring"
	"github.com/ALU-panda/production-tests/internal/serialport"
)

// ErrProtocol is returned when iiod sends a reply the client cannot parse.
var ErrProtocol = errors.New("iiod protocol error")

// RemoteError is a negative status code returned by iiod. Code is the
// negated errno reported by the firmware.
type RemoteError struct {
	Command string
	Code    int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("iiod %s: %s (%d)", e.Command, syscall.Errno(-e.Code).Error(), e.Code)
}

const (
	// DefaultReplyTimeout bounds how long the rest of a reply may take once
	// its status line has arrived.
	DefaultReplyTimeout = 2 * time.Second
	// DefaultQuietPeriod is how long the link must stay silent before stale
	// input is considered drained.
	DefaultQuietPeriod = 50 * time.Millisecond
)

// Client issues iiod commands over a serial port. Calls are serialized; the
// protocol has no request tagging.
//
// The caller's context is honoured until a reply's status line arrives. The
// remainder of the reply is then read under DefaultReplyTimeout so that a
// cancelled caller does not leave half a reply on the link. If a command
// still ends without a complete reply, the next command first discards
// whatever input is pending.
type Client struct {
	mu   sync.Mutex
	port serialport.SerialPorter
	cr   *serialport.ContextReader
	rd   *bufio.Reader

	replyTimeout time.Duration
	quietPeriod  time.Duration
	stopReply    context.CancelFunc
	// dirty is set while a command is outstanding and cleared once its reply
	// has been read in full.
	dirty bool
}

// NewClient returns a Client talking over port. The port should return
// (0, nil) from Read on timeout so that contexts are honoured.
func NewClient(port serialport.SerialPorter) *Client {
	cr := serialport.NewContextReader(port)
	return &Client{
		port:         port,
		cr:           cr,
		rd:           bufio.NewReader(cr),
		replyTimeout: DefaultReplyTimeout,
		quietPeriod:  DefaultQuietPeriod,
	}
}

// Close closes the underlying port.
func (c *Client) Close() error {
	return c.port.Close()
}

// Version returns the firmware's iiod version line, e.g. "0.25.0000000".
func (c *Client) Version(ctx context.Context) (_ string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.finish(&err)

	if err := c.send(ctx, "VERSION"); err != nil {
		return "", err
	}
	line, err := c.readLine()
	if err != nil {
		return "", err
	}
	return line, nil
}

// SetTimeout sets iiod's own I/O timeout. Zero disables it.
func (c *Client) SetTimeout(ctx context.Context, d time.Duration) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.finish(&err)

	cmd := fmt.Sprintf("TIMEOUT %d", d.Milliseconds())
	_, err = c.exec(ctx, cmd)
	return err
}

// ReadDeviceAttr reads a device-level attribute.
func (c *Client) ReadDeviceAttr(ctx context.Context, dev, attr string) (string, error) {
	return c.readAttr(ctx, fmt.Sprintf("READ %s %s", dev, attr))
}

// WriteDeviceAttr writes a device-level attribute.
func (c *Client) WriteDeviceAttr(ctx context.Context, dev, attr, value string) error {
	return c.writeAttr(ctx, fmt.Sprintf("WRITE %s %s", dev, attr), value)
}

// ReadChannelAttr reads an attribute of input channel ch.
func (c *Client) ReadChannelAttr(ctx context.Context, dev, ch, attr string) (string, error) {
	return c.readAttr(ctx, fmt.Sprintf("READ %s INPUT %s %s", dev, ch, attr))
}

// WriteChannelAttr writes an attribute of input channel ch.
func (c *Client) WriteChannelAttr(ctx context.Context, dev, ch, attr, value string) error {
	return c.writeAttr(ctx, fmt.Sprintf("WRITE %s INPUT %s %s", dev, ch, attr), value)
}

// OpenBuffer enables the channels in mask and allocates a buffer of samples
// samples on the device.
func (c *Client) OpenBuffer(ctx context.Context, dev string, samples int, mask uint32) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.finish(&err)

	_, err = c.exec(ctx, fmt.Sprintf("OPEN %s %d %08x", dev, samples, mask))
	return err
}

// CloseBuffer releases the device buffer.
func (c *Client) CloseBuffer(ctx context.Context, dev string) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.finish(&err)

	_, err = c.exec(ctx, "CLOSE "+dev)
	return err
}

// ReadBuffer reads n bytes of interleaved sample data from an open buffer.
// iiod may answer in several chunks; each is preceded by its length, and the
// first by the hex mask of the enabled channels.
func (c *Client) ReadBuffer(ctx context.Context, dev string, n int) (_ []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.finish(&err)

	cmd := fmt.Sprintf("READBUF %s %d", dev, n)
	if err := c.send(ctx, cmd); err != nil {
		return nil, err
	}

	data := make([]byte, 0, n)
	first := true
	for len(data) < n {
		size, err := c.readStatus(cmd)
		if err != nil {
			return nil, err
		}
		c.beginReply()
		if size == 0 {
			break
		}
		if size > n-len(data) {
			return nil, fmt.Errorf("%w: %s chunk of %d bytes exceeds remaining %d", ErrProtocol, cmd, size, n-len(data))
		}
		if first {
			if _, err := c.readMask(); err != nil {
				return nil, err
			}
			first = false
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(c.rd, chunk); err != nil {
			return nil, fmt.Errorf("reading %s payload: %w", cmd, err)
		}
		data = append(data, chunk...)
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %s returned %d of %d bytes", ErrProtocol, cmd, len(data), n)
	}
	return data, nil
}

func (c *Client) readAttr(ctx context.Context, cmd string) (_ string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.finish(&err)

	size, err := c.exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	c.beginReply()
	value := make([]byte, size)
	if _, err := io.ReadFull(c.rd, value); err != nil {
		return "", fmt.Errorf("reading %s value: %w", cmd, err)
	}
	if b, err := c.rd.ReadByte(); err != nil {
		return "", fmt.Errorf("reading %s terminator: %w", cmd, err)
	} else if b != '\n' {
		c.rd.UnreadByte()
	}
	return strings.TrimRight(string(value), "\x00\n"), nil
}

func (c *Client) writeAttr(ctx context.Context, cmd, value string) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.finish(&err)

	payload := []byte(value + "\x00")
	cmd = fmt.Sprintf("%s %d", cmd, len(payload))
	if err := c.send(ctx, cmd); err != nil {
		return err
	}
	if err := serialport.WriteAll(c.port, payload); err != nil {
		return fmt.Errorf("writing %s payload: %w", cmd, err)
	}
	_, err = c.readStatus(cmd)
	return err
}

// exec sends cmd and returns its non-negative status.
func (c *Client) exec(ctx context.Context, cmd string) (int, error) {
	if err := c.send(ctx, cmd); err != nil {
		return 0, err
	}
	return c.readStatus(cmd)
}

func (c *Client) send(ctx context.Context, cmd string) error {
	if c.dirty {
		c.drain()
	}
	c.cr.SetContext(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	monitoring.Logf("iiod > %s", cmd)
	c.dirty = true
	if err := serialport.WriteAll(c.port, []byte(cmd+"\r\n")); err != nil {
		return fmt.Errorf("sending %s: %w", cmd, err)
	}
	return nil
}

// beginReply moves the rest of the current reply off the caller's context
// and onto the client's reply deadline.
func (c *Client) beginReply() {
	if c.stopReply != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.replyTimeout)
	c.stopReply = cancel
	c.cr.SetContext(ctx)
}

// finish ends a command. A nil error or a remote status means the reply was
// consumed in full and the link is back in step.
func (c *Client) finish(errp *error) {
	if c.stopReply != nil {
		c.stopReply()
		c.stopReply = nil
	}
	var remote *RemoteError
	if *errp == nil || errors.As(*errp, &remote) {
		c.dirty = false
	}
}

// drain discards input left over from an unfinished reply. It returns once
// the link has been quiet for quietPeriod, or after replyTimeout at most.
func (c *Client) drain() {
	discarded, _ := c.rd.Discard(c.rd.Buffered())
	deadline := time.Now().Add(c.replyTimeout)
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), c.quietPeriod)
		c.cr.SetContext(ctx)
		n, err := c.cr.Read(buf)
		cancel()
		discarded += n
		if err != nil {
			break
		}
	}
	c.rd.Reset(c.cr)
	c.dirty = false
	if discarded > 0 {
		monitoring.Logf("iiod: discarded %d stale bytes", discarded)
	}
}

func (c *Client) readStatus(cmd string) (int, error) {
	line, err := c.readLine()
	if err != nil {
		return 0, fmt.Errorf("reading %s status: %w", cmd, err)
	}
	code, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("%w: %s status %q", ErrProtocol, cmd, line)
	}
	if code < 0 {
		return 0, &RemoteError{Command: strings.Fields(cmd)[0], Code: code}
	}
	return code, nil
}

func (c *Client) readMask() (uint64, error) {
	line, err := c.readLine()
	if err != nil {
		return 0, fmt.Errorf("reading buffer mask: %w", err)
	}
	mask, err := strconv.ParseUint(line, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: buffer mask %q", ErrProtocol, line)
	}
	return mask, nil
}

func (c *Client) readLine() (string, error) {
	line, err := c.rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
