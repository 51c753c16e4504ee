package serialport

import (
	"context"
	"io"
	"sync"
)

// ContextReader turns the timed-out reads of a TimeoutSerialPorter into
// context-aware blocking reads: Read keeps retrying empty reads until data
// arrives or the current context is done.
type ContextReader struct {
	r io.Reader

	mu  sync.Mutex
	ctx context.Context
}

// NewContextReader wraps r. Until SetContext is called, reads use
// context.Background.
func NewContextReader(r io.Reader) *ContextReader {
	return &ContextReader{r: r, ctx: context.Background()}
}

// SetContext sets the context observed by subsequent reads.
func (c *ContextReader) SetContext(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
}

func (c *ContextReader) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// Read implements io.Reader.
func (c *ContextReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	ctx := c.context()
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := c.r.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
