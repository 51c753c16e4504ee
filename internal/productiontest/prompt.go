package productiontest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// prompter reads operator answers line by line. Lines are scanned on a
// background goroutine so a blocked terminal read never outlives ctx.
type prompter struct {
	in  io.Reader
	out io.Writer

	once    sync.Once
	lines   chan string
	err     error
	done    chan struct{}
	stop    sync.Once
	stopped chan struct{}
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{
		in:      in,
		out:     out,
		lines:   make(chan string),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (p *prompter) start() {
	go func() {
		defer close(p.stopped)
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			select {
			case p.lines <- sc.Text():
			case <-p.done:
				return
			}
		}
		p.err = sc.Err()
		close(p.lines)
	}()
}

// close releases the scanner goroutine. A line already scanned but not read
// is dropped; a read blocked on the input ends with the input.
func (p *prompter) close() {
	p.stop.Do(func() { close(p.done) })
}

// readLine returns the next line of input. It returns io.EOF once input is
// exhausted.
func (p *prompter) readLine(ctx context.Context) (string, error) {
	p.once.Do(p.start)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			if p.err != nil {
				return "", p.err
			}
			return "", io.EOF
		}
		return line, nil
	}
}

// confirm asks question until the operator answers yes or no. End of input
// counts as no.
func (p *prompter) confirm(ctx context.Context, question string) (bool, error) {
	for {
		fmt.Fprintf(p.out, "\n%s (yes/no): ", question)
		line, err := p.readLine(ctx)
		if err == io.EOF {
			fmt.Fprintln(p.out)
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "yes", "y":
			return true, nil
		case "no", "n":
			return false, nil
		}
		fmt.Fprintln(p.out, "\nPlease answer with a yes or no.")
	}
}

func (p *prompter) say(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", args...)
}
