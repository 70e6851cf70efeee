// Package register drives the interactive onboarding of an unregistered
// device: pairing code linking or mobile registration.
package register

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrInputClosed is returned when the input ends before an answer is read.
var ErrInputClosed = errors.New("input closed")

// Asker asks a question and returns the answer line without the newline.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Prompter asks questions on a line-oriented terminal. A single goroutine
// owns the input; it runs until the input ends.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	once  sync.Once
	lines chan answer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, lines: make(chan answer)}
}

type answer struct {
	line string
	err  error
}

// read feeds lines to Ask. A line that arrives after its question was
// cancelled answers the next question. The channel is closed once the input
// is exhausted.
func (p *Prompter) read() {
	defer close(p.lines)
	for {
		line, err := p.in.ReadString('\n')
		switch {
		case err == nil:
			p.lines <- answer{line: line}
		case errors.Is(err, io.EOF):
			if line != "" {
				p.lines <- answer{line: line}
			}
			return
		default:
			p.lines <- answer{err: err}
			return
		}
	}
}

// Ask prints question and waits for one line of input or ctx cancellation.
func (p *Prompter) Ask(ctx context.Context, question string) (string, error) {
	if _, err := fmt.Fprintln(p.out, question); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	p.once.Do(func() { go p.read() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a, ok := <-p.lines:
		if !ok {
			return "", ErrInputClosed
		}
		if a.err != nil {
			return "", fmt.Errorf("read answer: %w", a.err)
		}
		return strings.TrimRight(a.line, "\r\n"), nil
	}
}

// clean strips quotes and surrounding space and lowercases an answer.
func clean(s string) string {
	s = strings.NewReplacer(`"`, "", "'", "").Replace(s)
	return strings.ToLower(strings.TrimSpace(s))
}
