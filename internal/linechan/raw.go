package linechan

import (
	"bytes"
	"errors"
	"io"
)

// Raw frames lines on a plain byte stream.  The wire is newline
// agnostic: a read whose bytes hold no "\n" is delivered as a line on
// its own, so a peer that sends "arch" and waits gets an answer.  When
// a read does carry newlines, each "\n" ends a line and a preceding
// "\r" is dropped; bytes after the last newline wait for the next read.
// Pending input never exceeds MaxRead bytes, longer lines arrive in
// fragments.  Whatever is pending at EOF is delivered before [io.EOF].
type Raw struct {
	s   *stream
	buf []byte
	// buf[start:end] is read but not yet delivered.
	start, end int
	// skipLF drops a "\n" that opens the next read when the last
	// delivery ended in "\r".
	skipLF bool
}

// NewRaw wraps rw.
func NewRaw(rw io.ReadWriter, opts Options) *Raw {
	return &Raw{s: newStream(rw, opts), buf: make([]byte, MaxRead)}
}

// Write sends text verbatim.
func (c *Raw) Write(text string) error {
	_, err := io.WriteString(c.s, text)
	return err
}

// Prompt writes prompt and reads one line.
func (c *Raw) Prompt(prompt string) (string, error) {
	if err := c.Write(prompt); err != nil {
		return "", err
	}
	return c.ReadLine()
}

// ReadSecret behaves like Prompt.  A raw stream has no echo to turn
// off; the peer's terminal decides what is shown.
func (c *Raw) ReadSecret(prompt string) (string, error) {
	return c.Prompt(prompt)
}

// ReadLine returns the next line without its terminator.
func (c *Raw) ReadLine() (string, error) {
	for {
		if line, ok := c.next(); ok {
			return line, nil
		}
		c.compact()

		c.s.arm()
		n, err := c.s.Read(c.buf[c.end:])
		if n > 0 {
			from := c.end
			c.end += n
			if c.skipLF {
				c.skipLF = false
				if c.buf[from] == '\n' {
					from++
					c.start = from
				}
			}
			if from < c.end && bytes.IndexByte(c.buf[from:c.end], '\n') < 0 {
				return c.take(), nil
			}
			continue
		}
		if err != nil {
			if c.end > c.start && errors.Is(err, io.EOF) {
				return c.take(), nil
			}
			return "", c.s.classify(err)
		}
	}
}

// next returns a complete line from pending input, or a MaxRead
// fragment once the buffer is full.
func (c *Raw) next() (string, bool) {
	pending := c.buf[c.start:c.end]
	if i := bytes.IndexByte(pending, '\n'); i >= 0 {
		c.start += i + 1
		return string(bytes.TrimSuffix(pending[:i], []byte{'\r'})), true
	}
	if len(pending) == len(c.buf) {
		return c.take(), true
	}
	return "", false
}

// take delivers all pending input as one line.  A trailing "\r" may be
// the first half of a "\r\n" split across reads, so it is held back as
// skipLF instead of becoming part of the line.
func (c *Raw) take() string {
	b := c.buf[c.start:c.end]
	c.start, c.end = 0, 0
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
		c.skipLF = true
	}
	return string(b)
}

func (c *Raw) compact() {
	if c.start == 0 {
		return
	}
	c.end = copy(c.buf, c.buf[c.start:c.end])
	c.start = 0
}
