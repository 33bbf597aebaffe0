package linechan

import (
	"io"
	"strings"

	"golang.org/x/term"

	"forumd/internal/transport"
)

// Terminal serves interactive SSH clients.  The server echoes input,
// handles line editing, and hides secrets.
type Terminal struct {
	s *stream
	t *term.Terminal
}

// NewTerminal wraps rw in an x/term line discipline.  When rw reports
// window sizes the terminal follows them.
func NewTerminal(rw io.ReadWriter, opts Options) *Terminal {
	s := newStream(rw, opts)
	t := term.NewTerminal(s, "")
	if r, ok := rw.(transport.Resizer); ok {
		r.OnResize(func(w, h int) { t.SetSize(w, h) }) //nolint:errcheck
	}
	return &Terminal{s: s, t: t}
}

// Write sends text.  The terminal adds the carriage returns itself.
func (c *Terminal) Write(text string) error {
	_, err := c.t.Write([]byte(strings.ReplaceAll(text, "\r\n", "\n")))
	return err
}

// Prompt shows prompt as the editable line's prefix.
func (c *Terminal) Prompt(prompt string) (string, error) {
	c.t.SetPrompt(prompt)
	defer c.t.SetPrompt("")
	return c.readLine()
}

// ReadSecret reads a line without echoing it.
func (c *Terminal) ReadSecret(prompt string) (string, error) {
	c.s.arm()
	line, err := c.t.ReadPassword(prompt)
	if err != nil {
		return "", c.s.classify(err)
	}
	return line, nil
}

// ReadLine reads a line with an empty prompt.
func (c *Terminal) ReadLine() (string, error) {
	return c.readLine()
}

func (c *Terminal) readLine() (string, error) {
	c.s.arm()
	line, err := c.t.ReadLine()
	if err != nil {
		return "", c.s.classify(err)
	}
	return line, nil
}
