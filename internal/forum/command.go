package forum

import "strings"

// Kind identifies a parsed command.
type Kind int

const (
	Unknown Kind = iota
	List
	Login
	Help
	Post
	Reply
	Read
	Quit
)

var kindNames = [...]string{"unknown", "list", "login", "help", "post", "reply", "read", "quit"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Command is one classified input line.
type Command struct {
	Kind Kind
	// Arg is the title of a post or the target of a read.
	Arg string
	// Raw is the trimmed input line.
	Raw string
}

// Parse classifies one input line.  Matching is exact on the trimmed
// line; "post" and "read" carry the rest of the line as their argument.
func Parse(line string) Command {
	raw := strings.TrimSpace(line)
	word, rest := raw, ""
	if i := strings.IndexAny(raw, " \t"); i >= 0 {
		word, rest = raw[:i], strings.TrimSpace(raw[i+1:])
	}

	c := Command{Kind: Unknown, Raw: raw}
	switch word {
	case "list":
		if rest == "" {
			c.Kind = List
		}
	case "login":
		if rest == "" {
			c.Kind = Login
		}
	case "help":
		if rest == "" {
			c.Kind = Help
		}
	case "reply":
		if rest == "" {
			c.Kind = Reply
		}
	case "quit", "exit":
		if rest == "" {
			c.Kind = Quit
		}
	case "post":
		c.Kind, c.Arg = Post, rest
	case "read":
		c.Kind, c.Arg = Read, rest
	}
	return c
}
