package forum

import (
	"context"
	"strings"

	"forumd/internal/gateway"
	"forumd/internal/metrics"
	"forumd/util"
)

// Console defaults.
const (
	ConsoleAuthor = "terminal_user"
	ConsoleBody   = "Posted from terminal"
	ConsoleHelp   = "Commands: list, post <title>, help, quit"
)

// Console answers one command at a time for the browser terminal.
// There is no greeting, login or capture: posts are made as
// ConsoleAuthor with ConsoleBody as their content.  Replies are plain
// text with "\n" line endings.
type Console struct {
	Gateway   gateway.Gateway
	ListLimit int
	Metrics   *metrics.Collector
	Logger    *util.Logger
}

// Exec runs line and returns the reply text.
func (c *Console) Exec(ctx context.Context, line string) string {
	cmd := Parse(line)
	c.Metrics.CommandDispatched()

	switch cmd.Kind {
	case List:
		limit := c.ListLimit
		if limit <= 0 {
			limit = DefaultListLimit
		}
		threads, err := c.Gateway.ListRecentThreads(ctx, limit)
		if err != nil {
			c.warn("list threads: %v", err)
			return plain(MsgListFailed)
		}
		if len(threads) > limit {
			threads = threads[:limit]
		}
		return plain(renderList(threads))
	case Post:
		if cmd.Arg == "" {
			return plain(MsgPostUsage)
		}
		if err := c.Gateway.CreateThread(ctx, cmd.Arg, ConsoleBody, ConsoleAuthor); err != nil {
			c.warn("create thread: %v", err)
			return plain(MsgThreadFailed)
		}
		return plain(msgThreadCreated(cmd.Arg))
	case Help:
		return ConsoleHelp
	case Quit:
		return plain(MsgGoodbye)
	default:
		return plain(MsgUnknown)
	}
}

func (c *Console) warn(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Warn("console: "+format, args...)
	}
}

// plain converts wire text to the terminal page's line endings.
func plain(s string) string {
	return strings.TrimSuffix(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}
