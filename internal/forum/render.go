package forum

import (
	"fmt"
	"strings"

	"forumd/internal/gateway"
)

// Protocol text.  Every line the server sends ends in CRLF.
const (
	MsgWelcome      = "Welcome to Arch Forum SSH Server\r\n"
	MsgVerify       = "Arch Linux verification required...\r\n"
	MsgVerified     = "Arch Linux verified! Welcome.\r\n"
	MsgDenied       = "Access denied: Arch Linux required\r\n"
	MsgBanner       = "=== ARCH FORUM ===\r\n"
	MsgCommands     = "Commands: login, list, post, reply, help, quit\r\n"
	MsgGoodbye      = "Goodbye!\r\n"
	MsgUnknown      = "Unknown command. Type 'help'.\r\n"
	MsgLoginFirst   = "Please login to post/reply.\r\n"
	MsgLoginOK      = "Login successful!\r\n"
	MsgEmptyUser    = "Username cannot be empty.\r\n"
	MsgPostUsage    = "Usage: post <title>\r\n"
	MsgReadUsage    = "Usage: read <number|thread-id>\r\n"
	MsgCaptureHint  = "Enter your text. End with a line containing only '.'\r\n"
	MsgReplyAborted = "No thread given, reply cancelled.\r\n"
	MsgReplyOK      = "Reply posted!\r\n"
	MsgReplyFailed  = "Error creating reply\r\n"
	MsgThreadFailed = "Error creating thread\r\n"
	MsgListFailed   = "Error loading threads\r\n"
	MsgNoThreads    = "No threads yet.\r\n"
	MsgNotFound     = "Thread not found.\r\n"
	MsgReadFailed   = "Error loading thread\r\n"
	MsgIdle         = "Idle timeout, goodbye.\r\n"
	MsgBusy         = "Server busy, try again later.\r\n"

	PromptCommand  = "forum> "
	PromptCapture  = "> "
	PromptUsername = "Username: "
	PromptPassword = "Password: "
	PromptThreadID = "Thread ID: "
)

func msgAlreadyLoggedIn(user string) string {
	return fmt.Sprintf("Already logged in as %s.\r\n", user)
}

func msgThreadCreated(title string) string {
	return fmt.Sprintf("Thread '%s' created!\r\n", oneLine(title))
}

// renderList numbers threads from 1 in the given order.
func renderList(threads []gateway.ThreadSummary) string {
	var b strings.Builder
	b.WriteString("Recent threads:\r\n")
	if len(threads) == 0 {
		b.WriteString(MsgNoThreads)
	}
	for i, t := range threads {
		fmt.Fprintf(&b, "[%d] %s\r\n", i+1, oneLine(t.Title))
	}
	return b.String()
}

func renderHelp(user string) string {
	var b strings.Builder
	b.WriteString("Commands:\r\n")
	b.WriteString("  list  - Show recent threads\r\n")
	b.WriteString("  read  - Show a thread and its replies: read <number|id>\r\n")
	if user == "" {
		b.WriteString("  login - Log in with a username\r\n")
	} else {
		b.WriteString("  post  - Create new thread: post <title>\r\n")
		b.WriteString("  reply - Reply to thread\r\n")
	}
	b.WriteString("  help  - Show this help\r\n")
	b.WriteString("  quit  - Leave the forum\r\n")
	if user == "" {
		b.WriteString("Login to post and reply.\r\n")
	} else {
		fmt.Fprintf(&b, "Logged in as %s.\r\n", user)
	}
	return b.String()
}

func renderThread(t *gateway.Thread, comments []gateway.Comment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\r\n", oneLine(t.Title))
	fmt.Fprintf(&b, "by %s on %s\r\n", oneLine(t.Author), t.CreatedAt.UTC().Format("2006-01-02 15:04"))
	b.WriteString("\r\n")
	writeBody(&b, "", t.Content)
	fmt.Fprintf(&b, "\r\nReplies (%d):\r\n", len(comments))
	for _, c := range comments {
		fmt.Fprintf(&b, "- %s:\r\n", oneLine(c.Author))
		writeBody(&b, "    ", c.Content)
	}
	return b.String()
}

// writeBody writes multi-line text with CRLF endings.
func writeBody(b *strings.Builder, indent, text string) {
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		b.WriteString(indent)
		b.WriteString(line)
		b.WriteString("\r\n")
	}
}

// oneLine keeps stored text from breaking the line structure of a
// listing.
func oneLine(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, s)
}
