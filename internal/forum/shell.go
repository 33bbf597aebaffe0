// Package forum speaks the interactive forum protocol on one session
// stream: the greeting check, the command loop, and multi-line capture
// for posts and replies.
//
// A [Shell] is shared by every connection; all per-connection state
// lives in the [session.Session] that Handle creates, so concurrent
// sessions never see each other's user or capture buffer.
package forum

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	ferr "forumd/internal/errors"
	"forumd/internal/gateway"
	"forumd/internal/linechan"
	"forumd/internal/metrics"
	"forumd/internal/session"
	"forumd/internal/transport"
	"forumd/util"
)

// DefaultListLimit is used when Shell.ListLimit is not positive.
const DefaultListLimit = 10

// Shell runs the forum protocol.
type Shell struct {
	Gateway     gateway.Gateway
	Verify      Verifier
	ListLimit   int
	IdleTimeout time.Duration // 0 disables
	Metrics     *metrics.Collector
	Logger      *util.Logger
}

func (sh *Shell) logger() *util.Logger {
	if sh.Logger == nil {
		return util.NewLogger(0)
	}
	return sh.Logger
}

func (sh *Shell) listLimit() int {
	if sh.ListLimit > 0 {
		return sh.ListLimit
	}
	return DefaultListLimit
}

// Handle serves one connection until the peer quits, disconnects, or
// idles out.  It does not close conn.  A nil return means the session
// ended normally.
func (sh *Shell) Handle(ctx context.Context, conn transport.Conn) error {
	line := linechan.New(conn, linechan.Options{IdleTimeout: sh.IdleTimeout, Metrics: sh.Metrics})
	sess := session.New(conn, line, sh.logger().With("transport", conn.Transport()))

	sh.Metrics.SessionOpened()
	defer sh.Metrics.SessionClosed()

	sess.Logger.Verbose("session started")
	err := sh.run(ctx, sess)
	elapsed := time.Since(sess.StartedAt).Truncate(time.Millisecond)

	switch {
	case err == nil:
		sess.Logger.Verbose("session ended after %v", elapsed)
		return nil
	case errors.Is(err, ferr.ErrIdleTimeout):
		sess.Line.Write(MsgIdle) //nolint:errcheck
		sess.Logger.Info("session idle, closing after %v", elapsed)
		return nil
	case ferr.IsHarmless(err) || ctx.Err() != nil:
		sess.Logger.Verbose("peer gone after %v", elapsed)
		return nil
	default:
		sh.Metrics.RecordError(err.Error())
		sess.Logger.Warn("session failed: %v", err)
		return ferr.Wrap("session", sess.Conn.RemoteAddr().String(), err)
	}
}

// run speaks the protocol on an existing session.  Errors are I/O
// failures that end the session.
func (sh *Shell) run(ctx context.Context, sess *session.Session) error {
	if err := sh.greet(sess); err != nil || !sess.Authenticated() {
		return err
	}
	for {
		raw, err := sess.Line.Prompt(PromptCommand)
		if err != nil {
			return err
		}
		cmd := Parse(raw)
		sh.Metrics.CommandDispatched()
		sess.Logger.Debug("command %s %q", cmd.Kind, cmd.Arg)

		quit, err := sh.dispatch(ctx, sess, cmd)
		if err != nil || quit {
			return err
		}
	}
}

// greet sends the banner and checks one payload.  A peer that passes
// is admitted on the session.
func (sh *Shell) greet(sess *session.Session) error {
	if err := sess.Line.Write(MsgWelcome + MsgVerify); err != nil {
		return err
	}
	payload, err := sess.Line.ReadLine()
	if err != nil {
		return err
	}
	if sh.Verify.Check(payload) == Rejected {
		sh.Metrics.SessionRejected()
		sess.Logger.Info("verification rejected")
		return sess.Line.Write(MsgDenied)
	}
	sess.Admit()
	sess.Logger.Verbose("verification accepted")
	return sess.Line.Write(MsgVerified + MsgBanner + MsgCommands)
}

// dispatch executes one command.  Usage mistakes and backend failures
// are reported to the peer and never returned.
func (sh *Shell) dispatch(ctx context.Context, sess *session.Session, cmd Command) (quit bool, err error) {
	switch cmd.Kind {
	case List:
		return false, sh.list(ctx, sess)
	case Login:
		return false, sh.login(ctx, sess)
	case Help:
		return false, sess.Line.Write(renderHelp(sess.User()))
	case Post:
		if !sess.LoggedIn() {
			return false, sess.Line.Write(MsgLoginFirst)
		}
		if cmd.Arg == "" {
			return false, sess.Line.Write(MsgPostUsage)
		}
		sess.BeginCapture(session.Target{Kind: session.TargetThread, Title: cmd.Arg}) //nolint:errcheck
		return false, sh.capture(ctx, sess)
	case Reply:
		if !sess.LoggedIn() {
			return false, sess.Line.Write(MsgLoginFirst)
		}
		return false, sh.reply(ctx, sess)
	case Read:
		return false, sh.read(ctx, sess, cmd.Arg)
	case Quit:
		sess.Line.Write(MsgGoodbye) //nolint:errcheck
		return true, nil
	default:
		return false, sess.Line.Write(MsgUnknown)
	}
}

func (sh *Shell) list(ctx context.Context, sess *session.Session) error {
	limit := sh.listLimit()
	threads, err := sh.Gateway.ListRecentThreads(ctx, limit)
	if err != nil {
		sess.Logger.Warn("list threads: %v", err)
		return sess.Line.Write(MsgListFailed)
	}
	if len(threads) > limit {
		threads = threads[:limit]
	}
	listed := make([]session.Listed, len(threads))
	for i, t := range threads {
		listed[i] = session.Listed{ID: t.ID, Title: t.Title}
	}
	sess.SetListing(listed)
	return sess.Line.Write(renderList(threads))
}

func (sh *Shell) login(ctx context.Context, sess *session.Session) error {
	if sess.LoggedIn() {
		return sess.Line.Write(msgAlreadyLoggedIn(sess.User()))
	}
	username, err := sess.Line.Prompt(PromptUsername)
	if err != nil {
		return err
	}
	// The password is read to keep the exchange in step and dropped.
	if _, err := sess.Line.ReadSecret(PromptPassword); err != nil {
		return err
	}
	if err := sess.Login(username); err != nil {
		return sess.Line.Write(MsgEmptyUser)
	}
	if _, err := sh.Gateway.EnsureUser(ctx, sess.User()); err != nil {
		sess.Logger.Verbose("ensure user %s: %v", sess.User(), err)
	}
	sess.Logger.Info("logged in as %s", sess.User())
	return sess.Line.Write(MsgLoginOK)
}

func (sh *Shell) reply(ctx context.Context, sess *session.Session) error {
	answer, err := sess.Line.Prompt(PromptThreadID)
	if err != nil {
		return err
	}
	id := sh.resolve(sess, answer)
	if id == "" {
		return sess.Line.Write(MsgReplyAborted)
	}
	sess.BeginCapture(session.Target{Kind: session.TargetReply, ThreadID: id}) //nolint:errcheck
	return sh.capture(ctx, sess)
}

// resolve turns a listing number into a thread id.  Anything else is
// taken as an id verbatim.
func (sh *Shell) resolve(sess *session.Session, answer string) string {
	answer = strings.TrimSpace(answer)
	if n, err := strconv.Atoi(answer); err == nil {
		if l, ok := sess.Listed(n); ok {
			return l.ID
		}
	}
	return answer
}

// capture collects lines up to the terminator and submits them.  A
// session that ends mid-capture submits nothing.
func (sh *Shell) capture(ctx context.Context, sess *session.Session) error {
	if err := sess.Line.Write(MsgCaptureHint); err != nil {
		sess.Abort()
		return err
	}
	for sess.Mode() == session.ModeCapture {
		line, err := sess.Line.Prompt(PromptCapture)
		if err != nil {
			sess.Logger.Verbose("capture for %+v dropped with %d lines", sess.Target(), sess.Pending())
			sess.Abort()
			return err
		}
		if done, _ := sess.Capture(line); done {
			break
		}
	}

	target, content := sess.Finish()
	switch target.Kind {
	case session.TargetThread:
		if err := sh.Gateway.CreateThread(ctx, target.Title, content, sess.User()); err != nil {
			sess.Logger.Warn("create thread: %v", err)
			return sess.Line.Write(MsgThreadFailed)
		}
		sess.Logger.Info("thread %q created", target.Title)
		return sess.Line.Write(msgThreadCreated(target.Title))
	case session.TargetReply:
		if err := sh.Gateway.CreateComment(ctx, target.ThreadID, content, sess.User()); err != nil {
			sess.Logger.Warn("create reply on %s: %v", target.ThreadID, err)
			return sess.Line.Write(MsgReplyFailed)
		}
		sess.Logger.Info("reply posted to %s", target.ThreadID)
		return sess.Line.Write(MsgReplyOK)
	}
	return nil
}

func (sh *Shell) read(ctx context.Context, sess *session.Session, arg string) error {
	id := sh.resolve(sess, arg)
	if id == "" {
		return sess.Line.Write(MsgReadUsage)
	}
	t, err := sh.Gateway.GetThread(ctx, id)
	if errors.Is(err, ferr.ErrNotFound) {
		return sess.Line.Write(MsgNotFound)
	}
	if err != nil {
		sess.Logger.Warn("get thread %s: %v", id, err)
		return sess.Line.Write(MsgReadFailed)
	}
	comments, err := sh.Gateway.ListComments(ctx, id)
	if err != nil {
		sess.Logger.Warn("list comments %s: %v", id, err)
		return sess.Line.Write(MsgReadFailed)
	}
	return sess.Line.Write(renderThread(t, comments))
}
