package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ferr "forumd/internal/errors"
	"forumd/util"
)

// DefaultHandshakeTimeout bounds the SSH handshake of one connection.
const DefaultHandshakeTimeout = 10 * time.Second

// SSHListener serves the session protocol over SSH "session" channels.
// Clients are not authenticated (the forum has its own login).  Each
// SSH connection carries one session, started by a "shell" request.
//
// Handshakes run on their own goroutines, so a slow or hostile client
// never holds up Accept.
type SSHListener struct {
	ln               net.Listener
	cfg              *ssh.ServerConfig
	logger           *util.Logger
	handshakeTimeout time.Duration

	ready     chan Conn
	done      chan struct{}
	closeOnce sync.Once
}

// ListenSSH binds addr and starts accepting SSH connections signed
// with hostKey.
func ListenSSH(ctx context.Context, addr string, hostKey ssh.Signer, logger *util.Logger) (*SSHListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ServerConfig{
		NoClientAuth:  true,
		ServerVersion: "SSH-2.0-forumd",
	}
	cfg.AddHostKey(hostKey)

	l := &SSHListener{
		ln:               ln,
		cfg:              cfg,
		logger:           logger,
		handshakeTimeout: DefaultHandshakeTimeout,
		ready:            make(chan Conn),
		done:             make(chan struct{}),
	}
	go l.serve()
	return l, nil
}

// Accept returns the next SSH session whose client asked for a shell.
func (l *SSHListener) Accept() (Conn, error) {
	select {
	case c := <-l.ready:
		return c, nil
	case <-l.done:
		return nil, &net.OpError{Op: "accept", Net: SSH, Addr: l.ln.Addr(), Err: net.ErrClosed}
	}
}

// Close stops accepting.  Established sessions are unaffected.
func (l *SSHListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.ln.Close()
	})
	return err
}

// Addr returns the bound address.
func (l *SSHListener) Addr() net.Addr { return l.ln.Addr() }

func (l *SSHListener) serve() {
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("ssh accept: %v", err)
			select {
			case <-l.done:
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		go l.handshake(nc)
	}
}

func (l *SSHListener) handshake(nc net.Conn) {
	addr := nc.RemoteAddr().String()

	nc.SetDeadline(time.Now().Add(l.handshakeTimeout)) //nolint:errcheck
	sconn, chans, reqs, err := ssh.NewServerConn(nc, l.cfg)
	if err != nil {
		l.logger.Verbose("%v", ferr.WrapSSH("handshake", addr, err))
		nc.Close()
		return
	}
	nc.SetDeadline(time.Time{}) //nolint:errcheck
	l.logger.Debug("ssh handshake from %s (user %q, client %s)", addr, sconn.User(), sconn.ClientVersion())

	go ssh.DiscardRequests(reqs)

	served := false
	for nch := range chans {
		if nch.ChannelType() != "session" {
			nch.Reject(ssh.UnknownChannelType, "unknown channel type") //nolint:errcheck
			continue
		}
		if served {
			nch.Reject(ssh.Prohibited, "one session per connection") //nolint:errcheck
			continue
		}
		ch, requests, err := nch.Accept()
		if err != nil {
			l.logger.Verbose("%v", ferr.WrapSSH("channel", addr, err))
			continue
		}
		served = true
		go l.session(sconn, ch, requests)
	}
	if !served {
		sconn.Close()
	}
}

// ptyRequest is the RFC 4254 §6.2 payload.
type ptyRequest struct {
	Term    string
	Columns uint32
	Rows    uint32
	Width   uint32
	Height  uint32
	Modes   string
}

// windowChange is the RFC 4254 §6.7 payload.
type windowChange struct {
	Columns uint32
	Rows    uint32
	Width   uint32
	Height  uint32
}

func (l *SSHListener) session(sconn *ssh.ServerConn, ch ssh.Channel, requests <-chan *ssh.Request) {
	c := newSSHConn(sconn, ch)
	started := false

	for req := range requests {
		switch req.Type {
		case "pty-req":
			var p ptyRequest
			if err := ssh.Unmarshal(req.Payload, &p); err == nil {
				c.resize(int(p.Columns), int(p.Rows))
			}
			req.Reply(true, nil) //nolint:errcheck
		case "window-change":
			var w windowChange
			if err := ssh.Unmarshal(req.Payload, &w); err == nil {
				c.resize(int(w.Columns), int(w.Rows))
			}
		case "env":
			req.Reply(true, nil) //nolint:errcheck
		case "shell":
			if started {
				req.Reply(false, nil) //nolint:errcheck
				continue
			}
			started = true
			req.Reply(true, nil) //nolint:errcheck
			select {
			case l.ready <- c:
			case <-l.done:
				c.Close()
			}
		default:
			// exec and subsystem requests have no meaning here.
			if req.WantReply {
				req.Reply(false, nil) //nolint:errcheck
			}
		}
	}
	if !started {
		c.Close()
	}
}

// sshConn adapts an SSH channel to [Conn].  The session side is one
// end of a [net.Pipe], so read deadlines work exactly as on TCP; two
// pumps move bytes between the pipe and the channel.
type sshConn struct {
	net.Conn
	sconn *ssh.ServerConn

	mu       sync.Mutex
	width    int
	height   int
	onResize func(width, height int)
}

func newSSHConn(sconn *ssh.ServerConn, ch ssh.Channel) *sshConn {
	local, peer := net.Pipe()
	c := &sshConn{Conn: local, sconn: sconn}

	go func() {
		io.Copy(peer, ch) //nolint:errcheck
		peer.Close()
	}()
	go func() {
		io.Copy(ch, peer) //nolint:errcheck
		ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0})) //nolint:errcheck
		ch.Close()
		sconn.Close()
	}()
	return c
}

func (c *sshConn) Transport() string    { return SSH }
func (c *sshConn) RemoteAddr() net.Addr { return c.sconn.RemoteAddr() }
func (c *sshConn) LocalAddr() net.Addr  { return c.sconn.LocalAddr() }

// OnResize implements [Resizer].
func (c *sshConn) OnResize(fn func(width, height int)) {
	c.mu.Lock()
	c.onResize = fn
	w, h := c.width, c.height
	c.mu.Unlock()
	if fn != nil && w > 0 && h > 0 {
		fn(w, h)
	}
}

func (c *sshConn) resize(width, height int) {
	c.mu.Lock()
	c.width, c.height = width, height
	fn := c.onResize
	c.mu.Unlock()
	if fn != nil && width > 0 && height > 0 {
		fn(width, height)
	}
}

var _ Resizer = (*sshConn)(nil)
