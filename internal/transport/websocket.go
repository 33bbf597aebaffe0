package transport

import (
	"context"
	"net"
	"net/http"

	"github.com/coder/websocket"
)

// AcceptWebSocket upgrades r and returns the socket as a session
// stream.  Each text message the browser sends arrives as one read,
// and every write goes out as one text message.  The stream lives
// until ctx ends or it is closed.
func AcceptWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) (Conn, error) {
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, err
	}
	return &wsConn{
		Conn:   websocket.NetConn(ctx, ws, websocket.MessageText),
		remote: wsAddr(r.RemoteAddr),
	}, nil
}

type wsConn struct {
	net.Conn
	remote net.Addr
}

func (*wsConn) Transport() string { return WebSocket }

// RemoteAddr reports the HTTP peer, which NetConn does not know.
func (c *wsConn) RemoteAddr() net.Addr { return c.remote }

type wsAddr string

func (wsAddr) Network() string  { return WebSocket }
func (a wsAddr) String() string { return string(a) }
