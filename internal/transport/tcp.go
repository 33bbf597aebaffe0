package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer establishes plain TCP connections.
type TCPDialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration // 0 uses the OS default
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }

// TCPListener accepts raw TCP session streams.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP binds addr ("host:port" or ":port").
func ListenTCP(ctx context.Context, addr string) (*TCPListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln}, nil
}

// Accept waits for the next connection.
func (l *TCPListener) Accept() (Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return tcpConn{c}, nil
}

// Close stops the listener.
func (l *TCPListener) Close() error { return l.ln.Close() }

// Addr returns the bound address.
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

type tcpConn struct{ net.Conn }

func (tcpConn) Transport() string { return TCP }

// CloseWrite half-closes the stream when the underlying socket can.
func (c tcpConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// Plain adapts an already established stream, such as a dialed socket
// or one end of [net.Pipe], to Conn with plain TCP framing.
func Plain(c net.Conn) Conn { return tcpConn{c} }
