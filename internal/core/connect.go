package core

import (
	"context"
	"fmt"

	"forumd/internal/capability"
	"forumd/internal/transport"
	"forumd/util"
)

// ConnectMode dials a session server and runs a capability on the
// resulting connection.  The CLI uses it with [capability.Relay] to
// give a terminal without telnet or netcat a way in.
type ConnectMode struct {
	Dialer     transport.Dialer
	Capability capability.Capability
	Address    string
	Logger     *util.Logger
}

// Run dials the server and hands the connection to the capability.
// The transport is closed when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	m.Logger.Verbose("connecting to %s", m.Address)

	conn, err := m.Dialer.Dial(ctx, "tcp", m.Address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	defer conn.Close()

	m.Logger.Verbose("connected to %s", conn.RemoteAddr())

	return m.Capability.Handle(ctx, transport.Plain(conn))
}
