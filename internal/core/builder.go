package core

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"forumd/config"
	"forumd/internal/capability"
	"forumd/internal/metrics"
	"forumd/internal/transport"
	"forumd/util"
)

// Commands understood by [Build].
const (
	CmdServe   = "serve"
	CmdConnect = "connect"
	CmdSeed    = "seed"
)

// DefaultPort is assumed by connect when the target has no port.
const DefaultPort = 2222

// DefaultDialTimeout bounds connect's dial.
const DefaultDialTimeout = 10 * time.Second

// Build constructs the Mode for command.  args are the positional
// arguments left after flag parsing.
func Build(command string, cfg *config.Config, args []string, logger *util.Logger) (Mode, error) {
	switch command {
	case CmdServe:
		if len(args) > 0 {
			return nil, fmt.Errorf("serve takes no arguments, got %q", args)
		}
		return buildServe(cfg, logger), nil
	case CmdConnect:
		return buildConnect(args, logger)
	case CmdSeed:
		if len(args) > 0 {
			return nil, fmt.Errorf("seed takes no arguments, got %q", args)
		}
		return &SeedMode{DatabasePath: cfg.DatabasePath, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown command %q (use serve, connect or seed)", command)
	}
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config, logger *util.Logger) Mode {
	return &ServeMode{
		Config:  cfg,
		Metrics: metrics.New(),
		Logger:  logger,
	}
}

func buildConnect(args []string, logger *util.Logger) (Mode, error) {
	address, err := connectAddress(args)
	if err != nil {
		return nil, err
	}
	return &ConnectMode{
		Dialer:     &transport.TCPDialer{Timeout: DefaultDialTimeout},
		Capability: &capability.Relay{Logger: logger},
		Address:    address,
		Logger:     logger,
	}, nil
}

// connectAddress accepts "host", "host:port" or "host port".
func connectAddress(args []string) (string, error) {
	switch len(args) {
	case 0:
		return "", fmt.Errorf("connect needs a host (use --help for usage)")
	case 1:
		if _, _, err := net.SplitHostPort(args[0]); err == nil {
			return args[0], nil
		}
		return util.FormatAddr(args[0], DefaultPort), nil
	case 2:
		port, err := strconv.Atoi(args[1])
		if err != nil || port < 1 || port > 65535 {
			return "", fmt.Errorf("invalid port %q", args[1])
		}
		return util.FormatAddr(args[0], port), nil
	default:
		return "", fmt.Errorf("too many arguments for connect")
	}
}
