// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"forumd/config"
	"forumd/internal/core"
	"forumd/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X forumd/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --version, --dry-run and help output.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute parses args and runs the selected forumd mode.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage(nil)
		return nil
	}
	switch args[0] {
	case "-h", "--help", "help":
		printUsage(nil)
		return nil
	case "--version", "version":
		fmt.Fprintf(stdout, "forumd %s\n", version)
		return nil
	}

	command, rest := args[0], args[1:]
	switch command {
	case core.CmdServe, core.CmdConnect, core.CmdSeed:
	default:
		return fmt.Errorf("unknown command %q (use --help for usage)", command)
	}

	// ── config file, .env and environment ────────────────────────
	path, err := configPath(rest)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	// ── flags override everything else ──────────────────────────
	fs := flag.NewFlagSet("forumd "+command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts := bindFlags(fs, cfg, command)
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if opts.help {
		printUsage(fs)
		return nil
	}
	if fs.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}

	// ── validate ─────────────────────────────────────────────────
	if command != core.CmdConnect {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if opts.dryRun {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = stdout.Write(out)
		return err
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetJSON(cfg.LogFormat == config.LogJSON)

	mode, err := core.Build(command, cfg, fs.Args(), logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

type cliOptions struct {
	verbose int
	dryRun  bool
	help    bool
}

// bindFlags registers the flags of command on fs.  Flags write
// straight into cfg, so a flag that is not given keeps the value from
// the file or the environment.
func bindFlags(fs *flag.FlagSet, cfg *config.Config, command string) *cliOptions {
	opts := &cliOptions{}

	// ── common ───────────────────────────────────────────────────
	fs.String("config", "", "YAML config file")
	fs.CountVarP(&opts.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: console or json")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Validate and print the effective configuration, then exit")
	fs.BoolVarP(&opts.help, "help", "h", false, "Show this help")

	if command == core.CmdConnect {
		return opts
	}
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database file")
	if command == core.CmdSeed {
		return opts
	}

	// ── session server ───────────────────────────────────────────
	fs.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "Session server address")
	fs.IntVar(&cfg.MaxConnections, "max-conns", cfg.MaxConnections, "Concurrent session cap")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Disconnect silent sessions after this long (0 = never)")
	fs.StringVar(&cfg.VerifyPolicy, "verify", cfg.VerifyPolicy, "Greeting check: keyword or any")
	fs.StringSliceVar(&cfg.VerifyKeywords, "verify-keywords", cfg.VerifyKeywords, "Keywords accepted by the keyword check")
	fs.IntVar(&cfg.ListLimit, "list-limit", cfg.ListLimit, "Threads shown by list")

	// ── SSH transport ────────────────────────────────────────────
	fs.StringVar(&cfg.SSHListenAddr, "ssh-listen", cfg.SSHListenAddr, "Also serve sessions over SSH on this address")
	fs.StringVar(&cfg.SSHHostKeyPath, "ssh-host-key", cfg.SSHHostKeyPath, "SSH host key file (created if missing)")

	// ── backend ──────────────────────────────────────────────────
	fs.StringVar(&cfg.BackendURL, "backend", cfg.BackendURL, "Use a remote forumd HTTP API instead of --db")
	fs.DurationVar(&cfg.BackendTimeout, "backend-timeout", cfg.BackendTimeout, "Timeout for one backend call")
	fs.StringVar(&cfg.APIListenAddr, "api-listen", cfg.APIListenAddr, "Serve the HTTP API on this address")
	fs.BoolVar(&cfg.Seed, "seed", cfg.Seed, "Load the sample forum content at start-up")
	return opts
}

// configPath finds --config before the real parse, since the file has
// to be loaded before flags are applied on top of it.
func configPath(args []string) (string, error) {
	fs := flag.NewFlagSet("forumd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	path := fs.String("config", "", "")
	fs.BoolP("help", "h", false, "")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *path, nil
}

func printUsage(fs *flag.FlagSet) {
	if fs == nil {
		fmt.Fprintf(stdout, `forumd – interactive forum server v%s

Usage:
  forumd serve   [options]              Run the session server
  forumd connect [options] host [port]  Open a session from this terminal
  forumd seed    [options]              Load sample content into the database

Run "forumd <command> --help" for the options of a command.

Every option can also be set in a YAML file (--config) or through
FORUM_* environment variables, e.g. FORUM_LISTEN_ADDR=:2323.

Examples:
  forumd serve --seed                           Serve a demo forum on :2222
  forumd serve --ssh-listen :2223 --api-listen :8080
  forumd serve --backend http://api:8080        Sessions over a remote API
  forumd connect localhost                      Join the forum on :2222
  telnet localhost 2222                         Any line-based client works
`, version)
		return
	}
	fmt.Fprintf(stdout, "Usage of %s:\n", fs.Name())
	fs.SetOutput(stdout)
	fs.PrintDefaults()
}
