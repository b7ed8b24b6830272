package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/marmos91/ftpfs/internal/logger"
	"github.com/marmos91/ftpfs/pkg/config"
	"github.com/marmos91/ftpfs/pkg/host"
	"github.com/marmos91/ftpfs/pkg/metrics"
	ftpsession "github.com/marmos91/ftpfs/pkg/session/ftp"
	"github.com/marmos91/ftpfs/pkg/stat"
)

const usageText = `ftpfs - FTP virtual filesystem client

Usage:
  ftpfs [flags] <command> [args]

Commands:
  ls [path]              List a remote directory
  stat <path>            Print the stat result for a path (follows symlinks)
  lstat <path>           Print the stat result without following symlinks
  get <remote> <local>   Download a file
  put <local> <remote>   Upload a file
  rm <path>              Remove a remote file (-r removes a tree)
  mkdir <path>           Create a remote directory (-p creates parents)
  rmdir <path>           Remove an empty remote directory
  mv <from> <to>         Rename or move a remote file
  chmod <mode> <path>    Change remote permission bits (SITE CHMOD)
  sync-clock             Measure the server clock offset and store it
  mirror                 Run the configured mirror tasks

Flags:
`

// cmdFlags carries the parsed command line.
type cmdFlags struct {
	ifNewer   bool
	recursive bool
	parents   bool
}

func main() {
	flags := pflag.NewFlagSet("ftpfs", pflag.ExitOnError)
	flags.SortFlags = false
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usageText)
		fmt.Fprintln(os.Stderr, flags.FlagUsages())
	}

	configPath := flags.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flags.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	address := flags.String("address", "", "Override server address (host:port)")
	user := flags.String("user", "", "Override login user")
	password := flags.String("password", "", "Override login password")
	parser := flags.String("parser", "", "Override listing parser (auto, unix, ms)")

	var cmd cmdFlags
	flags.BoolVar(&cmd.ifNewer, "if-newer", false, "Only transfer when the source is newer than the target")
	flags.BoolVarP(&cmd.recursive, "recursive", "r", false, "Remove directory trees with rm")
	flags.BoolVarP(&cmd.parents, "parents", "p", false, "Create missing parents with mkdir")

	_ = flags.Parse(os.Args[1:])
	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyOverrides(cfg, *logLevel, *address, *user, *password, *parser)
	if cfg.Host.Address == "" {
		log.Fatalf("No server address configured; set host.address or pass --address")
	}

	logger.SetLevel(cfg.Logging.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer := metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port})
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	if err := run(ctx, cfg, args[0], args[1:], cmd); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

// applyOverrides layers command line flags over the loaded config.
func applyOverrides(cfg *config.Config, logLevel, address, user, password, parser string) {
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if address != "" {
		cfg.Host.Address = address
	}
	if user != "" {
		cfg.Host.User = user
		// A flag-supplied user never inherits the file's password.
		cfg.Host.Password = password
	}
	if password != "" {
		cfg.Host.Password = password
	}
	if parser != "" {
		cfg.Parser = parser
	}
}

// connect opens the main session and builds the host facade.
func connect(ctx context.Context, cfg *config.Config) (*host.Host, error) {
	factory := ftpsession.NewFactory(ftpsession.Config{
		Address:           cfg.Host.Address,
		User:              cfg.Host.User,
		Password:          cfg.Host.Password,
		TLSConfig:         tlsConfig(cfg),
		Timeout:           cfg.Host.Timeout,
		StartDir:          cfg.Host.StartDir,
		CommandsPerSecond: cfg.Host.CommandsPerSecond,
	}, metrics.NewSessionMetrics())

	h, err := host.Connect(ctx, factory, host.Options{
		CacheCapacity: cfg.Cache.Capacity,
		CacheMaxAge:   cfg.Cache.MaxAge,
		CacheDisabled: cfg.Cache.Disabled,
		Parser:        selectParser(cfg.Parser),
		CacheMetrics:  metrics.NewStatCacheMetrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Host.Address, err)
	}

	if cfg.TimeShift != 0 {
		if err := h.SetTimeShift(cfg.TimeShift); err != nil {
			h.Close(ctx)
			return nil, err
		}
	}
	return h, nil
}

// tlsConfig builds the TLS config for explicit TLS, or nil when TLS is
// off.
func tlsConfig(cfg *config.Config) *tls.Config {
	if !cfg.Host.TLS {
		return nil
	}
	serverName := cfg.Host.Address
	if h, _, err := net.SplitHostPort(cfg.Host.Address); err == nil {
		serverName = h
	}
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: cfg.Host.TLSSkipVerify,
	}
}

// selectParser maps the parser config value to a pinned parser, or nil
// for auto-detection.
func selectParser(name string) stat.Parser {
	switch name {
	case "unix":
		return stat.NewUnixParser()
	case "ms":
		return stat.NewMSParser()
	default:
		return nil
	}
}
