// Package app implements the rtegdb commands on top of the protocol,
// device and presentation packages.
package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tturner/rtegdb/internal/capture"
	"github.com/tturner/rtegdb/internal/config"
	rtegdbErrors "github.com/tturner/rtegdb/internal/errors"
	"github.com/tturner/rtegdb/internal/logging"
	"github.com/tturner/rtegdb/internal/rsp/client"
	"github.com/tturner/rtegdb/internal/rtedbg"
	"github.com/tturner/rtegdb/internal/script"
	"github.com/tturner/rtegdb/internal/transport"
)

// CommonOptions are the connection and structure settings shared by all
// commands. Zero values keep the configuration file value.
type CommonOptions struct {
	ConfigPath     string
	Host           string
	Port           int
	Address        string
	Size           int
	Filter         string
	Clear          bool
	DelayMs        int
	SnapshotFile   string
	MaxMessageSize int
	StartScript    string
	FilterNames    string
	Detach         bool
	LogFile        string
	Verbose        bool
	Debug          bool
	PCAPFile       string
	Gateway        string
	Upload         string

	// Out receives command output. Defaults to stdout.
	Out io.Writer
}

func (o *CommonOptions) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

// loadConfig reads the configuration and applies the command line
// overrides. A missing default file is not an error.
func loadConfig(opts *CommonOptions) (*config.Config, error) {
	path := opts.ConfigPath
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath
	}

	var cfg *config.Config
	if _, err := os.Stat(path); !explicit && os.IsNotExist(err) {
		cfg = config.CreateDefaultConfig()
	} else {
		loaded, err := config.LoadConfig(path, false)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.MaxMessageSize != 0 {
		cfg.Server.MaxMessageSize = opts.MaxMessageSize
	}
	if opts.Detach {
		cfg.Server.Detach = true
	}
	if opts.Address != "" {
		addr, err := script.ParseHex(opts.Address)
		if err != nil {
			return nil, fmt.Errorf("--address: %w", err)
		}
		cfg.Structure.Address = config.HexUint32(addr)
	}
	if opts.Size != 0 {
		cfg.Structure.Size = opts.Size
	}
	if opts.Filter != "" {
		v, err := script.ParseHex(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("--filter: %w", err)
		}
		f := config.HexUint32(v)
		cfg.Structure.Filter = &f
	}
	if opts.Clear {
		cfg.Structure.Clear = true
	}
	if opts.DelayMs != 0 {
		cfg.Structure.DelayMs = opts.DelayMs
	}
	if opts.SnapshotFile != "" {
		cfg.Structure.SnapshotFile = opts.SnapshotFile
	}
	if opts.FilterNames != "" {
		cfg.Structure.FilterNames = opts.FilterNames
	}
	if opts.StartScript != "" {
		cfg.Scripts.Start = opts.StartScript
	}
	if opts.LogFile != "" {
		cfg.Logging.File = opts.LogFile
	}
	if opts.Debug {
		cfg.Logging.Level = "debug"
	} else if opts.Verbose {
		cfg.Logging.Level = "verbose"
	}
	if opts.PCAPFile != "" {
		cfg.Capture.PCAP = opts.PCAPFile
	}
	if opts.Gateway != "" {
		cfg.Server.Gateway = opts.Gateway
	}
	if opts.Upload != "" {
		cfg.Structure.Upload = opts.Upload
	}

	if err := config.Validate(cfg); err != nil {
		return nil, rtegdbErrors.WrapConfigError(err, path)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Communication && level < logging.LogLevelDebug {
		level = logging.LogLevelDebug
	}
	logger, err := logging.NewLoggerWithOptions(level, cfg.Logging.File, cfg.Logging.Format, cfg.Logging.LogEvery)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// env is an open connection with everything a command needs.
type env struct {
	cfg      *config.Config
	log      *logging.Logger
	sess     *client.Session
	dev      *rtedbg.Device
	recorder *capture.Recorder
	gw       transport.Dialer
	out      io.Writer
}

// open loads the configuration, connects to the GDB server, runs the start
// script and creates the device.
func open(ctx context.Context, opts *CommonOptions, command string) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: logger, out: opts.out()}
	logger.LogStartup(command, cfg.Server.Host, cfg.Server.Port, uint32(cfg.Structure.Address), cfg.Structure.Size, opts.ConfigPath)

	if err := e.connect(ctx); err != nil {
		e.Close()
		return nil, err
	}

	e.dev = rtedbg.NewDevice(e.sess, deviceOptions(cfg, logger))

	if cfg.Scripts.Start != "" {
		if err := e.runScript(ctx, cfg.Scripts.Start); err != nil {
			e.Close()
			return nil, fmt.Errorf("start script: %w", err)
		}
	}
	return e, nil
}

func (e *env) connect(ctx context.Context) error {
	cfg := e.cfg
	sessOpts := client.Options{
		RecvTimeout:    config.Timeout(cfg.Server.Timeouts.ReceiveMs),
		LongTimeout:    config.Timeout(cfg.Server.Timeouts.LongMs),
		SendTimeout:    config.Timeout(cfg.Server.Timeouts.SendMs),
		ConsoleTimeout: config.Timeout(cfg.Server.Timeouts.ConsoleMs),
		MaxMessageSize: cfg.Server.MaxMessageSize,
		DetachOnClose:  cfg.Server.Detach,
		Logger:         e.log,
	}
	if cfg.Capture.PCAP != "" {
		rec, err := capture.NewRecorder(cfg.Capture.PCAP,
			capture.Endpoint("127.0.0.1", capture.DefaultClientPort),
			capture.Endpoint(cfg.Server.Host, cfg.Server.Port))
		if err != nil {
			return fmt.Errorf("start capture: %w", err)
		}
		e.recorder = rec
		sessOpts.Recorder = rec
		e.log.Verbose("Recording RSP traffic to %s", cfg.Capture.PCAP)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var sess *client.Session
	var err error
	if cfg.Server.Gateway != "" {
		sess, err = e.dialGateway(dialCtx, sessOpts)
	} else {
		sess, err = client.Dial(dialCtx, cfg.Server.Host, cfg.Server.Port, sessOpts)
	}
	if err != nil {
		return rtegdbErrors.WrapNetworkError(err, cfg.Server.Host, cfg.Server.Port)
	}
	e.sess = sess
	caps := sess.Capabilities()
	e.log.Verbose("Connected to %s:%d, read chunk %d bytes, write chunk %d bytes",
		cfg.Server.Host, cfg.Server.Port, caps.MaxReadChunk, caps.MaxWriteChunk)
	return nil
}

// dialGateway forwards the RSP connection through an SSH gateway or a
// SOCKS5 proxy. An SSH gateway stays open for snapshot uploads.
func (e *env) dialGateway(ctx context.Context, opts client.Options) (*client.Session, error) {
	gw, err := transport.Open(e.cfg.Server.Gateway)
	if err != nil {
		return nil, fmt.Errorf("server.gateway: %w", err)
	}
	e.gw = gw

	addr := net.JoinHostPort(e.cfg.Server.Host, strconv.Itoa(e.cfg.Server.Port))
	conn, err := gw.DialContext(ctx, addr)
	if err != nil {
		return nil, err
	}
	e.log.Verbose("Forwarding %s through %s", addr, gw)
	return client.DialConn(ctx, conn, opts)
}

func deviceOptions(cfg *config.Config, logger *logging.Logger) rtedbg.Options {
	opts := rtedbg.Options{
		Address: uint32(cfg.Structure.Address),
		Size:    cfg.Structure.Size,
		Clear:   cfg.Structure.Clear,
		Delay:   config.Timeout(cfg.Structure.DelayMs),
		Logger:  logger,
	}
	if cfg.Structure.Filter != nil {
		v := uint32(*cfg.Structure.Filter)
		opts.Filter = &v
	}
	return opts
}

// runScript runs one command file. A failing command stops the file but
// not the caller; only an unreadable file or cancellation is returned.
func (e *env) runScript(ctx context.Context, path string) error {
	exec := script.NewExecutor(e.sess, e.dev, script.Options{Logger: e.log, Out: e.out})
	res, err := exec.RunFile(ctx, path)
	if res != nil && res.Failed != nil && ctx.Err() == nil {
		e.log.Error("Script %s stopped at line %d (%s): %v", path, res.Failed.Line, res.Failed.Text, res.Failed.Err)
		fmt.Fprintf(e.out, "%s: stopped at line %d: %v\n", path, res.Failed.Line, res.Failed.Err)
		err = nil
	}
	if err != nil {
		return err
	}
	if errs := res.Errors(); len(errs) > 0 {
		e.log.Info("Script %s: %d commands, %d pseudo-command errors", path, res.Commands, len(errs))
	}
	return nil
}

func (e *env) filterNames() []string {
	if e.cfg.Structure.FilterNames == "" {
		return nil
	}
	names, err := rtedbg.LoadFilterNames(e.cfg.Structure.FilterNames)
	if err != nil {
		e.log.Error("Filter names: %v", err)
		return nil
	}
	return names
}

// Close detaches if configured, closes the session and the capture file.
func (e *env) Close() {
	if e.sess != nil {
		if err := e.sess.Close(); err != nil {
			e.log.Verbose("Close session: %v", err)
		}
		e.sess = nil
	}
	if e.recorder != nil {
		if err := e.recorder.Close(); err != nil {
			e.log.Error("Close capture: %v", err)
		} else {
			e.log.Verbose("Wrote %d packets to %s", e.recorder.Packets(), e.cfg.Capture.PCAP)
		}
		e.recorder = nil
	}
	if e.gw != nil {
		if err := e.gw.Close(); err != nil {
			e.log.Verbose("Close gateway: %v", err)
		}
		e.gw = nil
	}
	e.log.Close()
}
