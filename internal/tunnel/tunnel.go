// Package tunnel keeps the local TLS tunnel to the registry endpoint up.
package tunnel

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures a Runner.
type Options struct {
	// Addr is the local host:port the tunnel listens on.
	Addr string
	// Command starts the tunnel, e.g. ["stunnel", "stunnel.conf"]. Empty
	// means the tunnel is managed outside this process.
	Command []string
	// Dir is the working directory for Command.
	Dir string
	// LogFile receives the command's output; defaults to stunnel.log in Dir.
	LogFile string
	// StartTimeout bounds how long Ensure waits for the port after start.
	StartTimeout time.Duration
	// PollInterval is the delay between port probes.
	PollInterval time.Duration
}

// Runner probes the tunnel port and starts the tunnel command when needed.
type Runner struct {
	opts  Options
	log   *zap.Logger
	dial  func(ctx context.Context, addr string) error
	start func(ctx context.Context) error
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.StartTimeout == 0 {
		opts.StartTimeout = 30 * time.Second
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	r := &Runner{opts: opts, log: zap.L().With(zap.String("component", "tunnel"))}
	r.dial = probe
	r.start = r.startCommand
	return r
}

func probe(ctx context.Context, addr string) error {
	var d net.Dialer
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Ensure returns nil once the tunnel accepts connections. It starts the
// configured command if the port is closed and fails after StartTimeout.
func (r *Runner) Ensure(ctx context.Context) error {
	if r.opts.Addr == "" {
		return eris.New("tunnel: addr is required")
	}
	if err := r.dial(ctx, r.opts.Addr); err == nil {
		r.log.Debug("tunnel already up", zap.String("addr", r.opts.Addr))
		return nil
	}
	if len(r.opts.Command) == 0 {
		return eris.Errorf("tunnel: %s is not accepting connections and no start command is configured", r.opts.Addr)
	}

	r.log.Info("starting tunnel", zap.Strings("command", r.opts.Command), zap.String("dir", r.opts.Dir))
	if err := r.start(ctx); err != nil {
		return eris.Wrap(err, "tunnel: start")
	}

	deadline := time.NewTimer(r.opts.StartTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(r.opts.PollInterval)
	defer tick.Stop()

	for {
		if err := r.dial(ctx, r.opts.Addr); err == nil {
			r.log.Info("tunnel is up", zap.String("addr", r.opts.Addr))
			return nil
		}
		select {
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "tunnel: waiting for port")
		case <-deadline.C:
			return eris.Errorf("tunnel: %s not reachable after %s", r.opts.Addr, r.opts.StartTimeout)
		case <-tick.C:
		}
	}
}

// startCommand launches the tunnel detached from ctx so it outlives the
// current command; output goes to LogFile.
func (r *Runner) startCommand(_ context.Context) error {
	logPath := r.opts.LogFile
	if logPath == "" {
		logPath = filepath.Join(r.opts.Dir, "stunnel.log")
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrapf(err, "open log %s", logPath)
	}

	cmd := exec.Command(r.opts.Command[0], r.opts.Command[1:]...) //nolint:gosec
	cmd.Dir = r.opts.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return eris.Wrapf(err, "exec %s", r.opts.Command[0])
	}

	go func() {
		err := cmd.Wait()
		_ = logFile.Close()
		r.log.Warn("tunnel process exited", zap.Error(err))
	}()
	return nil
}
