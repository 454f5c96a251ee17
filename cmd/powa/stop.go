package powa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/power-warden/powa/internal/lock"
	"github.com/power-warden/powa/pkg/config"
	"github.com/power-warden/powa/pkg/signal"
)

// ErrNotRunning is returned by stop when no lock file exists.
var ErrNotRunning = errors.New("daemon is not running")

const stopPollInterval = 100 * time.Millisecond

func newStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Send SIGTERM to the running daemon and wait for it to release its lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := stopLockPath(cmd)
			if err != nil {
				return err
			}
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return stopDaemon(cmd.Context(), path, timeout, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("config", "c", "", "-> Path to the YAML configuration file the daemon was started with")
	cmd.Flags().String("lock-file", "", "-> PID lock file of the daemon, overrides daemon.lock_file of the configuration")
	cmd.Flags().Duration("timeout", 10*time.Second, "-> How long to wait for the daemon to exit")
	return cmd
}

// stopLockPath resolves the lock file the same way start does: defaults,
// --config, POWA_* environment, then an explicit --lock-file.
func stopLockPath(cmd *cobra.Command) (string, error) {
	if f := cmd.Flags().Lookup("lock-file"); f != nil && f.Changed {
		return f.Value.String(), nil
	}
	cfg, err := config.LoadConfigWithCli(cmd)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Daemon.LockFile, nil
}

func stopDaemon(ctx context.Context, path string, timeout time.Duration, out io.Writer) error {
	pid, err := lock.New(path, nil).Owner()
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotRunning
	}
	if err != nil {
		return fmt.Errorf("read lock file: %w", err)
	}

	if err := signal.Terminate(pid); err != nil {
		return err
	}
	fmt.Fprintf(out, "sent SIGTERM to pid %d\n", pid)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(out, "daemon (pid %d) stopped\n", pid)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon (pid %d) still holds %s after %s", pid, path, timeout)
		case <-ticker.C:
		}
	}
}
