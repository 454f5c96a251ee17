package powa

import (
	"github.com/spf13/cobra"
)

// Flag names equal the viper keys so bound flags override the file.
func initServerFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.String("server.addr", defaultCfg.Server.Addr, "-> HTTP listening address")
	f.Duration("server.read_timeout", defaultCfg.Server.ReadTimeout, "-> Read timeout duration")
	f.Duration("server.write_timeout", defaultCfg.Server.WriteTimeout, "-> Write timeout duration")
	f.Duration("server.idle_timeout", defaultCfg.Server.IdleTimeout, "-> Idle connection timeout duration")
	f.Duration("server.shutdown_timeout", defaultCfg.Server.ShutdownTimeout, "-> Graceful HTTP shutdown timeout")
}

func initDaemonFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.String("daemon.lock_file", defaultCfg.Daemon.LockFile, "-> PID lock file path")
	f.Duration("daemon.grace_period", defaultCfg.Daemon.GracePeriod, "-> Time allowed for tasks to stop")
}
