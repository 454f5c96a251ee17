package powa

import (
	"github.com/spf13/cobra"
)

func initLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	logPrefix := "log."

	f.String(
		logPrefix+"format",
		defaultCfg.Log.Format,
		"-> Log format [console,json]")
	f.String(
		logPrefix+"path",
		defaultCfg.Log.Path,
		"-> Log file directory, empty logs to stdout only")
	f.Int(
		logPrefix+"max_size",
		defaultCfg.Log.MaxSize,
		"-> Max size of single log file (MB)")
	f.Int(
		logPrefix+"max_backup",
		defaultCfg.Log.MaxBackup,
		"-> Number of log files kept, overrides max_age")
	f.Int(
		logPrefix+"max_age",
		defaultCfg.Log.MaxAge,
		"-> Maximum retention days of log files")
}
