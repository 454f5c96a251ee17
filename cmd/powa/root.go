package powa

import (
	"github.com/spf13/cobra"

	"github.com/power-warden/powa/pkg/config"
)

var defaultCfg = config.NewDefaultConfig()

// NewRootCommand builds the powa command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "powa",
		Short:         "Power domain sampling daemon serving the latest VBAT/USB readings over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", defaultCfg.Log.Level, "-> Log level [debug,info,warning,error]")

	root.AddCommand(newStartCommand(), newStopCommand())
	return root
}

func Execute() {
	cobra.CheckErr(NewRootCommand().Execute())
}
