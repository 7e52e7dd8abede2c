package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/xcbolt/xcreport/internal/core"
)

var flags GlobalFlags

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "xcreport",
		Short:         "xcreport converts Xcode result bundles into uploadable coverage reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&flags.JSON, "json", false, "Emit NDJSON event stream to stdout")
	root.PersistentFlags().IntVar(&flags.EventVersion, "event-version", core.EventSchemaVersion, "NDJSON event schema version")
	root.PersistentFlags().StringVar(&flags.Config, "config", "", "Path to config file (default: .xcreport/config.json)")
	root.PersistentFlags().StringVar(&flags.Project, "project", "", "Project directory (default: auto-detected)")
	root.PersistentFlags().BoolVar(&flags.Verbose, "verbose", false, "Verbose output")

	root.AddCommand(newConvertCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func Execute() {
	rootCmd := newRootCmd()
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		PrintFatal(err)
	}
}
