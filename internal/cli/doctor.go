package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xcbolt/xcreport/internal/core"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the Xcode tools used for conversion are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac, err := NewAppContext(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			rep := core.Doctor(ctx, core.ExecRunner{}, ac.Config, ac.Emitter)
			if ac.Flags.JSON {
				ac.Emitter.Emit(core.Result("doctor", rep.OK(), rep))
			} else {
				for _, c := range rep.Checks {
					mark := "ok"
					if !c.OK {
						mark = "FAIL"
					}
					line := fmt.Sprintf("%-24s %s", c.Name, mark)
					if c.Detail != "" {
						line += "  " + c.Detail
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
					if !c.OK && c.Hint != "" {
						fmt.Fprintln(cmd.OutOrStdout(), "  hint: "+c.Hint)
					}
				}
			}
			if !rep.OK() {
				return ExitError{Code: 1}
			}
			return nil
		},
	}
	return cmd
}
