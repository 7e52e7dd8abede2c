package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/xcbolt/xcreport/internal/core"
	"github.com/xcbolt/xcreport/internal/util"
)

func newConfigCmd() *cobra.Command {
	var edit bool
	var write bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, write or edit the xcreport config",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac, err := NewAppContext(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			if write || edit {
				if !util.Exists(ac.ConfigPath) || write {
					if err := core.SaveConfig(ac.ProjectRoot, ac.ConfigPath, ac.Config); err != nil {
						return err
					}
				}
				if !edit {
					ac.Emitter.Emit(core.Status("config", "Wrote config", map[string]any{"path": ac.ConfigPath}))
					return nil
				}
				editor := os.Getenv("EDITOR")
				if editor == "" {
					return errors.New("EDITOR is not set; export EDITOR or run without --edit to print config")
				}
				if err := exec.Command(editor, ac.ConfigPath).Start(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Opened", ac.ConfigPath, "in", editor)
				return nil
			}

			b, _ := json.MarshalIndent(ac.Config, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	cmd.Flags().BoolVar(&edit, "edit", false, "Open config in $EDITOR")
	cmd.Flags().BoolVar(&write, "write", false, "Write the effective config to the config file")
	return cmd
}
