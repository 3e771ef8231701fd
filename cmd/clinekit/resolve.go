package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cline-tools/clinekit/pkg/instance"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the resolved cline-core entry point",
	Long: `Resolve and print the path to cline-core.js using the configured
cline_path, the CLINE_PATH environment variable, the cline executable
on PATH, and the global npm installation, in that order.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := instance.ResolveCorePath(cfg.ClinePath)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
