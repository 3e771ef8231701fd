package main

import (
	"github.com/spf13/cobra"

	"github.com/cline-tools/clinekit/pkg/coreclient"
	clinekitlog "github.com/cline-tools/clinekit/pkg/log"
)

var (
	followAddress string
	followMode    string
	followSession sessionFlags
)

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Attach to a running instance's conversation",
	Long: `Attach an interactive conversation session to an already-running core
instance. Recent history is replayed first, then new messages stream as
the agent produces them. Type a message to respond, /plan or /act to
switch modes, /cancel to cancel the current task.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		approval, err := followSession.approvalConfig()
		if err != nil {
			return err
		}

		svc := coreclient.New(followAddress)
		follower, err := buildFollower(svc, approval, followSession.interactive, followMode)
		if err != nil {
			return err
		}

		res, err := follower.Run(ctx)
		if err != nil {
			return err
		}
		if res.Cancelled {
			clinekitlog.Info("session cancelled")
		}
		return nil
	},
}

func init() {
	followCmd.Flags().StringVarP(&followAddress, "address", "a", "localhost:26040", "Instance address (host:port)")
	followCmd.Flags().StringVar(&followMode, "mode", "", "Switch to plan or act mode before following")
	addSessionFlags(followCmd, &followSession, true)
	rootCmd.AddCommand(followCmd)
}
