package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cline-tools/clinekit/pkg/coreclient"
	"github.com/cline-tools/clinekit/pkg/instance"
	"github.com/cline-tools/clinekit/pkg/instance/lockstore"
	clinekitlog "github.com/cline-tools/clinekit/pkg/log"
)

var (
	runWorkdir string
	runMode    string
	runSession sessionFlags
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a core instance and follow its conversation",
	Long: `Start a cline-host/cline-core process pair on an ephemeral port pair,
wait for the instance to register itself in the lock store, and attach
an interactive conversation session. The processes are stopped when the
session ends.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		approval, err := runSession.approvalConfig()
		if err != nil {
			return err
		}

		sup, err := instance.NewWithFreePorts(instance.Config{
			Dir:          runWorkdir,
			ConfigDir:    resolvedDir,
			ClinePath:    cfg.ClinePath,
			LockTimeout:  time.Duration(cfg.LockTimeout),
			PollInterval: time.Duration(cfg.PollInterval),
		}, func(corePort int) instance.ReadinessProbe {
			return lockstore.New(resolvedDir, corePort)
		})
		if err != nil {
			return err
		}

		inst, err := sup.Start(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := sup.Stop(); err != nil {
				clinekitlog.Warn("failed to stop instance cleanly", "error", err)
			}
		}()

		fmt.Printf("instance ready at %s\n", inst.Address)

		svc := coreclient.New(inst.Address)
		follower, err := buildFollower(svc, approval, runSession.interactive, runMode)
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
	runCmd.Flags().StringVarP(&runWorkdir, "workdir", "w", ".", "Working directory for the host process")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Switch to plan or act mode before following")
	addSessionFlags(runCmd, &runSession, true)
	rootCmd.AddCommand(runCmd)
}
