package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cline-tools/clinekit/pkg/coreclient"
	"github.com/cline-tools/clinekit/pkg/instance"
	"github.com/cline-tools/clinekit/pkg/instance/lockstore"
	clinekitlog "github.com/cline-tools/clinekit/pkg/log"
)

var (
	taskAddress string
	taskWorkdir string
	taskMode    string
	taskSession sessionFlags
)

var taskCmd = &cobra.Command{
	Use:   "task <description>",
	Short: "Run a single task to completion",
	Long: `Create a task on a core instance and follow its conversation until the
agent reports completion. Without --address a fresh instance is started
for the task and stopped afterwards. Interrupting the command cancels
the running task before exiting.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		approval, err := taskSession.approvalConfig()
		if err != nil {
			return err
		}

		address := taskAddress
		if address == "" {
			sup, err := instance.NewWithFreePorts(instance.Config{
				Dir:          taskWorkdir,
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
			address = inst.Address
		}

		svc := coreclient.New(address)

		taskID, err := svc.NewTask(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		clinekitlog.Info("task created", "task_id", taskID)

		follower, err := buildFollower(svc, approval, taskSession.interactive, taskMode)
		if err != nil {
			return err
		}

		res, err := follower.Run(ctx)
		if err != nil {
			return err
		}
		if res.Cancelled {
			// Best effort with a fresh context; ctx is already done.
			cancelCtx, cancelDone := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelDone()
			if err := svc.CancelTask(cancelCtx); err != nil {
				clinekitlog.Warn("failed to cancel task", "task_id", taskID, "error", err)
			}
			return errors.New("task cancelled")
		}
		return nil
	},
}

func init() {
	taskCmd.Flags().StringVarP(&taskAddress, "address", "a", "", "Attach to a running instance (host:port) instead of starting one")
	taskCmd.Flags().StringVarP(&taskWorkdir, "workdir", "w", ".", "Working directory for the host process when starting an instance")
	taskCmd.Flags().StringVar(&taskMode, "mode", "", "Switch to plan or act mode before the task starts")
	addSessionFlags(taskCmd, &taskSession, false)
	rootCmd.AddCommand(taskCmd)
}
