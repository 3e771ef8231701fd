package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cline-tools/clinekit/pkg/config"
	"github.com/cline-tools/clinekit/pkg/conversation"
	clinekitlog "github.com/cline-tools/clinekit/pkg/log"
)

var (
	logLevel  string
	configDir string

	// cfg is loaded in the persistent pre-run so every subcommand sees
	// the same resolved settings.
	cfg         config.Config
	resolvedDir string
)

var rootCmd = &cobra.Command{
	Use:   "clinekit",
	Short: "Manage Cline core instances and follow their conversations",
	Long: `clinekit supervises Cline host/core process pairs, discovers running
instances through the shared lock store, and follows conversations with
optional interactive input and approval handling.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		clinekitlog.Init(clinekitlog.Config{Level: clinekitlog.Level(logLevel)})

		dir := configDir
		if dir == "" {
			var err error
			dir, err = config.Dir()
			if err != nil {
				return err
			}
		}
		resolvedDir = dir

		loaded, err := config.Load(dir)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default: $CLINE_CONFIG_DIR or ~/.cline)")
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// sessionFlags are the follow-session flags shared by run, task, and
// follow. Flag values override the settings file.
type sessionFlags struct {
	interactive    bool
	approvalPolicy string
	autoApprove    []string
}

func addSessionFlags(cmd *cobra.Command, f *sessionFlags, defaultInteractive bool) {
	cmd.Flags().BoolVar(&f.interactive, "interactive", defaultInteractive, "Keep the session alive after completion and accept operator input")
	cmd.Flags().StringVar(&f.approvalPolicy, "approval-policy", "", "Approval policy: static, settings, or none (default: settings file)")
	cmd.Flags().StringSliceVar(&f.autoApprove, "auto-approve", nil, "Action categories the static policy approves (overrides settings file)")
}

// approvalConfig merges the command's flags over the loaded settings
// and validates the result. Called before any process or connection is
// started so a bad flag fails fast.
func (f *sessionFlags) approvalConfig() (config.ApprovalConfig, error) {
	approval := cfg.Approval
	if f.approvalPolicy != "" {
		approval.Policy = f.approvalPolicy
	}
	if len(f.autoApprove) > 0 {
		approval.Allow = f.autoApprove
	}

	switch approval.Policy {
	case "static", "settings", "none":
	default:
		return approval, fmt.Errorf("unknown approval policy %q", approval.Policy)
	}
	for _, s := range approval.Allow {
		if _, err := conversation.ParseAction(s); err != nil {
			return approval, fmt.Errorf("invalid auto-approve entry: %w", err)
		}
	}
	if _, err := conversation.ParseAction(approval.UnknownTool); err != nil {
		return approval, fmt.Errorf("invalid unknown_tool setting: %w", err)
	}
	return approval, nil
}

// buildFollower assembles a follower with display, gate, and session
// options from the merged approval configuration.
func buildFollower(svc conversation.Service, approval config.ApprovalConfig, interactive bool, mode string) (*conversation.Follower, error) {
	follower := conversation.New(svc, conversation.Options{
		Interactive:  interactive,
		Mode:         mode,
		PollInterval: time.Duration(cfg.PollInterval),
		HistoryLimit: cfg.HistoryLimit,
	})

	unknownTool, err := conversation.ParseAction(approval.UnknownTool)
	if err != nil {
		return nil, fmt.Errorf("invalid unknown_tool setting: %w", err)
	}

	policy, err := buildPolicy(svc, follower, approval, interactive)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		follower.SetGate(conversation.NewGate(svc, svc, policy, unknownTool))
	}
	return follower, nil
}

func buildPolicy(svc conversation.Service, follower *conversation.Follower, approval config.ApprovalConfig, interactive bool) (conversation.Policy, error) {
	switch approval.Policy {
	case "none":
		return nil, nil
	case "static":
		allow := make([]conversation.Action, 0, len(approval.Allow))
		for _, s := range approval.Allow {
			action, err := conversation.ParseAction(s)
			if err != nil {
				return nil, fmt.Errorf("invalid approval allow entry: %w", err)
			}
			allow = append(allow, action)
		}
		return conversation.NewStaticPolicy(allow), nil
	case "settings":
		if !interactive {
			return nil, fmt.Errorf("approval policy %q needs an interactive session", approval.Policy)
		}
		prompter := conversation.NewTerminalPrompter(os.Stdin, os.Stdout, follower.Coordinator())
		return conversation.NewSettingsPolicy(svc, svc, prompter, approval.Persist), nil
	default:
		return nil, fmt.Errorf("unknown approval policy %q", approval.Policy)
	}
}

func main() {
	defer clinekitlog.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
