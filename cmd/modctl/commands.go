package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Clark-Hu/rating-disputes/internal/apiclient"
	"github.com/Clark-Hu/rating-disputes/internal/config"
	"github.com/Clark-Hu/rating-disputes/internal/domain"
	"github.com/Clark-Hu/rating-disputes/internal/moderation"
)

type consoleFactory func() (*moderation.Console, error)

type rootOptions struct {
	output  string
	factory consoleFactory
}

func newConsole() (*moderation.Console, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	client, err := apiclient.New(cfg.APIURL, cfg.APIToken, time.Duration(cfg.APITimeoutSecs)*time.Second, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return moderation.NewConsole(client, zap.NewNop()), nil
}

func listCmd(opts *rootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List disputes by status",
		Long: `List disputes, newest first.

Examples:
  # Pending disputes
  modctl list

  # Everything, as YAML
  modctl list --status all -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			console, err := opts.factory()
			if err != nil {
				return err
			}
			disputes, err := console.List(cmdContext(cmd), domain.DisputeStatus(status), limit)
			if err != nil {
				return err
			}
			return printDisputes(cmd.OutOrStdout(), opts.output, disputes)
		},
	}
	cmd.Flags().StringVar(&status, "status", "pending", "Status filter: pending, approved, rejected, all")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of disputes to print (0 for all)")
	return cmd
}

func showCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <dispute-id>",
		Short: "Show one dispute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			console, err := opts.factory()
			if err != nil {
				return err
			}
			res, err := console.Show(cmdContext(cmd), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.output, res)
		},
	}
}

// resolveCmd builds the approve and reject commands. A dispute that another
// moderator already resolved is reported, not treated as a failure.
func resolveCmd(opts *rootOptions, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <dispute-id>",
		Short: fmt.Sprintf("%s a pending dispute", titleCase(action)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			console, err := opts.factory()
			if err != nil {
				return err
			}
			act := console.Approve
			if action == "reject" {
				act = console.Reject
			}
			res, err := act(cmdContext(cmd), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.output, res)
		},
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
