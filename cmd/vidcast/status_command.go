package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidcast/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				status, err := client.Status(cmd.Context())
				if err != nil {
					fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "unreachable", colorize))
					return err
				}

				daemonKind := statusOK
				daemonMsg := "running"
				if !status.Running {
					daemonKind = statusWarn
					daemonMsg = "stopped"
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, daemonMsg, colorize))
				fmt.Fprintln(out, renderStatusLine("Active uploads", statusInfo,
					fmt.Sprintf("%d of %d slots", status.ActiveUploads, status.MaxConcurrent), colorize))

				queueKind := statusOK
				if status.Queue.Failed > 0 {
					queueKind = statusWarn
				}
				queueMsg := fmt.Sprintf("%d queued, %d processing, %d failed",
					status.Queue.Queued, status.Queue.Processing, status.Queue.Failed)
				fmt.Fprintln(out, renderStatusLine("Queue", queueKind, queueMsg, colorize))

				accounts, err := client.ListAccounts(cmd.Context())
				if err != nil {
					return err
				}
				if len(accounts) == 0 {
					fmt.Fprintln(out, renderStatusLine("Accounts", statusWarn, "none registered", colorize))
					return nil
				}
				usable := 0
				for _, account := range accounts {
					if account.HealthStatus == "healthy" || account.HealthStatus == "warning" {
						usable++
					}
				}
				accountsKind := statusOK
				if usable == 0 {
					accountsKind = statusError
				}
				fmt.Fprintln(out, renderStatusLine("Accounts", accountsKind,
					fmt.Sprintf("%d registered, %d usable", len(accounts), usable), colorize))
				return nil
			})
		},
	}
}
