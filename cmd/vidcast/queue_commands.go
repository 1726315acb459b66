package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidcast/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the upload queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List upload tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				tasks, err := client.ListQueue(cmd.Context(), listStatuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					rows = append(rows, []string{
						task.ID,
						task.Title,
						displayLabel(task.Status),
						displayLabel(task.Priority),
						fmt.Sprintf("%.0f%%", task.Progress),
						strconv.Itoa(task.RetryCount),
						task.CreatedAt,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Title", "Status", "Priority", "Progress", "Retries", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by task status (repeatable)")
	return cmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if status.Queue.Total == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := [][]string{
					{"Queued", strconv.Itoa(status.Queue.Queued)},
					{"Processing", strconv.Itoa(status.Queue.Processing)},
					{"Completed", strconv.Itoa(status.Queue.Completed)},
					{"Failed", strconv.Itoa(status.Queue.Failed)},
					{"Cancelled", strconv.Itoa(status.Queue.Cancelled)},
					{"Total", strconv.Itoa(status.Queue.Total)},
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed, failed, and cancelled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				removed, err := client.ClearQueue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d settled tasks\n", removed)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [TASK_ID...]",
		Short: "Requeue failed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				retried, err := client.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed tasks\n", retried)
				return nil
			})
		},
	}
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show TASK_ID",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				task, err := client.GetTask(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printTaskDetail(cmd, task)
				return nil
			})
		},
	}
}

func printTaskDetail(cmd *cobra.Command, task *api.Task) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Task %s\n", task.ID)
	fmt.Fprintf(out, "  Title:      %s\n", task.Title)
	fmt.Fprintf(out, "  Source:     %s\n", task.SourcePath)
	fmt.Fprintf(out, "  Resource:   %s\n", task.ResourceID)
	fmt.Fprintf(out, "  Status:     %s\n", displayLabel(task.Status))
	fmt.Fprintf(out, "  Priority:   %s\n", displayLabel(task.Priority))
	fmt.Fprintf(out, "  Progress:   %.0f%%\n", task.Progress)
	fmt.Fprintf(out, "  Retries:    %d/%d\n", task.RetryCount, task.MaxRetries)
	if len(task.Tags) > 0 {
		fmt.Fprintf(out, "  Tags:       %s\n", strings.Join(task.Tags, ", "))
	}
	if task.AccountID != "" {
		fmt.Fprintf(out, "  Account:    %s\n", task.AccountID)
	}
	if task.UploadID != "" {
		fmt.Fprintf(out, "  Upload ID:  %s\n", task.UploadID)
	}
	if task.ContentID != "" {
		fmt.Fprintf(out, "  Content ID: %s\n", task.ContentID)
	}
	if task.Error != "" {
		fmt.Fprintf(out, "  Error:      %s\n", task.Error)
	}
	fmt.Fprintf(out, "  Created:    %s\n", task.CreatedAt)
	fmt.Fprintf(out, "  Updated:    %s\n", task.UpdatedAt)
}
