package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidcast/internal/api"
)

const watchPollInterval = 2 * time.Second

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var title string
	var description string
	var tags []string
	var category int
	var accountID string
	var resourceID string
	var priority string
	var maxRetries int
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Queue a video file for upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve source path: %w", err)
			}
			if _, err := os.Stat(source); err != nil {
				return fmt.Errorf("inspect source file: %w", err)
			}
			if strings.TrimSpace(title) == "" {
				title = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
			}

			return ctx.withClient(func(client *api.Client) error {
				task, err := client.SubmitTask(cmd.Context(), api.SubmitTaskRequest{
					SourcePath:  source,
					ResourceID:  resourceID,
					Title:       title,
					Description: description,
					Tags:        tags,
					CategoryID:  category,
					AccountID:   accountID,
					Priority:    priority,
					MaxRetries:  maxRetries,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queued %q as task %s (priority %s)\n", task.Title, task.ID, task.Priority)
				if !watch {
					return nil
				}
				return watchTask(cmd.Context(), client, task.ID, out)
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Video title (defaults to the file name)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Video description")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Video tag (repeatable)")
	cmd.Flags().IntVar(&category, "category", 0, "Platform category id")
	cmd.Flags().StringVar(&accountID, "account", "", "Pin the upload to a specific account id")
	cmd.Flags().StringVar(&resourceID, "resource", "", "Resource id for serialization (defaults to the source path)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Task priority: low, normal, high, or urgent")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Retry budget for transient failures")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll the task until it settles")
	return cmd
}

// watchTask polls the daemon until the task reaches a terminal status,
// printing progress transitions along the way.
func watchTask(ctx context.Context, client *api.Client, id string, out io.Writer) error {
	lastLine := ""
	for {
		task, err := client.GetTask(ctx, id)
		if err != nil {
			return err
		}

		line := fmt.Sprintf("%s %3.0f%%", displayLabel(task.Status), task.Progress)
		if line != lastLine {
			fmt.Fprintf(out, "  %s\n", line)
			lastLine = line
		}

		switch task.Status {
		case "completed":
			fmt.Fprintf(out, "Upload complete: content id %s\n", task.ContentID)
			return nil
		case "failed":
			return fmt.Errorf("upload failed: %s", task.Error)
		case "cancelled":
			return errors.New("upload was cancelled")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(watchPollInterval):
		}
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Cancel a queued or in-flight upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.CancelTask(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancel requested for task %s\n", args[0])
				return nil
			})
		},
	}
}
