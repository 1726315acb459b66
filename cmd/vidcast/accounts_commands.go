package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"vidcast/internal/api"
)

func newAccountsCommand(ctx *commandContext) *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage platform upload accounts",
	}

	accountsCmd.AddCommand(newAccountsListCommand(ctx))
	accountsCmd.AddCommand(newAccountsAddCommand(ctx))
	accountsCmd.AddCommand(newAccountsRemoveCommand(ctx))
	accountsCmd.AddCommand(newAccountsCheckCommand(ctx))

	return accountsCmd
}

func newAccountsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				pool, err := client.ListAccounts(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(pool) == 0 {
					fmt.Fprintln(out, "No accounts registered")
					return nil
				}
				rows := make([][]string, 0, len(pool))
				for _, account := range pool {
					rows = append(rows, []string{
						account.ID,
						account.Label,
						displayLabel(account.HealthStatus),
						fmt.Sprintf("%d", account.Level),
						yesNo(account.VIP),
						account.ExpiresAt,
						account.LastUsedAt,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Label", "Health", "Level", "VIP", "Expires", "Last Used"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newAccountsAddCommand(ctx *commandContext) *cobra.Command {
	var label string
	var session string
	var csrf string
	var userID string
	var level int
	var vip bool
	var expires string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a platform account",
		Long: "Register a platform account with the daemon. The session secret can be\n" +
			"passed with --session or piped on stdin to keep it out of shell history.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(session) == "" {
				read, err := readSessionFromStdin()
				if err != nil {
					return err
				}
				session = read
			}
			if expires != "" {
				if _, err := time.Parse(time.RFC3339, expires); err != nil {
					return fmt.Errorf("--expires must be RFC3339, e.g. 2027-01-02T15:04:05Z: %w", err)
				}
			}

			return ctx.withClient(func(client *api.Client) error {
				account, err := client.AddAccount(cmd.Context(), api.AddAccountRequest{
					Label:     label,
					Session:   session,
					CSRF:      csrf,
					UserID:    userID,
					Level:     level,
					VIP:       vip,
					ExpiresAt: expires,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered account %q as %s\n", account.Label, account.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "Human-readable account label")
	cmd.Flags().StringVar(&session, "session", "", "Platform session secret (or pipe it on stdin)")
	cmd.Flags().StringVar(&csrf, "csrf", "", "Platform CSRF token")
	cmd.Flags().StringVar(&userID, "user-id", "", "Platform user id")
	cmd.Flags().IntVar(&level, "level", 0, "Account level")
	cmd.Flags().BoolVar(&vip, "vip", false, "Account has VIP status")
	cmd.Flags().StringVar(&expires, "expires", "", "Credential expiry timestamp (RFC3339)")
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("csrf")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

// readSessionFromStdin accepts a piped session secret. It refuses to prompt
// on an interactive terminal so secrets never echo.
func readSessionFromStdin() (string, error) {
	fd := os.Stdin.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return "", errors.New("session secret is required; pass --session or pipe it on stdin")
	}
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read session from stdin: %w", err)
		}
		return "", errors.New("no session secret on stdin")
	}
	session := strings.TrimSpace(scanner.Text())
	if session == "" {
		return "", errors.New("empty session secret on stdin")
	}
	return session, nil
}

func newAccountsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ACCOUNT_ID",
		Short: "Remove a registered account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.RemoveAccount(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed account %s\n", args[0])
				return nil
			})
		},
	}
}

func newAccountsCheckCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [ACCOUNT_ID]",
		Short: "Run health checks against accounts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				var reports []api.HealthReport
				if len(args) == 1 {
					report, err := client.CheckAccount(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					reports = []api.HealthReport{*report}
				} else {
					all, err := client.CheckAllAccounts(cmd.Context())
					if err != nil {
						return err
					}
					reports = all
				}

				if len(reports) == 0 {
					fmt.Fprintln(out, "No accounts registered")
					return nil
				}
				for _, report := range reports {
					kind := healthStatusKind(report.Status)
					message := displayLabel(report.Status)
					if report.Summary != "" {
						message += ": " + report.Summary
					}
					fmt.Fprintln(out, renderStatusLine(report.AccountID, kind, message, colorize))
				}
				return nil
			})
		},
	}
	return cmd
}
